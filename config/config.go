// Package config loads a bot's configuration from YAML or TOML.
//
// The file format follows the extension: ".toml" is TOML and
// anything else is YAML.  The token can (and usually should) come
// from the environment instead of the file.  See TokenEnvVars.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Comcast/cordial/client"
	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/match"
	"github.com/Comcast/cordial/rest"
	"github.com/Comcast/cordial/sink"

	"github.com/jsccast/yaml"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/time/rate"
)

// TokenEnvVars are checked in order.  The first one that's set
// overrides the file's token.
var TokenEnvVars = []string{"DISCORD_TOKEN", "CORDIAL_TOKEN"}

// Duration is a time.Duration written like "90s" or "5m".
type Duration time.Duration

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(bs []byte) error {
	x, err := time.ParseDuration(strings.TrimSpace(string(bs)))
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

type REST struct {
	MaxRetries int      `yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	Timeout    Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	BucketTTL  Duration `yaml:"bucket_ttl" toml:"bucket_ttl" json:"bucket_ttl"`
}

type Gateway struct {
	ResumeWindow       Duration `yaml:"resume_window" toml:"resume_window" json:"resume_window"`
	MinBackoff         Duration `yaml:"min_backoff" toml:"min_backoff" json:"min_backoff"`
	MaxBackoff         Duration `yaml:"max_backoff" toml:"max_backoff" json:"max_backoff"`
	MaxInvalidSessions int      `yaml:"max_invalid_sessions" toml:"max_invalid_sessions" json:"max_invalid_sessions"`
	SendPerMinute      int      `yaml:"send_per_minute" toml:"send_per_minute" json:"send_per_minute"`
	SendBurst          int      `yaml:"send_burst" toml:"send_burst" json:"send_burst"`
	LargeThreshold     int      `yaml:"large_threshold" toml:"large_threshold" json:"large_threshold"`
}

type Storage struct {
	// BoltFile, if given, is where resumable session state is
	// kept.
	BoltFile string `yaml:"bolt_file" toml:"bolt_file" json:"bolt_file"`
}

type Redis struct {
	// Addr, if given, makes rate-limit windows shared through
	// Redis.
	Addr     string `yaml:"addr" toml:"addr" json:"addr"`
	Password string `yaml:"password" toml:"password" json:"-"`
	DB       int    `yaml:"db" toml:"db" json:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix" json:"prefix"`
}

type MQTT struct {
	Broker      string   `yaml:"broker" toml:"broker" json:"broker"`
	ClientID    string   `yaml:"client_id" toml:"client_id" json:"client_id"`
	Username    string   `yaml:"username" toml:"username" json:"username"`
	Password    string   `yaml:"password" toml:"password" json:"-"`
	TopicPrefix string   `yaml:"topic_prefix" toml:"topic_prefix" json:"topic_prefix"`
	KeepAlive   Duration `yaml:"keep_alive" toml:"keep_alive" json:"keep_alive"`

	// Filter is Javascript that decides which events are
	// published.  See package script.
	Filter string `yaml:"filter" toml:"filter" json:"filter"`

	// Pattern, if given, must match an event's {t, s, d} for it
	// to be published.  See package match.
	Pattern interface{} `yaml:"pattern" toml:"pattern" json:"pattern,omitempty"`
}

// CompilePattern returns nil if there's no pattern.
func (m MQTT) CompilePattern() (*match.Pattern, error) {
	if m.Pattern == nil {
		return nil, nil
	}
	return match.Compile(m.Pattern)
}

// Sink returns the broker settings the sink package wants.
func (m MQTT) Sink() sink.MQTTConfig {
	return sink.MQTTConfig{
		Broker:      m.Broker,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Password:    m.Password,
		TopicPrefix: m.TopicPrefix,
		KeepAlive:   m.KeepAlive.D(),
	}
}

type Activity struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Type  int    `yaml:"type" toml:"type" json:"type"`
	URL   string `yaml:"url" toml:"url" json:"url,omitempty"`
	State string `yaml:"state" toml:"state" json:"state,omitempty"`
}

// PresenceSchedule applies a presence at the times given by a cron
// expression.
type PresenceSchedule struct {
	Cron       string     `yaml:"cron" toml:"cron" json:"cron"`
	Status     string     `yaml:"status" toml:"status" json:"status"`
	Activities []Activity `yaml:"activities" toml:"activities" json:"activities"`
}

type Presence struct {
	Status     string             `yaml:"status" toml:"status" json:"status"`
	Activities []Activity         `yaml:"activities" toml:"activities" json:"activities"`
	Schedule   []PresenceSchedule `yaml:"schedule" toml:"schedule" json:"schedule"`
}

// Config is what a configuration file holds.
type Config struct {
	Token      string `yaml:"token" toml:"token" json:"-"`
	APIBase    string `yaml:"api_base" toml:"api_base" json:"api_base"`
	GatewayURL string `yaml:"gateway_url" toml:"gateway_url" json:"gateway_url"`
	Intents    int    `yaml:"intents" toml:"intents" json:"intents"`
	Name       string `yaml:"name" toml:"name" json:"name"`
	Shard      []int  `yaml:"shard" toml:"shard" json:"shard"`
	UserAgent  string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	Debug      bool   `yaml:"debug" toml:"debug" json:"debug"`

	REST     REST     `yaml:"rest" toml:"rest" json:"rest"`
	Gateway  Gateway  `yaml:"gateway" toml:"gateway" json:"gateway"`
	Storage  Storage  `yaml:"storage" toml:"storage" json:"storage"`
	Redis    Redis    `yaml:"redis" toml:"redis" json:"redis"`
	MQTT     MQTT     `yaml:"mqtt" toml:"mqtt" json:"mqtt"`
	Presence Presence `yaml:"presence" toml:"presence" json:"presence"`
}

// Load reads the file, applies the environment and the defaults, and
// validates the result.
func Load(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(bs, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	cfg.Env(os.LookupEnv)
	cfg.Defaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// Parse decodes TOML if ext is ".toml" and YAML otherwise.
func Parse(bs []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(bs, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(bs, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Env applies environment overrides using the given lookup (usually
// os.LookupEnv).
func (c *Config) Env(lookup func(string) (string, bool)) {
	for _, name := range TokenEnvVars {
		if v, have := lookup(name); have && v != "" {
			c.Token = v
			return
		}
	}
}

// Defaults fills in what wasn't given.
func (c *Config) Defaults() {
	if c.Name == "" {
		c.Name = gateway.DefaultName
	}
	if c.Gateway.ResumeWindow == 0 {
		c.Gateway.ResumeWindow = Duration(gateway.DefaultResumeWindow)
	}
	if c.Gateway.MinBackoff == 0 {
		c.Gateway.MinBackoff = Duration(gateway.DefaultMinBackoff)
	}
	if c.Gateway.MaxBackoff == 0 {
		c.Gateway.MaxBackoff = Duration(gateway.DefaultMaxBackoff)
	}
	if c.Gateway.MaxInvalidSessions == 0 {
		c.Gateway.MaxInvalidSessions = gateway.DefaultMaxInvalidSessions
	}
	if c.Gateway.SendPerMinute == 0 {
		c.Gateway.SendPerMinute = gateway.SendPerMinute
	}
	if c.Gateway.SendBurst == 0 {
		c.Gateway.SendBurst = gateway.SendBurst
	}
	if c.REST.MaxRetries == 0 {
		c.REST.MaxRetries = rest.DefaultMaxRetries
	}
	if c.REST.Timeout == 0 {
		c.REST.Timeout = Duration(rest.DefaultTimeout)
	}
}

var (
	NoToken     = errors.New("no token (set DISCORD_TOKEN)")
	BadDuration = errors.New("bad duration")
)

// Validate reports the first problem it finds.
func (c *Config) Validate() error {
	if c.Token == "" {
		return NoToken
	}
	for name, d := range map[string]Duration{
		"rest.timeout":          c.REST.Timeout,
		"rest.bucket_ttl":       c.REST.BucketTTL,
		"gateway.resume_window": c.Gateway.ResumeWindow,
		"gateway.min_backoff":   c.Gateway.MinBackoff,
		"gateway.max_backoff":   c.Gateway.MaxBackoff,
		"mqtt.keep_alive":       c.MQTT.KeepAlive,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", BadDuration, name)
		}
	}
	if c.Gateway.MaxBackoff < c.Gateway.MinBackoff {
		return fmt.Errorf("%w: gateway.max_backoff %s is less than min_backoff %s",
			BadDuration, c.Gateway.MaxBackoff, c.Gateway.MinBackoff)
	}
	if c.Shard != nil && len(c.Shard) != 2 {
		return fmt.Errorf("shard should be [id, count], not %v", c.Shard)
	}
	if len(c.Shard) == 2 && (c.Shard[0] < 0 || c.Shard[1] <= c.Shard[0]) {
		return fmt.Errorf("shard %v out of range", c.Shard)
	}
	if c.Gateway.SendPerMinute < 0 || c.Gateway.SendBurst < 0 {
		return errors.New("gateway send limits can't be negative")
	}
	for _, s := range c.Presence.Schedule {
		if s.Cron == "" {
			return errors.New("presence schedule without cron")
		}
	}
	return nil
}

func activities(as []Activity) []client.Activity {
	if as == nil {
		return nil
	}
	acc := make([]client.Activity, len(as))
	for i, a := range as {
		acc[i] = client.Activity{
			Name:  a.Name,
			Type:  client.ActivityType(a.Type),
			URL:   a.URL,
			State: a.State,
		}
	}
	return acc
}

// InitialPresence returns the presence to identify with, or nil if
// the file doesn't give one.
func (c *Config) InitialPresence() *client.PresenceUpdate {
	if c.Presence.Status == "" && c.Presence.Activities == nil {
		return nil
	}
	return &client.PresenceUpdate{
		Status:     c.Presence.Status,
		Activities: activities(c.Presence.Activities),
	}
}

// Update returns the presence change the schedule applies.
func (s PresenceSchedule) Update() client.PresenceUpdate {
	as := activities(s.Activities)
	if as == nil {
		// A schedule with no activities means none.
		as = client.Clear
	}
	return client.PresenceUpdate{
		Status:     s.Status,
		Activities: as,
	}
}

// ClientConfig maps the file into a client.Config.  Stores, the
// handler and the logger are left for the caller.
func (c *Config) ClientConfig() client.Config {
	cc := client.Config{
		Token:      c.Token,
		Intents:    c.Intents,
		Name:       c.Name,
		Shard:      c.Shard,
		GatewayURL: c.GatewayURL,
		Presence:   c.InitialPresence(),
		BucketTTL:  c.REST.BucketTTL.D(),
		Debug:      c.Debug,
		Session: gateway.Config{
			ResumeWindow:       c.Gateway.ResumeWindow.D(),
			MinBackoff:         c.Gateway.MinBackoff.D(),
			MaxBackoff:         c.Gateway.MaxBackoff.D(),
			MaxInvalidSessions: c.Gateway.MaxInvalidSessions,
			LargeThreshold:     c.Gateway.LargeThreshold,
		},
		REST: rest.Config{
			BaseURL:    c.APIBase,
			UserAgent:  c.UserAgent,
			Timeout:    c.REST.Timeout.D(),
			MaxRetries: c.REST.MaxRetries,
		},
	}
	if 0 < c.Gateway.SendPerMinute {
		burst := c.Gateway.SendBurst
		if burst <= 0 {
			burst = 1
		}
		cc.Session.SendLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.Gateway.SendPerMinute)), burst)
	}
	return cc
}
