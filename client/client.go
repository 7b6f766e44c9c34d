/* Copyright 2026 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package client puts a Gateway session and a governed REST
// dispatcher together under one bot identity.
//
// A Client owns both.  Nothing outside the Client mutates the
// session's state or the rate-limit governor except through the
// Client's methods (or the accessors that expose them for
// inspection).
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/payload"
	"github.com/Comcast/cordial/ratelimit"
	"github.com/Comcast/cordial/rest"
	"github.com/Comcast/cordial/storage"
	"github.com/Comcast/cordial/util"

	"github.com/rs/zerolog"
)

// DefaultGatewayURL is used when Config.GatewayURL is empty.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Config holds what's needed to make a Client.
type Config struct {
	// Token is the bot token.  Required.
	Token string

	Intents int

	// Name names the session.  See gateway.Config.
	Name string

	// Shard is optional [shard_id, shard_count].
	Shard []int

	GatewayURL string

	// Handler gets every dispatch event.
	Handler gateway.Handler

	// Store persists resumable session state.
	Store storage.SessionStore

	// Presence, if not nil, is sent with Identify.
	Presence *PresenceUpdate

	// BucketTTL, if positive, lets the governor forget idle
	// buckets.  See ratelimit.WithBucketTTL.
	BucketTTL time.Duration

	// LimitStore, if given, shares rate-limit windows with other
	// processes.
	LimitStore ratelimit.Store

	Recorder ratelimit.Recorder

	// Session tunes the Gateway session.  The fields above take
	// precedence over the corresponding fields here.
	Session gateway.Config

	// REST tunes the dispatcher.  Token and Governor are set by the
	// Client.
	REST rest.Config

	Logger *zerolog.Logger
	Debug  bool
}

// Client is a bot.
type Client struct {
	session    *gateway.Session
	dispatcher *rest.Dispatcher
	governor   *ratelimit.Governor
	bucketTTL  time.Duration
	logger     zerolog.Logger
	debug      bool

	// pmu serializes presence updates so the stored presence
	// matches what was sent last.
	pmu         sync.Mutex
	presence    Presence
	presenceSet bool
}

// New makes a Client.  Call Run to connect to the Gateway.  REST calls
// work without Run.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("client: Token is required")
	}

	c := &Client{
		bucketTTL: cfg.BucketTTL,
		logger:    util.Component(cfg.Logger, "client"),
		debug:     cfg.Debug,
	}

	opts := []ratelimit.Option{ratelimit.WithLogger(cfg.Logger)}
	if cfg.LimitStore != nil {
		opts = append(opts, ratelimit.WithStore(cfg.LimitStore))
	}
	if cfg.Recorder != nil {
		opts = append(opts, ratelimit.WithRecorder(cfg.Recorder))
	}
	if 0 < cfg.BucketTTL {
		opts = append(opts, ratelimit.WithBucketTTL(cfg.BucketTTL))
	}
	c.governor = ratelimit.NewGovernor(opts...)
	c.governor.Debug = cfg.Debug

	rc := cfg.REST
	rc.Token = cfg.Token
	rc.Governor = c.governor
	if rc.Logger == nil {
		rc.Logger = cfg.Logger
	}
	rc.Debug = rc.Debug || cfg.Debug
	d, err := rest.NewDispatcher(rc)
	if err != nil {
		return nil, err
	}
	c.dispatcher = d

	if cfg.Presence != nil {
		c.presence = c.presence.Apply(*cfg.Presence)
		c.presenceSet = true
	}

	sc := cfg.Session
	sc.Token = cfg.Token
	if cfg.GatewayURL != "" {
		sc.URL = cfg.GatewayURL
	}
	if sc.URL == "" {
		sc.URL = DefaultGatewayURL
	}
	if cfg.Intents != 0 {
		sc.Intents = cfg.Intents
	}
	if cfg.Name != "" {
		sc.Name = cfg.Name
	}
	if cfg.Shard != nil {
		sc.Shard = cfg.Shard
	}
	if cfg.Handler != nil {
		sc.Handler = cfg.Handler
	}
	if cfg.Store != nil {
		sc.Store = cfg.Store
	}
	if sc.Logger == nil {
		sc.Logger = cfg.Logger
	}
	sc.Debug = sc.Debug || cfg.Debug
	sc.Presence = c.identifyPresence

	s, err := gateway.NewSession(sc)
	if err != nil {
		return nil, err
	}
	c.session = s

	return c, nil
}

// identifyPresence gives Identify the current presence, if there is
// one.
func (c *Client) identifyPresence() interface{} {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if !c.presenceSet {
		return nil
	}
	return c.presence.Fields()
}

// Session returns the Gateway session.
func (c *Client) Session() *gateway.Session {
	return c.session
}

// Governor returns the rate-limit governor all REST calls go through.
func (c *Client) Governor() *ratelimit.Governor {
	return c.governor
}

// Dispatcher returns the REST dispatcher.
func (c *Client) Dispatcher() *rest.Dispatcher {
	return c.dispatcher
}

// Run runs the Gateway session until ctx is done, Close is called, or
// the session fails for good.  See gateway.Session.Run.
func (c *Client) Run(ctx context.Context) error {
	if 0 < c.bucketTTL {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.governor.Janitor(ctx, c.bucketTTL/2)
	}
	return c.session.Run(ctx)
}

// Close ends the Gateway session.
func (c *Client) Close() {
	c.session.Close()
}

// Presence returns the stored presence.
func (c *Client) Presence() Presence {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return c.presence.copy()
}

// UpdatePresence applies the update to the stored presence and sends
// the result.
//
// The stored presence changes even if the send fails, so a later
// Identify carries it.
func (c *Client) UpdatePresence(ctx context.Context, u PresenceUpdate) error {
	c.pmu.Lock()
	defer c.pmu.Unlock()

	next := c.presence.Apply(u)
	c.presence = next
	c.presenceSet = true
	c.logf("presence %s with %d activities", next.Status, len(next.Activities))

	p, err := gateway.BuildPayload(gateway.OpPresenceUpdate, next.Fields())
	if err != nil {
		return err
	}
	return c.session.Send(ctx, p)
}

// VoiceStateUpdate joins, moves or leaves a voice channel.
type VoiceStateUpdate struct {
	GuildID string

	// ChannelID nil means disconnect.
	ChannelID *string

	SelfMute bool
	SelfDeaf bool
}

func (c *Client) UpdateVoiceState(ctx context.Context, u VoiceStateUpdate) error {
	var channel interface{}
	if u.ChannelID != nil {
		channel = *u.ChannelID
	}
	p, err := gateway.BuildPayload(gateway.OpVoiceStateUpdate, payload.Fields{
		"guild_id":   u.GuildID,
		"channel_id": channel,
		"self_mute":  u.SelfMute,
		"self_deaf":  u.SelfDeaf,
	})
	if err != nil {
		return err
	}
	return c.session.Send(ctx, p)
}

// MemberQuery asks for guild members, which arrive as
// GUILD_MEMBERS_CHUNK events.  Unset optional fields aren't sent.
type MemberQuery struct {
	GuildID string

	// Query matches the start of usernames.  Empty matches all
	// (with Limit 0).
	Query *string

	Limit int

	Presences *bool

	UserIDs []string

	Nonce string
}

func (c *Client) RequestGuildMembers(ctx context.Context, q MemberQuery) error {
	fs := payload.Fields{
		"guild_id":  q.GuildID,
		"query":     payload.Opt(q.Query),
		"limit":     q.Limit,
		"presences": payload.Opt(q.Presences),
		"user_ids":  payload.Absent,
		"nonce":     payload.Absent,
	}
	if q.UserIDs != nil {
		fs["user_ids"] = q.UserIDs
	}
	if q.Nonce != "" {
		fs["nonce"] = q.Nonce
	}
	if q.Query == nil && q.UserIDs == nil {
		fs["query"] = ""
	}
	p, err := gateway.BuildPayload(gateway.OpRequestGuildMembers, fs)
	if err != nil {
		return err
	}
	return c.session.Send(ctx, p)
}

// Request makes a governed REST call and returns the decoded body.
func (c *Client) Request(ctx context.Context, method, route string, body interface{}) (interface{}, error) {
	return c.dispatcher.Dispatch(ctx, rest.NewRequest(method, route, body))
}

// Dispatch makes the given REST request and returns the decoded body.
func (c *Client) Dispatch(ctx context.Context, req *rest.Request) (interface{}, error) {
	return c.dispatcher.Dispatch(ctx, req)
}

// DispatchInto makes the given REST request and decodes the body into
// out.  This method makes a Client an entity.Handle.
func (c *Client) DispatchInto(ctx context.Context, req *rest.Request, out interface{}) error {
	return c.dispatcher.DispatchInto(ctx, req, out)
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.debug {
		c.logger.Debug().Msgf(format, args...)
	}
}
