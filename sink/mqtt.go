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

// Package sink forwards Gateway events elsewhere.  The MQTT sink
// publishes each event to "<prefix>/<EVENT_TYPE>".
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/match"
	"github.com/Comcast/cordial/script"
	"github.com/Comcast/cordial/util"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	// Broker is a URL like "tcp://localhost:1883".
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`

	// TopicPrefix defaults to "cordial".
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`

	KeepAlive time.Duration `json:"keep_alive" yaml:"keep_alive"`

	// Timeout bounds connecting and each publish.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Quiesce is how long Close lets in-flight work finish.
	Quiesce time.Duration `json:"quiesce" yaml:"quiesce"`
}

// DefaultTopicPrefix is used when MQTTConfig.TopicPrefix is empty.
var DefaultTopicPrefix = "cordial"

// pahoPublisher publishes at QoS 0.
type pahoPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

func (p *pahoPublisher) Publish(topic string, payload []byte) error {
	t := p.client.Publish(topic, 0, false, payload)
	if !t.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return t.Error()
}

// MQTT is a gateway.Handler that publishes events.
type MQTT struct {
	Prefix string

	// Filter, if not nil, decides which events are published.
	Filter *script.Filter

	// Pattern, if not nil, must also match.  It's checked before
	// the Filter.
	Pattern *match.Pattern

	Debug bool

	pub     Publisher
	client  mqtt.Client
	quiesce time.Duration
	logger  zerolog.Logger
}

// NewMQTT makes a sink that publishes with pub.
func NewMQTT(pub Publisher, prefix string, logger *zerolog.Logger) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{
		Prefix: prefix,
		pub:    pub,
		logger: util.Component(logger, "sink"),
	}
}

// DialMQTT connects to the broker and returns a sink that publishes
// there.
func DialMQTT(ctx context.Context, cfg MQTTConfig, logger *zerolog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("sink: no MQTT broker")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.Quiesce <= 0 {
		cfg.Quiesce = 250 * time.Millisecond
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("cordial-%d", time.Now().UnixNano())
	}

	m := NewMQTT(nil, cfg.TopicPrefix, logger)
	m.quiesce = cfg.Quiesce

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.Username = cfg.Username
	opts.Password = cfg.Password
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		m.logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	c := mqtt.NewClient(opts)
	t := c.Connect()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-waitToken(t, cfg.Timeout):
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	if !c.IsConnected() {
		return nil, fmt.Errorf("connecting to %s timed out", cfg.Broker)
	}

	m.client = c
	m.pub = &pahoPublisher{
		client:  c,
		timeout: cfg.Timeout,
	}
	m.logger.Info().Str("broker", cfg.Broker).Str("prefix", m.Prefix).Msg("MQTT connected")
	return m, nil
}

func waitToken(t mqtt.Token, timeout time.Duration) <-chan bool {
	c := make(chan bool, 1)
	go func() {
		c <- t.WaitTimeout(timeout)
	}()
	return c
}

// Topic returns the topic for an event type.
func (m *MQTT) Topic(eventType string) string {
	return m.Prefix + "/" + eventType
}

// Message is what gets published.
type Message struct {
	T string          `json:"t"`
	S int64           `json:"s"`
	D json.RawMessage `json:"d"`
}

// Handle publishes the event unless the Filter rejects it.  Errors
// are logged.  Handle has the gateway.Handler signature.
func (m *MQTT) Handle(ctx context.Context, e *gateway.Event) {
	if err := m.Publish(ctx, e); err != nil {
		m.logger.Warn().Err(err).Str("t", e.Type).Msg("not published")
	}
}

// Publish is Handle that returns the error.
func (m *MQTT) Publish(ctx context.Context, e *gateway.Event) error {
	_, ok, err := m.Pattern.Event(e)
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if ok {
		if ok, err = m.Filter.Match(ctx, e); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	if !ok {
		if m.Debug {
			m.logger.Debug().Str("t", e.Type).Msg("filtered")
		}
		return nil
	}

	d := e.Data
	if len(d) == 0 {
		d = json.RawMessage("null")
	}
	js, err := json.Marshal(&Message{
		T: e.Type,
		S: e.Seq,
		D: d,
	})
	if err != nil {
		return err
	}
	topic := m.Topic(e.Type)
	if m.Debug {
		m.logger.Debug().Str("topic", topic).Int("bytes", len(js)).Msg("publishing")
	}
	return m.pub.Publish(topic, js)
}

// Close disconnects from the broker if DialMQTT made the connection.
func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(uint(m.quiesce / time.Millisecond))
	}
}

// Chain makes one Handler that calls each of the given ones in order.
func Chain(hs ...gateway.Handler) gateway.Handler {
	return func(ctx context.Context, e *gateway.Event) {
		for _, h := range hs {
			if h != nil {
				h(ctx, e)
			}
		}
	}
}
