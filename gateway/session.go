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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/cordial/storage"
	"github.com/Comcast/cordial/util"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// DefaultResumeWindow is how long after a disconnect we'll
	// still try to resume.
	DefaultResumeWindow = 5 * time.Minute

	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 60 * time.Second

	// DefaultMaxInvalidSessions is the number of consecutive
	// Invalid Session frames Run tolerates.
	DefaultMaxInvalidSessions = 5

	// DefaultName is the session name used as the storage key.
	DefaultName = "main"
)

// Handler receives dispatch events.
type Handler func(ctx context.Context, e *Event)

// Config holds what's needed to make a Session.
type Config struct {
	// URL is the Gateway URL including its query ("?v=10&encoding=json").
	URL string

	// Token is the bot token.
	Token string

	Intents int

	// Name keys persisted state.  Defaults to DefaultName.
	Name string

	// Shard is optional [shard_id, shard_count].
	Shard []int

	// Properties defaults to DefaultProperties.
	Properties Properties

	// Presence, if given, supplies the presence sent with Identify.
	// Returning nil leaves the field out.
	Presence func() interface{}

	LargeThreshold int

	Handler Handler

	// OnStateChange, if given, is called on every transition.  It's
	// called synchronously, so it shouldn't block.
	OnStateChange func(from, to State)

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Store, if given, persists session id, sequence and resume URL
	// so a restarted process can resume.
	Store storage.SessionStore

	ResumeWindow time.Duration

	MinBackoff time.Duration
	MaxBackoff time.Duration

	MaxInvalidSessions int

	// InvalidSessionDelay returns how long to wait after an Invalid
	// Session frame.  Defaults to a random 1-5s.
	InvalidSessionDelay func() time.Duration

	// SendLimiter gates Send.  Defaults to NewSendLimiter().
	SendLimiter *rate.Limiter

	// IdentifyLimiter gates Identify.  Defaults to
	// NewIdentifyLimiter().
	IdentifyLimiter *rate.Limiter

	WriteTimeout time.Duration

	Logger *zerolog.Logger
	Debug  bool
}

// Session is a Gateway session.
type Session struct {
	cfg    Config
	logger zerolog.Logger

	sendLimiter     *rate.Limiter
	identifyLimiter *rate.Limiter

	running int32
	closing atomic.Bool

	mu sync.Mutex

	// The following are protected by mu.
	state      State
	sessionID  string
	sequence   int64
	resumeURL  string
	ackPending bool
	interval   time.Duration
	lastAck    time.Time
	link       *link
	cancel     context.CancelFunc
}

// NewSession makes a Session.  Call Run to connect.
func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway: URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("gateway: Token is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ResumeWindow == 0 {
		cfg.ResumeWindow = DefaultResumeWindow
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.MinBackoff {
			cfg.MaxBackoff = cfg.MinBackoff
		}
	}
	if cfg.MaxInvalidSessions <= 0 {
		cfg.MaxInvalidSessions = DefaultMaxInvalidSessions
	}
	if cfg.InvalidSessionDelay == nil {
		cfg.InvalidSessionDelay = func() time.Duration {
			return time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
		}
	}

	s := &Session{
		cfg:             cfg,
		logger:          util.Component(cfg.Logger, "gateway").With().Str("session", cfg.Name).Logger(),
		sendLimiter:     cfg.SendLimiter,
		identifyLimiter: cfg.IdentifyLimiter,
	}
	if s.sendLimiter == nil {
		s.sendLimiter = NewSendLimiter()
	}
	if s.identifyLimiter == nil {
		s.identifyLimiter = NewIdentifyLimiter()
	}
	return s, nil
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.cfg.Debug {
		s.logger.Debug().Msgf(format, args...)
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the current session id, which is empty if there
// isn't a resumable session.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Sequence returns the last sequence number seen.
func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Interval returns the heartbeat interval the server asked for.
func (s *Session) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logf("state %s -> %s", from, to)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
}

// Send writes a payload on the current connection.  Send waits on
// the send limiter and fails with NotConnected unless the Session is
// CONNECTED.
func (s *Session) Send(ctx context.Context, p *Payload) error {
	if err := s.sendLimiter.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	l, state := s.link, s.state
	s.mu.Unlock()
	if l == nil || state != Connected {
		return NotConnected
	}
	s.logf("send %s", p.Op)
	return l.write(p)
}

// Close ends a running Session with a normal close, which tells the
// server the session won't be resumed.  A Close before Run makes that
// Run return nil without connecting.
func (s *Session) Close() {
	s.closing.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// outcome says how a connection ended and what to do next.
type outcome struct {
	// resumable means the session id and sequence are still good.
	resumable bool

	// connected means the connection reached CONNECTED.
	connected bool

	// invalid means the server sent Invalid Session.
	invalid bool

	// immediate means reconnect without waiting.
	immediate bool

	// delay, if not zero, is the wait before reconnecting.
	delay time.Duration

	// err is fatal.
	err error
}

// Run connects and keeps the Session going until ctx is done, Close
// is called, or a fatal error occurs.
//
// Run returns nil after Close and ctx.Err() when ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return AlreadyRunning
	}
	defer atomic.StoreInt32(&s.running, 0)
	defer s.closing.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	// Closed before we got going.
	if s.closing.Load() {
		s.setState(Disconnected)
		return nil
	}

	disconnected := s.restore(ctx)

	var (
		backoff = s.cfg.MinBackoff
		invalid int
	)

	for {
		resume := s.canResume(time.Now(), disconnected)
		o := s.connect(ctx, resume)
		disconnected = time.Now()

		if o.connected {
			backoff = s.cfg.MinBackoff
			if !o.invalid {
				invalid = 0
			}
		}
		if !o.resumable {
			s.forget()
		}

		if s.closing.Load() {
			s.forget()
			s.persist(disconnected)
			s.setState(Disconnected)
			return nil
		}
		s.persist(disconnected)

		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}

		if o.err != nil {
			s.logger.Error().Err(o.err).Msg("session ended")
			s.setState(Disconnected)
			return o.err
		}

		if o.invalid {
			invalid++
			if s.cfg.MaxInvalidSessions <= invalid {
				s.setState(Disconnected)
				return fmt.Errorf("%w: %d in a row", SessionInvalid, invalid)
			}
		}

		s.setState(Reconnecting)

		var wait time.Duration
		switch {
		case o.immediate:
		case 0 < o.delay:
			wait = o.delay
		default:
			wait = jitter(backoff)
			if backoff *= 2; s.cfg.MaxBackoff < backoff {
				backoff = s.cfg.MaxBackoff
			}
		}
		s.logf("reconnecting in %v (resume %v)", wait, o.resumable)

		if 0 < wait {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// jitter returns a duration in [d/2, d].
func jitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func (s *Session) canResume(now, disconnected time.Time) bool {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()
	if id == "" {
		return false
	}
	if disconnected.IsZero() || s.cfg.ResumeWindow < 0 {
		return true
	}
	return now.Sub(disconnected) <= s.cfg.ResumeWindow
}

// forget drops the session id and sequence so the next connection
// identifies from scratch.
func (s *Session) forget() {
	s.mu.Lock()
	s.sessionID = ""
	s.sequence = 0
	s.resumeURL = ""
	s.mu.Unlock()
}

// connect makes one connection and runs it until it ends.
func (s *Session) connect(ctx context.Context, resume bool) outcome {
	s.setState(AwaitingHello)

	s.mu.Lock()
	target := gatewayURL(s.cfg.URL, s.resumeURL, resume)
	s.mu.Unlock()

	s.logf("dialing %s", target)
	ws, _, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", target).Msg("dial failed")
		return outcome{resumable: true}
	}

	l := newLink(ws, s.cfg.WriteTimeout)

	cctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	defer func() {
		cancel()
		wg.Wait()
		l.close(0)
		s.mu.Lock()
		if s.link == l {
			s.link = nil
		}
		s.ackPending = false
		s.mu.Unlock()
	}()

	// Unblock the reader when we're told to stop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-cctx.Done()
		if s.closing.Load() {
			l.close(websocket.CloseNormalClosure)
		} else {
			l.close(CloseUnknownError)
		}
	}()

	p, err := l.read()
	if err != nil {
		return s.readFailure(ctx, l, err, false)
	}
	if p.Op != OpHello {
		s.logger.Warn().Stringer("op", p.Op).Msg("expected HELLO")
		return outcome{resumable: true}
	}
	var h hello
	if err := json.Unmarshal(p.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		s.logger.Warn().Err(err).RawJSON("d", p.D).Msg("bad HELLO")
		return outcome{resumable: true}
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond

	s.mu.Lock()
	s.interval = interval
	s.link = l
	s.ackPending = false
	sessionID, seq := s.sessionID, s.sequence
	s.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(cctx, l, interval)
	}()

	if resume {
		s.setState(Resuming)
		rp, err := resumePayload(s.cfg.Token, sessionID, seq)
		if err == nil {
			err = l.write(rp)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("resume failed")
			return outcome{resumable: true}
		}
	} else {
		if err := s.identifyLimiter.Wait(ctx); err != nil {
			return outcome{}
		}
		s.forget()
		s.setState(Identifying)
		ip, err := s.identifyPayload()
		if err != nil {
			return outcome{err: err}
		}
		if err := l.write(ip); err != nil {
			s.logger.Warn().Err(err).Msg("identify failed")
			return outcome{}
		}
	}

	connected := false
	for {
		p, err := l.read()
		if err != nil {
			if errors.Is(err, MalformedFrame) {
				s.logger.Warn().Err(err).Msg("ignoring frame")
				continue
			}
			return s.readFailure(ctx, l, err, connected)
		}

		switch p.Op {
		case OpDispatch:
			if s.dispatch(ctx, p) {
				connected = true
			}
		case OpHeartbeat:
			s.mu.Lock()
			seq := s.sequence
			s.mu.Unlock()
			if hp, err := heartbeatPayload(seq); err == nil {
				if err := l.write(hp); err != nil {
					s.logger.Warn().Err(err).Msg("requested heartbeat failed")
				}
			}
		case OpHeartbeatAck:
			s.mu.Lock()
			s.ackPending = false
			s.lastAck = time.Now()
			s.mu.Unlock()
		case OpReconnect:
			s.logger.Info().Msg("server requested reconnect")
			return outcome{
				resumable: true,
				connected: connected,
				immediate: true,
			}
		case OpInvalidSession:
			var resumable bool
			json.Unmarshal(p.D, &resumable)
			s.logger.Info().Bool("resumable", resumable).Msg("invalid session")
			return outcome{
				resumable: resumable,
				connected: connected,
				invalid:   true,
				delay:     s.cfg.InvalidSessionDelay(),
			}
		default:
			s.logf("ignoring %s", p.Op)
		}
	}
}

// dispatch records the sequence and hands the event to the Handler.
// It returns true if the event completed a handshake.
func (s *Session) dispatch(ctx context.Context, p *Payload) bool {
	t := p.Type()
	handshake := false

	s.mu.Lock()
	switch t {
	case "READY":
		var r ready
		if err := json.Unmarshal(p.D, &r); err != nil {
			s.logger.Warn().Err(err).Msg("bad READY")
		}
		s.sessionID = r.SessionID
		s.resumeURL = r.ResumeGatewayURL
		if p.S != nil {
			s.sequence = *p.S
		}
		handshake = true
	case "RESUMED":
		handshake = true
	}
	if p.S != nil && s.sequence < *p.S {
		s.sequence = *p.S
	}
	seq := s.sequence
	s.mu.Unlock()

	if handshake {
		s.setState(Connected)
		s.persist(time.Now())
	}

	if s.cfg.Handler != nil {
		s.cfg.Handler(ctx, &Event{
			Type: t,
			Seq:  seq,
			Data: p.D,
		})
	}
	return handshake
}

// readFailure classifies a read error.
func (s *Session) readFailure(ctx context.Context, l *link, err error, connected bool) outcome {
	if l.zombie.Load() {
		s.logger.Warn().Msg("connection zombied")
		return outcome{resumable: true, connected: connected}
	}
	if ctx.Err() != nil {
		return outcome{resumable: true, connected: connected}
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		s.logger.Warn().Int("code", ce.Code).Str("text", ce.Text).Msg("server closed connection")
		switch actionFor(ce.Code) {
		case closeFatal:
			return outcome{
				connected: connected,
				err:       &CloseError{Code: ce.Code, Text: ce.Text},
			}
		case closeIdentify:
			return outcome{connected: connected}
		}
		return outcome{resumable: true, connected: connected}
	}

	s.logger.Warn().Err(err).Msg("read failed")
	return outcome{resumable: true, connected: connected}
}

// gatewayURL returns the URL to dial.  A resume uses the server's
// resume URL with the configured query.
func gatewayURL(base, resumeURL string, resume bool) string {
	if !resume || resumeURL == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return base
	}
	r, err := url.Parse(resumeURL)
	if err != nil {
		return base
	}
	if r.RawQuery == "" {
		r.RawQuery = b.RawQuery
	}
	if r.Path == "" {
		r.Path = b.Path
	}
	return r.String()
}
