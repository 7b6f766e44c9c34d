package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a Gateway envelope as the fake server sees it.
type Frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

// Data decodes the frame's data generically.
func (f Frame) Data() interface{} {
	return Dwimjs([]byte(f.D))
}

// GatewayServer is a fake Gateway.  Every websocket connection it
// accepts shows up on Conns.
type GatewayServer struct {
	*httptest.Server

	// URL is the ws:// URL to dial.
	URL string

	autoAck atomic.Bool

	Conns chan *GatewayConn

	upgrader websocket.Upgrader
}

// NewGatewayServer starts a GatewayServer.  Call Close when done.
func NewGatewayServer() *GatewayServer {
	s := &GatewayServer{
		Conns: make(chan *GatewayConn, 16),
	}
	s.autoAck.Store(true)
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/?v=10&encoding=json"
	return s
}

// SetAutoAck controls whether connections accepted from now on answer
// every client heartbeat with an ACK.  The default is true.
func (s *GatewayServer) SetAutoAck(ack bool) {
	s.autoAck.Store(ack)
}

func (s *GatewayServer) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &GatewayConn{
		ws:      ws,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		autoAck: s.autoAck.Load(),
		frames:  make(chan Frame, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	s.Conns <- c
}

// Next waits for the next accepted connection.
func (s *GatewayServer) Next(timeout time.Duration) (*GatewayConn, error) {
	select {
	case c := <-s.Conns:
		return c, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no connection after %v", timeout)
	}
}

// GatewayConn is one client connection to a GatewayServer.
type GatewayConn struct {
	Path  string
	Query string

	ws      *websocket.Conn
	wmu     sync.Mutex
	autoAck bool
	frames  chan Frame

	done      chan struct{}
	closeCode int
}

func (c *GatewayConn) readLoop() {
	defer close(c.done)
	for {
		_, bs, err := c.ws.ReadMessage()
		if err != nil {
			if ce, is := err.(*websocket.CloseError); is {
				c.closeCode = ce.Code
			}
			close(c.frames)
			return
		}
		var f Frame
		if err := json.Unmarshal(bs, &f); err != nil {
			continue
		}
		if c.autoAck && f.Op == 1 {
			c.Send(11, nil)
		}
		select {
		case c.frames <- f:
		default:
		}
	}
}

// Send writes a non-dispatch frame.
func (c *GatewayConn) Send(op int, d interface{}) error {
	return c.write(map[string]interface{}{
		"op": op,
		"d":  d,
		"s":  nil,
		"t":  nil,
	})
}

// Hello sends op 10 with the given interval.
func (c *GatewayConn) Hello(interval time.Duration) error {
	return c.Send(10, map[string]interface{}{
		"heartbeat_interval": interval.Milliseconds(),
	})
}

// Dispatch sends an op 0 event.
func (c *GatewayConn) Dispatch(t string, seq int64, d interface{}) error {
	return c.write(map[string]interface{}{
		"op": 0,
		"d":  d,
		"s":  seq,
		"t":  t,
	})
}

// Ready dispatches a READY with the session id and a resume URL.
func (c *GatewayConn) Ready(seq int64, sessionID, resumeURL string) error {
	return c.Dispatch("READY", seq, map[string]interface{}{
		"v":                  10,
		"session_id":         sessionID,
		"resume_gateway_url": resumeURL,
		"user": map[string]interface{}{
			"id":       "1",
			"username": "bot",
		},
	})
}

// WriteRaw writes bytes as a text message.
func (c *GatewayConn) WriteRaw(bs []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, bs)
}

func (c *GatewayConn) write(x interface{}) error {
	js, err := json.Marshal(x)
	if err != nil {
		return err
	}
	return c.WriteRaw(js)
}

// Expect waits for the next frame with the given op, skipping others.
func (c *GatewayConn) Expect(op int, timeout time.Duration) (Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return Frame{}, fmt.Errorf("connection closed waiting for op %d", op)
			}
			if f.Op == op {
				return f, nil
			}
		case <-deadline.C:
			return Frame{}, fmt.Errorf("no op %d after %v", op, timeout)
		}
	}
}

// CloseWith sends a close frame with the code and closes the
// connection.
func (c *GatewayConn) CloseWith(code int, text string) error {
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(code, text)
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wmu.Unlock()
	time.AfterFunc(100*time.Millisecond, func() { c.ws.Close() })
	return err
}

// Drop closes the connection without a close frame.
func (c *GatewayConn) Drop() error {
	return c.ws.Close()
}

// Closed waits until the client has closed the connection and
// returns the close code the client sent, if any.
func (c *GatewayConn) Closed(timeout time.Duration) (int, error) {
	select {
	case <-c.done:
		return c.closeCode, nil
	case <-time.After(timeout):
		return 0, fmt.Errorf("still open after %v", timeout)
	}
}
