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
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds each websocket write.
const DefaultWriteTimeout = 10 * time.Second

// link is one websocket connection.  A Session makes a new link for
// every (re)connect.
type link struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	// wmu serializes writes.  gorilla allows one concurrent writer.
	wmu sync.Mutex

	// zombie is set by the heartbeat loop when it gives up on the
	// connection.
	zombie atomic.Bool

	closeOnce sync.Once
}

func newLink(ws *websocket.Conn, writeTimeout time.Duration) *link {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &link{
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (l *link) read() (*Payload, error) {
	_, bs, err := l.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return parsePayload(bs)
}

func (l *link) write(p *Payload) error {
	js, err := json.Marshal(p)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.ws.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return l.ws.WriteMessage(websocket.TextMessage, js)
}

// close sends a close frame with the given code (if code isn't zero)
// and then closes the connection.  Only the first call does anything.
func (l *link) close(code int) {
	l.closeOnce.Do(func() {
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, "")
			l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		l.ws.Close()
	})
}
