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
	"fmt"

	"github.com/Comcast/cordial/payload"
)

// Payload is the Gateway envelope.  Outbound payloads leave S and T
// nil, which go out as JSON nulls.
type Payload struct {
	Op Op              `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

// BuildPayload marshals d into the data of a new envelope.  Pass a
// payload.Fields to leave optional fields out entirely.
func BuildPayload(op Op, d interface{}) (*Payload, error) {
	js, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("building %s payload: %w", op, err)
	}
	return &Payload{
		Op: op,
		D:  js,
	}, nil
}

// Type returns the dispatch event type or "".
func (p *Payload) Type() string {
	if p.T == nil {
		return ""
	}
	return *p.T
}

func parsePayload(bs []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(bs, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", MalformedFrame, err)
	}
	return &p, nil
}

// Event is a dispatch (op 0) delivered to a Handler.
type Event struct {
	Type string          `json:"t"`
	Seq  int64           `json:"s"`
	Data json.RawMessage `json:"d"`
}

// Decode unmarshals the event's data into out.
func (e *Event) Decode(out interface{}) error {
	return json.Unmarshal(e.Data, out)
}

// Properties identifies the connecting library to the server.
type Properties struct {
	OS      string `json:"os" yaml:"os"`
	Browser string `json:"browser" yaml:"browser"`
	Device  string `json:"device" yaml:"device"`
}

// DefaultProperties names this library.
var DefaultProperties = Properties{
	OS:      "linux",
	Browser: "cordial",
	Device:  "cordial",
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

func (s *Session) identifyPayload() (*Payload, error) {
	props := s.cfg.Properties
	if props == (Properties{}) {
		props = DefaultProperties
	}
	fs := payload.Fields{
		"token":           s.cfg.Token,
		"intents":         s.cfg.Intents,
		"properties":      props,
		"shard":           payload.Absent,
		"presence":        payload.Absent,
		"large_threshold": payload.Absent,
	}
	if len(s.cfg.Shard) == 2 {
		fs["shard"] = s.cfg.Shard
	}
	if s.cfg.Presence != nil {
		if p := s.cfg.Presence(); p != nil {
			fs["presence"] = p
		}
	}
	if 0 < s.cfg.LargeThreshold {
		fs["large_threshold"] = s.cfg.LargeThreshold
	}
	return BuildPayload(OpIdentify, fs)
}

func resumePayload(token, sessionID string, seq int64) (*Payload, error) {
	return BuildPayload(OpResume, payload.Fields{
		"token":      token,
		"session_id": sessionID,
		"seq":        seq,
	})
}

// heartbeatPayload carries the last sequence number seen, or null if
// there hasn't been one.
func heartbeatPayload(seq int64) (*Payload, error) {
	if seq <= 0 {
		return BuildPayload(OpHeartbeat, nil)
	}
	return BuildPayload(OpHeartbeat, seq)
}
