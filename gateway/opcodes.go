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

import "fmt"

// Op identifies the kind of a Gateway frame.
type Op int

const (
	OpDispatch            Op = 0
	OpHeartbeat           Op = 1
	OpIdentify            Op = 2
	OpPresenceUpdate      Op = 3
	OpVoiceStateUpdate    Op = 4
	OpResume              Op = 6
	OpReconnect           Op = 7
	OpRequestGuildMembers Op = 8
	OpInvalidSession      Op = 9
	OpHello               Op = 10
	OpHeartbeatAck        Op = 11
)

var opNames = map[Op]string{
	OpDispatch:            "DISPATCH",
	OpHeartbeat:           "HEARTBEAT",
	OpIdentify:            "IDENTIFY",
	OpPresenceUpdate:      "PRESENCE_UPDATE",
	OpVoiceStateUpdate:    "VOICE_STATE_UPDATE",
	OpResume:              "RESUME",
	OpReconnect:           "RECONNECT",
	OpRequestGuildMembers: "REQUEST_GUILD_MEMBERS",
	OpInvalidSession:      "INVALID_SESSION",
	OpHello:               "HELLO",
	OpHeartbeatAck:        "HEARTBEAT_ACK",
}

func (op Op) String() string {
	if s, have := opNames[op]; have {
		return s
	}
	return fmt.Sprintf("OP(%d)", int(op))
}

// State is where a Session is in its lifecycle.
type State int

const (
	Disconnected State = iota
	AwaitingHello
	Identifying
	Resuming
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case AwaitingHello:
		return "AWAITING_HELLO"
	case Identifying:
		return "IDENTIFYING"
	case Resuming:
		return "RESUMING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Close codes the server uses.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// closeAction is what a close code means for the session.
type closeAction int

const (
	closeResume closeAction = iota
	closeIdentify
	closeFatal
)

func actionFor(code int) closeAction {
	switch code {
	case CloseAuthenticationFailed, CloseInvalidShard, CloseShardingRequired,
		CloseInvalidAPIVersion, CloseInvalidIntents, CloseDisallowedIntents:
		return closeFatal
	case CloseInvalidSeq, CloseSessionTimedOut:
		return closeIdentify
	}
	return closeResume
}
