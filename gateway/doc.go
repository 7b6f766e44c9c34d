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

// Package gateway implements a Session on the platform's realtime
// Gateway: a persistent websocket that streams events to the
// application and accepts a few control payloads.
//
// A Session is a state machine:
//
//	DISCONNECTED -> AWAITING_HELLO            dial
//	AWAITING_HELLO -> IDENTIFYING | RESUMING  Hello, heartbeats start
//	IDENTIFYING | RESUMING -> CONNECTED       READY or RESUMED
//	CONNECTED -> RECONNECTING                 Reconnect, Invalid Session,
//	                                          socket error, zombie
//	RECONNECTING -> AWAITING_HELLO            after a delay
//
// Run drives the machine until its context is done, Close is called,
// or something unrecoverable happens (a fatal close code or too many
// invalid sessions in a row).
//
// Dispatch events are handed to the Handler from the receive loop
// itself, one at a time, in the order received.  A slow Handler
// delays the next event (and the next heartbeat acknowledgement that
// the loop reads), so hand long work off to another goroutine.
//
// The heartbeat loop runs in its own goroutine for the lifetime of
// each connection.  If a heartbeat goes unacknowledged for a whole
// interval, the connection is considered a zombie: it is closed and
// the session resumes on a new one.
//
// Send is safe to call from any goroutine.  All writes to a
// connection are serialized.
package gateway
