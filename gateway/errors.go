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
	"errors"
	"fmt"
)

var (
	// NotConnected is returned by Send when there's no session
	// ready to take the payload.
	NotConnected = errors.New("gateway not connected")

	// AlreadyRunning is returned by Run if the Session is already
	// running.
	AlreadyRunning = errors.New("gateway session already running")

	// SessionInvalid is wrapped by the error Run returns after too
	// many consecutive Invalid Session frames.
	SessionInvalid = errors.New("gateway session invalid")

	// MalformedFrame is wrapped by errors about frames that aren't
	// valid envelopes.
	MalformedFrame = errors.New("malformed gateway frame")
)

// CloseError is a close code that ends the Session for good: bad
// token, bad shard, bad intents and the like.
type CloseError struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("gateway closed with %d: %s", e.Code, e.Text)
}
