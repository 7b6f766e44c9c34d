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
	"time"

	"golang.org/x/time/rate"
)

const (
	// SendPerMinute is the server's limit on outbound payloads.
	SendPerMinute = 120

	SendBurst = 5
)

// NewSendLimiter returns a limiter for outbound payloads: 120 per
// minute with a small burst.
func NewSendLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/SendPerMinute), SendBurst)
}

// NewIdentifyLimiter returns a limiter for Identify payloads: one
// every five seconds.
func NewIdentifyLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(5*time.Second), 1)
}
