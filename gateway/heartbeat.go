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
	"math/rand"
	"time"
)

// heartbeat sends heartbeats on l until ctx is done.  The first beat
// comes after a random fraction of the interval.
//
// If the previous beat is still unacknowledged when the next one is
// due, the connection is marked a zombie and closed.  The receive loop
// then sees the read fail and the Session resumes on a new
// connection.
func (s *Session) heartbeat(ctx context.Context, l *link, interval time.Duration) {
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if s.ackPending {
			s.mu.Unlock()
			s.logger.Warn().Dur("interval", interval).Msg("heartbeat not acknowledged")
			l.zombie.Store(true)
			l.close(CloseUnknownError)
			return
		}
		s.ackPending = true
		seq := s.sequence
		s.mu.Unlock()

		p, err := heartbeatPayload(seq)
		if err != nil {
			s.logger.Error().Err(err).Msg("heartbeat")
			return
		}
		if err := l.write(p); err != nil {
			// The receive loop will see the connection fail.
			s.logf("heartbeat write failed: %v", err)
			return
		}
		s.logf("heartbeat seq=%d", seq)

		timer.Reset(interval)
	}
}
