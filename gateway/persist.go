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
	"time"

	"github.com/Comcast/cordial/storage"
)

// storeTimeout bounds each call to the SessionStore.  Persisting
// happens during shutdown too, so it doesn't use the Run context.
var storeTimeout = 5 * time.Second

// restore loads persisted state, if any, and returns when that
// session was last seen alive.
func (s *Session) restore(ctx context.Context) time.Time {
	if s.cfg.Store == nil {
		return time.Time{}
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	st, err := s.cfg.Store.GetSession(ctx, s.cfg.Name)
	if err != nil {
		s.logger.Warn().Err(err).Msg("couldn't load session state")
		return time.Time{}
	}
	if !st.Resumable(time.Now(), s.cfg.ResumeWindow) {
		return time.Time{}
	}

	s.mu.Lock()
	s.sessionID = st.SessionID
	s.sequence = st.Sequence
	s.resumeURL = st.ResumeURL
	s.mu.Unlock()

	s.logger.Info().Str("id", st.SessionID).Int64("seq", st.Sequence).Msg("restored session")
	return st.Disconnected
}

// persist writes the current state, or removes it if there's no
// session to resume.
func (s *Session) persist(at time.Time) {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	s.mu.Lock()
	st := &storage.SessionState{
		Name:         s.cfg.Name,
		SessionID:    s.sessionID,
		Sequence:     s.sequence,
		ResumeURL:    s.resumeURL,
		Disconnected: at,
	}
	s.mu.Unlock()

	var err error
	if st.SessionID == "" {
		err = s.cfg.Store.RemSession(ctx, st.Name)
	} else {
		err = s.cfg.Store.WriteSession(ctx, st)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("couldn't persist session state")
	}
}
