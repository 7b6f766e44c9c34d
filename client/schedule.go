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

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/Comcast/cordial/timers"

	"github.com/gorhill/cronexpr"
)

// SchedulePresence applies the update at every time the cron
// expression names.  The returned id removes the schedule via
// ts.Rem.
//
// Updates that fail (typically because the session isn't connected)
// are logged.  The stored presence still changes, so the next
// Identify carries it.
func (c *Client) SchedulePresence(ctx context.Context, ts *timers.Timers, cron string, u PresenceUpdate) (string, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return "", fmt.Errorf("presence schedule %q: %w", cron, err)
	}

	id := "presence:" + cron
	next := func(now time.Time) time.Time {
		return expr.Next(now)
	}
	err = ts.Repeat(id, next, func(_ context.Context, t *timers.Timer) {
		if err := c.UpdatePresence(ctx, u); err != nil {
			c.logger.Warn().Err(err).Str("timer", t.ID).Msg("scheduled presence")
		}
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
