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
	"time"

	"github.com/Comcast/cordial/payload"
)

// ActivityType says what the bot is doing with an Activity.
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

type Activity struct {
	Name  string       `json:"name" yaml:"name"`
	Type  ActivityType `json:"type" yaml:"type"`
	URL   string       `json:"url,omitempty" yaml:"url"`
	State string       `json:"state,omitempty" yaml:"state"`
}

// Statuses.
const (
	StatusOnline    = "online"
	StatusIdle      = "idle"
	StatusDND       = "dnd"
	StatusInvisible = "invisible"
	StatusOffline   = "offline"
)

// Presence is what the bot last told the server about itself.
type Presence struct {
	Activities []Activity
	Status     string
	AFK        bool
	Since      *time.Time
}

// PresenceUpdate changes a Presence.  Zero values keep what's there.
//
// Activities is the exception that matters: nil keeps the stored
// activities, while an empty, non-nil slice clears them.
type PresenceUpdate struct {
	Activities []Activity
	Status     string
	AFK        *bool
	Since      *time.Time
}

// Clear is a convenience for PresenceUpdate.Activities that clears
// the activities.
var Clear = []Activity{}

// Apply returns the presence that results from the update.  p isn't
// modified.
func (p Presence) Apply(u PresenceUpdate) Presence {
	next := Presence{
		Activities: p.Activities,
		Status:     p.Status,
		AFK:        p.AFK,
		Since:      p.Since,
	}
	if u.Activities != nil {
		next.Activities = append([]Activity{}, u.Activities...)
	}
	if u.Status != "" {
		next.Status = u.Status
	}
	if u.AFK != nil {
		next.AFK = *u.AFK
	}
	if u.Since != nil {
		next.Since = u.Since
	}
	if next.Status == "" {
		next.Status = StatusOnline
	}
	return next
}

// Fields renders the presence as the Gateway wants it.  Activities
// is always a list, never null.
func (p Presence) Fields() payload.Fields {
	var since interface{}
	if p.Since != nil {
		since = p.Since.UnixMilli()
	}
	activities := p.Activities
	if activities == nil {
		activities = []Activity{}
	}
	status := p.Status
	if status == "" {
		status = StatusOnline
	}
	return payload.Fields{
		"since":      since,
		"activities": activities,
		"status":     status,
		"afk":        p.AFK,
	}
}

// copy returns a Presence that doesn't share the activities slice.
func (p Presence) copy() Presence {
	if p.Activities != nil {
		p.Activities = append([]Activity{}, p.Activities...)
	}
	return p
}
