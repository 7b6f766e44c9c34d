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

package entity

import (
	"encoding/json"
	"time"
)

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`

	Extra Extra `json:"-"`
}

func (u *User) UnmarshalJSON(bs []byte) error {
	type plain User
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*u = User(p)
	u.Extra = extra
	return nil
}

// Tag is the user's display handle.
func (u *User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

type Member struct {
	User     *User      `json:"user,omitempty"`
	Nick     string     `json:"nick,omitempty"`
	Roles    []string   `json:"roles"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
	Deaf     bool       `json:"deaf"`
	Mute     bool       `json:"mute"`
	Pending  bool       `json:"pending,omitempty"`

	Extra Extra `json:"-"`
}

func (m *Member) UnmarshalJSON(bs []byte) error {
	type plain Member
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*m = Member(p)
	m.Extra = extra
	return nil
}

// Name is the nickname if there is one and otherwise the username.
func (m *Member) Name() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions string `json:"permissions"`
	Managed     bool   `json:"managed"`
	Mentionable bool   `json:"mentionable"`

	Extra Extra `json:"-"`
}

func (r *Role) UnmarshalJSON(bs []byte) error {
	type plain Role
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*r = Role(p)
	r.Extra = extra
	return nil
}

type Ban struct {
	Reason string `json:"reason"`
	User   *User  `json:"user"`
}

type VoiceRegion struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Optimal    bool   `json:"optimal"`
	Deprecated bool   `json:"deprecated"`
	Custom     bool   `json:"custom"`
}

type Invite struct {
	Code      string          `json:"code"`
	Guild     *Guild          `json:"guild,omitempty"`
	Channel   json.RawMessage `json:"channel,omitempty"`
	Inviter   *User           `json:"inviter,omitempty"`
	Uses      int             `json:"uses,omitempty"`
	MaxUses   int             `json:"max_uses,omitempty"`
	MaxAge    int             `json:"max_age,omitempty"`
	Temporary bool            `json:"temporary,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`

	Extra Extra `json:"-"`
}

func (i *Invite) UnmarshalJSON(bs []byte) error {
	type plain Invite
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*i = Invite(p)
	i.Extra = extra
	return nil
}

// GuildPreview is what anyone can see of a discoverable guild.
type GuildPreview struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	Icon                     string   `json:"icon,omitempty"`
	Description              string   `json:"description,omitempty"`
	Features                 []string `json:"features"`
	ApproximateMemberCount   int      `json:"approximate_member_count"`
	ApproximatePresenceCount int      `json:"approximate_presence_count"`

	Extra Extra `json:"-"`
}

func (g *GuildPreview) UnmarshalJSON(bs []byte) error {
	type plain GuildPreview
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*g = GuildPreview(p)
	g.Extra = extra
	return nil
}
