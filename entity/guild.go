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
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Comcast/cordial/payload"
	"github.com/Comcast/cordial/rest"
)

// HeaderAuditLogReason carries the reason for moderation actions.
const HeaderAuditLogReason = "X-Audit-Log-Reason"

type Guild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Features    []string `json:"features,omitempty"`
	Roles       []*Role  `json:"roles,omitempty"`

	// Present only when asked for with counts.
	ApproximateMemberCount   int `json:"approximate_member_count,omitempty"`
	ApproximatePresenceCount int `json:"approximate_presence_count,omitempty"`

	Extra Extra `json:"-"`

	h Handle
}

func (g *Guild) UnmarshalJSON(bs []byte) error {
	type plain Guild
	var p plain
	extra, err := unmarshal(bs, &p)
	if err != nil {
		return err
	}
	*g = Guild(p)
	g.Extra = extra
	return nil
}

func (g *Guild) attach(h Handle) {
	g.h = h
}

func (g *Guild) route(parts ...string) string {
	r := "/guilds/" + g.ID
	for _, p := range parts {
		r += "/" + p
	}
	return r
}

func withReason(req *rest.Request, reason string) *rest.Request {
	if reason != "" {
		req.WithHeader(HeaderAuditLogReason, url.PathEscape(reason))
	}
	return req
}

// Modify patches the guild and returns the new version.
func (g *Guild) Modify(ctx context.Context, fields payload.Fields) (*Guild, error) {
	return Fetch[Guild](ctx, g.h, rest.NewRequest(http.MethodPatch, g.route(), fields))
}

// Delete deletes the guild.  The bot must own it.
func (g *Guild) Delete(ctx context.Context) error {
	req := rest.NewRequest(http.MethodDelete, g.route(), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) Channels(ctx context.Context) ([]Channel, error) {
	var raws []json.RawMessage
	if err := g.h.DispatchInto(ctx, rest.NewRequest(http.MethodGet, g.route("channels"), nil), &raws); err != nil {
		return nil, err
	}
	return decodeChannels(g.h, raws)
}

// CreateChannel makes a channel of the given kind.  fields can add
// anything else the server accepts (topic, parent_id, ...).
func (g *Guild) CreateChannel(ctx context.Context, name string, kind Kind, fields payload.Fields) (Channel, error) {
	body := payload.Fields{}
	for k, v := range fields {
		body[k] = v
	}
	body["name"] = name
	body["type"] = kind

	var raw json.RawMessage
	if err := g.h.DispatchInto(ctx, rest.NewRequest(http.MethodPost, g.route("channels"), body), &raw); err != nil {
		return nil, err
	}
	return DecodeChannel(g.h, raw)
}

// Position moves a channel or role within its guild.
type Position struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

func (g *Guild) ModifyChannelPositions(ctx context.Context, ps []Position) error {
	req := rest.NewRequest(http.MethodPatch, g.route("channels"), ps).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) Member(ctx context.Context, userID string) (*Member, error) {
	return Fetch[Member](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("members", userID), nil))
}

// Members lists up to limit members with ids after the given one.
// Zero limit and empty after use the server's defaults.
func (g *Guild) Members(ctx context.Context, limit int, after string) ([]*Member, error) {
	req := rest.NewRequest(http.MethodGet, g.route("members"), nil)
	req.Query = url.Values{}
	if 0 < limit {
		req.Query.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		req.Query.Set("after", after)
	}
	return FetchAll[Member](ctx, g.h, req)
}

// SearchMembers finds members whose username or nickname starts with
// query.
func (g *Guild) SearchMembers(ctx context.Context, query string, limit int) ([]*Member, error) {
	req := rest.NewRequest(http.MethodGet, g.route("members", "search"), nil)
	req.Query = url.Values{"query": []string{query}}
	if 0 < limit {
		req.Query.Set("limit", strconv.Itoa(limit))
	}
	return FetchAll[Member](ctx, g.h, req)
}

func (g *Guild) ModifyMember(ctx context.Context, userID string, fields payload.Fields) (*Member, error) {
	return Fetch[Member](ctx, g.h, rest.NewRequest(http.MethodPatch, g.route("members", userID), fields))
}

// SetNick changes the bot's own nickname.  An empty nick resets it.
func (g *Guild) SetNick(ctx context.Context, nick string) error {
	var nickField interface{} = nick
	if nick == "" {
		nickField = nil
	}
	req := rest.NewRequest(http.MethodPatch, g.route("members", "@me"), payload.Fields{"nick": nickField})
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) AddRole(ctx context.Context, userID, roleID string) error {
	req := rest.NewRequest(http.MethodPut, g.route("members", userID, "roles", roleID), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) RemoveRole(ctx context.Context, userID, roleID string) error {
	req := rest.NewRequest(http.MethodDelete, g.route("members", userID, "roles", roleID), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) Kick(ctx context.Context, userID, reason string) error {
	req := rest.NewRequest(http.MethodDelete, g.route("members", userID), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, withReason(req, reason), nil)
}

func (g *Guild) Bans(ctx context.Context) ([]*Ban, error) {
	return FetchAll[Ban](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("bans"), nil))
}

// Ban returns the ban for the user, or nil if the user isn't banned.
func (g *Guild) Ban(ctx context.Context, userID string) (*Ban, error) {
	b, err := Fetch[Ban](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("bans", userID), nil))
	if rest.IsHTTPStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	return b, err
}

// BanMember bans a user and deletes that many seconds of their recent
// messages.
func (g *Guild) BanMember(ctx context.Context, userID string, deleteMessageSeconds int, reason string) error {
	body := payload.Fields{
		"delete_message_seconds": payload.Absent,
	}
	if 0 < deleteMessageSeconds {
		body["delete_message_seconds"] = deleteMessageSeconds
	}
	req := rest.NewRequest(http.MethodPut, g.route("bans", userID), body).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, withReason(req, reason), nil)
}

func (g *Guild) Unban(ctx context.Context, userID, reason string) error {
	req := rest.NewRequest(http.MethodDelete, g.route("bans", userID), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, withReason(req, reason), nil)
}

func (g *Guild) GetRoles(ctx context.Context) ([]*Role, error) {
	return FetchAll[Role](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("roles"), nil))
}

func (g *Guild) CreateRole(ctx context.Context, fields payload.Fields) (*Role, error) {
	return Fetch[Role](ctx, g.h, rest.NewRequest(http.MethodPost, g.route("roles"), fields))
}

// ModifyRole patches a role (name, permissions, color, hoist,
// mentionable) and returns the new version.
func (g *Guild) ModifyRole(ctx context.Context, roleID string, fields payload.Fields) (*Role, error) {
	return Fetch[Role](ctx, g.h, rest.NewRequest(http.MethodPatch, g.route("roles", roleID), fields))
}

// ModifyRolePositions reorders roles and returns all of the guild's
// roles.
func (g *Guild) ModifyRolePositions(ctx context.Context, ps []Position) ([]*Role, error) {
	return FetchAll[Role](ctx, g.h, rest.NewRequest(http.MethodPatch, g.route("roles"), ps))
}

func (g *Guild) DeleteRole(ctx context.Context, roleID string) error {
	req := rest.NewRequest(http.MethodDelete, g.route("roles", roleID), nil).Expect(http.StatusNoContent)
	return g.h.DispatchInto(ctx, req, nil)
}

func (g *Guild) VoiceRegions(ctx context.Context) ([]*VoiceRegion, error) {
	return FetchAll[VoiceRegion](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("regions"), nil))
}

func (g *Guild) Invites(ctx context.Context) ([]*Invite, error) {
	return FetchAll[Invite](ctx, g.h, rest.NewRequest(http.MethodGet, g.route("invites"), nil))
}
