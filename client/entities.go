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
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Comcast/cordial/entity"
	"github.com/Comcast/cordial/payload"
	"github.com/Comcast/cordial/rest"
)

func (c *Client) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return entity.Fetch[entity.User](ctx, c, rest.NewRequest(http.MethodGet, "/users/"+id, nil))
}

// GetCurrentUser returns the bot's own user.
func (c *Client) GetCurrentUser(ctx context.Context) (*entity.User, error) {
	return c.GetUser(ctx, "@me")
}

// GetChannel returns the channel as its specific kind.  See
// entity.DecodeChannel.
func (c *Client) GetChannel(ctx context.Context, id string) (entity.Channel, error) {
	var raw json.RawMessage
	if err := c.DispatchInto(ctx, rest.NewRequest(http.MethodGet, "/channels/"+id, nil), &raw); err != nil {
		return nil, err
	}
	return entity.DecodeChannel(c, raw)
}

// GetGuild returns the guild.  With withCounts, the approximate
// member and presence counts are filled in.
func (c *Client) GetGuild(ctx context.Context, id string, withCounts bool) (*entity.Guild, error) {
	req := rest.NewRequest(http.MethodGet, "/guilds/"+id, nil)
	if withCounts {
		req.Query = url.Values{"with_counts": []string{"true"}}
	}
	return entity.Fetch[entity.Guild](ctx, c, req)
}

func (c *Client) GetGuildPreview(ctx context.Context, id string) (*entity.GuildPreview, error) {
	return entity.Fetch[entity.GuildPreview](ctx, c, rest.NewRequest(http.MethodGet, "/guilds/"+id+"/preview", nil))
}

// CreateGuild makes a guild owned by the bot.  fields can carry
// anything else the server accepts.
func (c *Client) CreateGuild(ctx context.Context, name string, fields payload.Fields) (*entity.Guild, error) {
	body := payload.Fields{}
	for k, v := range fields {
		body[k] = v
	}
	body["name"] = name
	return entity.Fetch[entity.Guild](ctx, c, rest.NewRequest(http.MethodPost, "/guilds", body))
}

func (c *Client) LeaveGuild(ctx context.Context, id string) error {
	req := rest.NewRequest(http.MethodDelete, "/users/@me/guilds/"+id, nil).Expect(http.StatusNoContent)
	return c.DispatchInto(ctx, req, nil)
}
