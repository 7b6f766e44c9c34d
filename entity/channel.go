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
	"fmt"
	"net/http"

	"github.com/Comcast/cordial/payload"
	"github.com/Comcast/cordial/rest"
)

// Kind is the server's channel type code.
type Kind int

const (
	KindText          Kind = 0
	KindDM            Kind = 1
	KindVoice         Kind = 2
	KindGroupDM       Kind = 3
	KindCategory      Kind = 4
	KindNews          Kind = 5
	KindStore         Kind = 6
	KindNewsThread    Kind = 10
	KindPublicThread  Kind = 11
	KindPrivateThread Kind = 12
	KindStage         Kind = 13
	KindDirectory     Kind = 14
	KindForum         Kind = 15
	KindMedia         Kind = 16
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDM:
		return "dm"
	case KindVoice:
		return "voice"
	case KindGroupDM:
		return "group_dm"
	case KindCategory:
		return "category"
	case KindNews:
		return "news"
	case KindStore:
		return "store"
	case KindNewsThread:
		return "news_thread"
	case KindPublicThread:
		return "public_thread"
	case KindPrivateThread:
		return "private_thread"
	case KindStage:
		return "stage"
	case KindDirectory:
		return "directory"
	case KindForum:
		return "forum"
	case KindMedia:
		return "media"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Channel is one of *TextChannel, *DMChannel, *VoiceChannel,
// *CategoryChannel, *ThreadChannel, *ForumChannel or *UnknownChannel.
type Channel interface {
	Base() *ChannelBase
}

// ChannelBase has what every kind of channel has.
type ChannelBase struct {
	ID       string `json:"id"`
	Type     Kind   `json:"type"`
	GuildID  string `json:"guild_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Position int    `json:"position,omitempty"`
	ParentID string `json:"parent_id,omitempty"`

	Extra Extra `json:"-"`

	h Handle
}

func (c *ChannelBase) Base() *ChannelBase {
	return c
}

func (c *ChannelBase) attach(h Handle) {
	c.h = h
}

// Modify patches the channel and returns the new version.
func (c *ChannelBase) Modify(ctx context.Context, fields payload.Fields) (Channel, error) {
	var raw json.RawMessage
	req := rest.NewRequest(http.MethodPatch, "/channels/"+c.ID, fields)
	if err := c.h.DispatchInto(ctx, req, &raw); err != nil {
		return nil, err
	}
	return DecodeChannel(c.h, raw)
}

// Delete deletes the channel (or closes a DM).
func (c *ChannelBase) Delete(ctx context.Context) error {
	req := rest.NewRequest(http.MethodDelete, "/channels/"+c.ID, nil)
	return c.h.DispatchInto(ctx, req, nil)
}

// Send posts a plain message to the channel.
func (c *ChannelBase) Send(ctx context.Context, content string) (json.RawMessage, error) {
	var raw json.RawMessage
	req := rest.NewRequest(http.MethodPost, "/channels/"+c.ID+"/messages",
		payload.Fields{"content": content})
	if err := c.h.DispatchInto(ctx, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type TextChannel struct {
	ChannelBase
	Topic            string `json:"topic,omitempty"`
	NSFW             bool   `json:"nsfw,omitempty"`
	LastMessageID    string `json:"last_message_id,omitempty"`
	RateLimitPerUser int    `json:"rate_limit_per_user,omitempty"`
}

type DMChannel struct {
	ChannelBase
	Recipients    []*User `json:"recipients"`
	OwnerID       string  `json:"owner_id,omitempty"`
	LastMessageID string  `json:"last_message_id,omitempty"`
}

type VoiceChannel struct {
	ChannelBase
	Bitrate   int    `json:"bitrate"`
	UserLimit int    `json:"user_limit"`
	RTCRegion string `json:"rtc_region,omitempty"`
}

type CategoryChannel struct {
	ChannelBase
}

type ThreadMetadata struct {
	Archived            bool   `json:"archived"`
	AutoArchiveDuration int    `json:"auto_archive_duration"`
	Locked              bool   `json:"locked"`
	ArchiveTimestamp    string `json:"archive_timestamp,omitempty"`
}

type ThreadChannel struct {
	ChannelBase
	OwnerID        string          `json:"owner_id,omitempty"`
	MessageCount   int             `json:"message_count"`
	MemberCount    int             `json:"member_count"`
	ThreadMetadata *ThreadMetadata `json:"thread_metadata,omitempty"`
}

type ForumChannel struct {
	ChannelBase
	Topic            string            `json:"topic,omitempty"`
	AvailableTags    []json.RawMessage `json:"available_tags,omitempty"`
	DefaultSortOrder *int              `json:"default_sort_order,omitempty"`
}

// UnknownChannel is any kind this package doesn't model.  Everything
// but the base fields is in Extra.
type UnknownChannel struct {
	ChannelBase
}

// DecodeChannel makes the right kind of Channel from raw JSON.
func DecodeChannel(h Handle, raw []byte) (Channel, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", rest.MalformedResponse, err)
	}

	var c Channel
	switch probe.Type {
	case KindText, KindNews:
		c = &TextChannel{}
	case KindDM, KindGroupDM:
		c = &DMChannel{}
	case KindVoice, KindStage:
		c = &VoiceChannel{}
	case KindCategory:
		c = &CategoryChannel{}
	case KindNewsThread, KindPublicThread, KindPrivateThread:
		c = &ThreadChannel{}
	case KindForum, KindMedia:
		c = &ForumChannel{}
	default:
		c = &UnknownChannel{}
	}

	extra, err := unmarshal(raw, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rest.MalformedResponse, err)
	}
	b := c.Base()
	b.Extra = extra
	b.attach(h)
	return c, nil
}

func decodeChannels(h Handle, raws []json.RawMessage) ([]Channel, error) {
	acc := make([]Channel, 0, len(raws))
	for _, raw := range raws {
		c, err := DecodeChannel(h, raw)
		if err != nil {
			return nil, err
		}
		acc = append(acc, c)
	}
	return acc, nil
}
