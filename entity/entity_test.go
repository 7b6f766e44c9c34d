package entity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Comcast/cordial/payload"
	"github.com/Comcast/cordial/rest"
)

func TestUserExtra(t *testing.T) {
	u, err := Build[User](nil, []byte(`{"id":"1","username":"x","discriminator":"0","flags":64,"banner":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "1" || u.Username != "x" {
		t.Fatal(u)
	}
	if string(u.Extra["flags"]) != "64" {
		t.Fatal(u.Extra)
	}
	if _, have := u.Extra["banner"]; !have {
		t.Fatal(u.Extra)
	}
	if _, have := u.Extra["id"]; have {
		t.Fatal("known key in Extra")
	}
	if u.Tag() != "x" {
		t.Fatal(u.Tag())
	}
}

func TestMemberNestedUser(t *testing.T) {
	m, err := Build[Member](nil, []byte(`{"user":{"id":"2","username":"y","pronouns":"z"},"roles":["r"],"deaf":false,"mute":false,"avatar":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != "y" {
		t.Fatal(m.Name())
	}
	if string(m.User.Extra["pronouns"]) != `"z"` {
		t.Fatal(m.User.Extra)
	}
	if _, have := m.Extra["avatar"]; !have {
		t.Fatal(m.Extra)
	}
}

func TestBuildMalformed(t *testing.T) {
	if _, err := Build[User](nil, []byte(`[1,2]`)); !errors.Is(err, rest.MalformedResponse) {
		t.Fatal(err)
	}
}

func TestDecodeChannel(t *testing.T) {
	tests := []struct {
		raw  string
		want interface{}
	}{
		{`{"id":"1","type":0,"topic":"t"}`, &TextChannel{}},
		{`{"id":"1","type":5}`, &TextChannel{}},
		{`{"id":"1","type":1,"recipients":[{"id":"9","username":"u"}]}`, &DMChannel{}},
		{`{"id":"1","type":3,"recipients":[]}`, &DMChannel{}},
		{`{"id":"1","type":2,"bitrate":64000}`, &VoiceChannel{}},
		{`{"id":"1","type":13}`, &VoiceChannel{}},
		{`{"id":"1","type":4}`, &CategoryChannel{}},
		{`{"id":"1","type":11,"thread_metadata":{"archived":true}}`, &ThreadChannel{}},
		{`{"id":"1","type":15}`, &ForumChannel{}},
		{`{"id":"1","type":16}`, &ForumChannel{}},
		{`{"id":"1","type":14}`, &UnknownChannel{}},
		{`{"id":"1","type":99}`, &UnknownChannel{}},
	}
	for _, tt := range tests {
		c, err := DecodeChannel(nil, []byte(tt.raw))
		if err != nil {
			t.Fatal(err)
		}
		if got, want := typeName(c), typeName(tt.want); got != want {
			t.Errorf("%s: got %s want %s", tt.raw, got, want)
		}
		if c.Base().ID != "1" {
			t.Errorf("%s: id %q", tt.raw, c.Base().ID)
		}
	}
}

func typeName(x interface{}) string {
	switch x.(type) {
	case *TextChannel:
		return "text"
	case *DMChannel:
		return "dm"
	case *VoiceChannel:
		return "voice"
	case *CategoryChannel:
		return "category"
	case *ThreadChannel:
		return "thread"
	case *ForumChannel:
		return "forum"
	case *UnknownChannel:
		return "unknown"
	}
	return "?"
}

func TestChannelFields(t *testing.T) {
	c, err := DecodeChannel(nil, []byte(`{"id":"1","type":0,"guild_id":"5","name":"general","topic":"hi","nsfw":true,"flags":0,"icon_emoji":{"name":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	tc := c.(*TextChannel)
	if tc.Topic != "hi" || !tc.NSFW || tc.Name != "general" || tc.GuildID != "5" {
		t.Fatal(tc)
	}
	if len(tc.Extra) != 2 {
		t.Fatal(tc.Extra)
	}
	if tc.Type.String() != "text" {
		t.Fatal(tc.Type.String())
	}
}

func TestDecodeChannelMalformed(t *testing.T) {
	if _, err := DecodeChannel(nil, []byte(`"x"`)); !errors.Is(err, rest.MalformedResponse) {
		t.Fatal(err)
	}
}

type call struct {
	Method string
	Path   string
	Query  string
	Reason string
	Body   string
}

type fake struct {
	sync.Mutex
	calls []call
	srv   *httptest.Server
}

// newFake serves canned responses keyed by "METHOD PATH".
func newFake(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*fake, Handle) {
	f := &fake{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs, _ := io.ReadAll(r.Body)
		f.Lock()
		f.calls = append(f.calls, call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Reason: r.Header.Get(HeaderAuditLogReason),
			Body:   string(bs),
		})
		f.Unlock()
		if h, have := routes[r.Method+" "+r.URL.Path]; have {
			h(w)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10000,"message":"Unknown"}`))
	}))
	t.Cleanup(f.srv.Close)

	d, err := rest.NewDispatcher(rest.Config{
		Token:   "tok",
		BaseURL: f.srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f, d
}

func (f *fake) last() call {
	f.Lock()
	defer f.Unlock()
	return f.calls[len(f.calls)-1]
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func testGuild(t *testing.T, h Handle) *Guild {
	g, err := Build[Guild](h, []byte(`{"id":"5","name":"g","owner_id":"7","premium_tier":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(g.Extra["premium_tier"]) != "2" {
		t.Fatal(g.Extra)
	}
	return g
}

func TestGuildBanNotBanned(t *testing.T) {
	_, h := newFake(t, nil)
	g := testGuild(t, h)

	b, err := g.Ban(context.Background(), "9")
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Fatal(b)
	}
}

func TestGuildBan(t *testing.T) {
	_, h := newFake(t, map[string]func(http.ResponseWriter){
		"GET /guilds/5/bans/9": reply(200, `{"reason":"spam","user":{"id":"9","username":"s"}}`),
	})
	g := testGuild(t, h)

	b, err := g.Ban(context.Background(), "9")
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || b.Reason != "spam" || b.User.ID != "9" {
		t.Fatal(b)
	}
}

func TestGuildBanMember(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"PUT /guilds/5/bans/9": reply(204, ``),
	})
	g := testGuild(t, h)

	if err := g.BanMember(context.Background(), "9", 3600, "too much spam"); err != nil {
		t.Fatal(err)
	}
	c := f.last()
	if c.Reason != "too%20much%20spam" {
		t.Fatal(c.Reason)
	}
	if c.Body != `{"delete_message_seconds":3600}` {
		t.Fatal(c.Body)
	}

	if err := g.BanMember(context.Background(), "9", 0, ""); err != nil {
		t.Fatal(err)
	}
	if c = f.last(); c.Body != `{}` || c.Reason != "" {
		t.Fatal(c)
	}
}

func TestGuildChannels(t *testing.T) {
	_, h := newFake(t, map[string]func(http.ResponseWriter){
		"GET /guilds/5/channels": reply(200, `[{"id":"1","type":0},{"id":"2","type":2},{"id":"3","type":4}]`),
	})
	g := testGuild(t, h)

	cs, err := g.Channels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 3 {
		t.Fatal(len(cs))
	}
	if _, is := cs[1].(*VoiceChannel); !is {
		t.Fatalf("%T", cs[1])
	}
}

func TestGuildCreateChannel(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"POST /guilds/5/channels": reply(201, `{"id":"8","type":0,"name":"new","topic":"x"}`),
	})
	g := testGuild(t, h)

	c, err := g.CreateChannel(context.Background(), "new", KindText, payload.Fields{"topic": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if c.(*TextChannel).Topic != "x" {
		t.Fatal(c)
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(f.last().Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != "new" || body["type"] != float64(0) || body["topic"] != "x" {
		t.Fatal(body)
	}
}

func TestGuildMembersQuery(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"GET /guilds/5/members":        reply(200, `[{"user":{"id":"1","username":"a"},"roles":[]}]`),
		"GET /guilds/5/members/search": reply(200, `[]`),
	})
	g := testGuild(t, h)

	ms, err := g.Members(context.Background(), 10, "100")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].User.Username != "a" {
		t.Fatal(ms)
	}
	if q := f.last().Query; q != "after=100&limit=10" {
		t.Fatal(q)
	}

	if _, err := g.SearchMembers(context.Background(), "ab", 0); err != nil {
		t.Fatal(err)
	}
	if q := f.last().Query; q != "query=ab" {
		t.Fatal(q)
	}
}

func TestGuildRoles(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"PUT /guilds/5/members/9/roles/3":    reply(204, ``),
		"DELETE /guilds/5/members/9/roles/3": reply(204, ``),
		"GET /guilds/5/roles":                reply(200, `[{"id":"3","name":"mod","permissions":"8"}]`),
		"POST /guilds/5/roles":               reply(200, `{"id":"4","name":"new","permissions":"0"}`),
		"DELETE /guilds/5/roles/4":           reply(204, ``),
	})
	g := testGuild(t, h)
	ctx := context.Background()

	if err := g.AddRole(ctx, "9", "3"); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveRole(ctx, "9", "3"); err != nil {
		t.Fatal(err)
	}
	if c := f.last(); c.Method != http.MethodDelete {
		t.Fatal(c)
	}
	roles, err := g.GetRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0].Permissions != "8" {
		t.Fatal(roles)
	}
	r, err := g.CreateRole(ctx, payload.Fields{"name": "new"})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
}

func TestGuildPositions(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"PATCH /guilds/5/channels": reply(204, ``),
		"PATCH /guilds/5/roles":    reply(200, `[{"id":"3","name":"mod","position":2},{"id":"4","name":"new","position":1}]`),
		"PATCH /guilds/5/roles/3":  reply(200, `{"id":"3","name":"admin","permissions":"8"}`),
	})
	g := testGuild(t, h)
	ctx := context.Background()

	if err := g.ModifyChannelPositions(ctx, []Position{{ID: "10", Position: 1}}); err != nil {
		t.Fatal(err)
	}
	if b := f.last().Body; b != `[{"id":"10","position":1}]` {
		t.Fatal(b)
	}

	roles, err := g.ModifyRolePositions(ctx, []Position{{ID: "3", Position: 2}, {ID: "4", Position: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[1].ID != "4" {
		t.Fatal(roles)
	}
	if c := f.last(); c.Method != http.MethodPatch || c.Path != "/guilds/5/roles" {
		t.Fatal(c)
	}

	r, err := g.ModifyRole(ctx, "3", payload.Fields{"name": "admin", "color": payload.Absent})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "admin" {
		t.Fatal(r)
	}
	if b := f.last().Body; b != `{"name":"admin"}` {
		t.Fatal(b)
	}
}

func TestGuildKickUnexpectedStatus(t *testing.T) {
	_, h := newFake(t, map[string]func(http.ResponseWriter){
		"DELETE /guilds/5/members/9": reply(403, `{"code":50013,"message":"Missing Permissions"}`),
	})
	g := testGuild(t, h)

	err := g.Kick(context.Background(), "9", "")
	var he *rest.HTTPError
	if !errors.As(err, &he) {
		t.Fatal(err)
	}
	if he.StatusCode != 403 || he.Code != 50013 {
		t.Fatal(he)
	}
}

func TestGuildSetNick(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"PATCH /guilds/5/members/@me": reply(200, `{}`),
	})
	g := testGuild(t, h)

	if err := g.SetNick(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if b := f.last().Body; b != `{"nick":null}` {
		t.Fatal(b)
	}
}

func TestChannelSend(t *testing.T) {
	f, h := newFake(t, map[string]func(http.ResponseWriter){
		"POST /channels/1/messages": reply(200, `{"id":"m"}`),
	})
	c, err := DecodeChannel(h, []byte(`{"id":"1","type":0}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Base().Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if b := f.last().Body; b != `{"content":"hello"}` {
		t.Fatal(b)
	}
}
