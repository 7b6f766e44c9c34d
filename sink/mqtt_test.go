package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/match"
	"github.com/Comcast/cordial/script"
)

type published struct {
	Topic   string
	Payload []byte
}

type fakePublisher struct {
	sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.Lock()
	defer p.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, payload})
	return nil
}

func TestMQTTPublish(t *testing.T) {
	p := &fakePublisher{}
	m := NewMQTT(p, "bot", nil)

	e := &gateway.Event{
		Type: "MESSAGE_CREATE",
		Seq:  4,
		Data: json.RawMessage(`{"content":"hi"}`),
	}
	if err := m.Publish(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(p.msgs) != 1 {
		t.Fatal(p.msgs)
	}
	if p.msgs[0].Topic != "bot/MESSAGE_CREATE" {
		t.Fatal(p.msgs[0].Topic)
	}
	if got, want := string(p.msgs[0].Payload), `{"t":"MESSAGE_CREATE","s":4,"d":{"content":"hi"}}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestMQTTDefaultPrefix(t *testing.T) {
	m := NewMQTT(&fakePublisher{}, "", nil)
	if m.Topic("READY") != "cordial/READY" {
		t.Fatal(m.Topic("READY"))
	}
}

func TestMQTTFilter(t *testing.T) {
	p := &fakePublisher{}
	m := NewMQTT(p, "bot", nil)
	f, err := script.Compile(`return _.event.t != "TYPING_START";`, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Filter = f

	ctx := context.Background()
	m.Handle(ctx, &gateway.Event{Type: "TYPING_START", Data: json.RawMessage(`{}`)})
	m.Handle(ctx, &gateway.Event{Type: "GUILD_CREATE", Data: json.RawMessage(`{}`)})

	if len(p.msgs) != 1 || p.msgs[0].Topic != "bot/GUILD_CREATE" {
		t.Fatal(p.msgs)
	}
}

func TestMQTTPublishError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMQTT(&fakePublisher{err: boom}, "bot", nil)
	err := m.Publish(context.Background(), &gateway.Event{Type: "X"})
	if !errors.Is(err, boom) {
		t.Fatal(err)
	}
	// Handle only logs.
	m.Handle(context.Background(), &gateway.Event{Type: "X"})
}

func TestChain(t *testing.T) {
	var got []string
	h := Chain(
		func(ctx context.Context, e *gateway.Event) { got = append(got, "a"+e.Type) },
		nil,
		func(ctx context.Context, e *gateway.Event) { got = append(got, "b"+e.Type) },
	)
	h(context.Background(), &gateway.Event{Type: "X"})
	if len(got) != 2 || got[0] != "aX" || got[1] != "bX" {
		t.Fatal(got)
	}
}

func TestDialMQTTNoBroker(t *testing.T) {
	if _, err := DialMQTT(context.Background(), MQTTConfig{}, nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestMQTTPattern(t *testing.T) {
	p := &fakePublisher{}
	m := NewMQTT(p, "bot", nil)

	pat, err := match.Compile(map[string]interface{}{
		"d": map[string]interface{}{"guild_id": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Pattern = pat

	ctx := context.Background()
	for _, g := range []string{"1", "2", "1"} {
		e := &gateway.Event{
			Type: "MESSAGE_CREATE",
			Data: json.RawMessage(`{"guild_id":"` + g + `"}`),
		}
		if err := m.Publish(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if len(p.msgs) != 2 {
		t.Fatalf("published %d", len(p.msgs))
	}
}
