package match

import (
	"encoding/json"
	"testing"

	"github.com/Comcast/cordial/gateway"
)

func parse(t *testing.T, js string) interface{} {
	t.Helper()
	var x interface{}
	if err := json.Unmarshal([]byte(js), &x); err != nil {
		t.Fatalf("%s: %v", js, err)
	}
	return x
}

func TestMatch(t *testing.T) {
	type test struct {
		pattern  string
		fact     string
		bindings Bindings
		ok       bool
		want     Bindings
	}

	tests := []test{
		{`"a"`, `"a"`, nil, true, Bindings{}},
		{`"a"`, `"b"`, nil, false, nil},
		{`1`, `1.0`, nil, true, Bindings{}},
		{`null`, `null`, nil, true, Bindings{}},
		{`null`, `0`, nil, false, nil},
		{`"?x"`, `{"a":1}`, nil, true, Bindings{"?x": map[string]interface{}{"a": float64(1)}}},
		{`"?"`, `[1,2]`, nil, true, Bindings{}},
		{`{"a":"?x"}`, `{"a":1,"b":2}`, nil, true, Bindings{"?x": float64(1)}},
		{`{"a":"?x","b":"?x"}`, `{"a":1,"b":2}`, nil, false, nil},
		{`{"a":"?x","b":"?x"}`, `{"a":2,"b":2}`, nil, true, Bindings{"?x": float64(2)}},
		{`{"a":"?x"}`, `{"a":1}`, Bindings{"?x": 1}, true, Bindings{"?x": 1}},
		{`{"a":"?x"}`, `{"a":1}`, Bindings{"?x": 2}, false, nil},
		{`{"a":1,"c":"??c"}`, `{"a":1}`, nil, true, Bindings{}},
		{`{"a":1,"c":"?c"}`, `{"a":1}`, nil, false, nil},
		{`[1,"?x"]`, `[3,1]`, nil, true, Bindings{"?x": float64(3)}},
		{`[1,1]`, `[1]`, nil, false, nil},
		{`[{"id":"?me"}]`, `[{"id":"7"},{"id":"42"}]`, Bindings{"?me": "42"}, true, Bindings{"?me": "42"}},
		{`[{"id":"?me"}]`, `[{"id":"7"}]`, Bindings{"?me": "42"}, false, nil},
		{`{"a":[]}`, `{"a":"x"}`, nil, false, nil},
	}

	for _, tc := range tests {
		bs, ok := Match(parse(t, tc.pattern), parse(t, tc.fact), tc.bindings)
		if ok != tc.ok {
			t.Errorf("%s vs %s: got %v", tc.pattern, tc.fact, ok)
			continue
		}
		if !ok {
			continue
		}
		if len(bs) != len(tc.want) {
			t.Errorf("%s vs %s: bindings %v, want %v", tc.pattern, tc.fact, bs, tc.want)
			continue
		}
		for k, v := range tc.want {
			if got, _ := json.Marshal(bs[k]); string(got) != string(mustJSON(t, v)) {
				t.Errorf("%s vs %s: %s = %s", tc.pattern, tc.fact, k, got)
			}
		}
	}
}

func mustJSON(t *testing.T, x interface{}) []byte {
	js, err := json.Marshal(x)
	if err != nil {
		t.Fatal(err)
	}
	return js
}

func TestMatchDoesNotModifyBindings(t *testing.T) {
	bs := Bindings{"?a": "1"}
	if _, ok := Match(parse(t, `{"b":"?b"}`), parse(t, `{"b":2}`), bs); !ok {
		t.Fatal("no match")
	}
	if len(bs) != 1 {
		t.Fatalf("bindings modified: %v", bs)
	}
}

func TestPatternEvent(t *testing.T) {
	p, err := Compile(map[string]interface{}{
		"t": "MESSAGE_CREATE",
		"d": map[string]interface{}{
			"guild_id": "?g",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := &gateway.Event{
		Type: "MESSAGE_CREATE",
		Seq:  3,
		Data: json.RawMessage(`{"guild_id":"99","content":"hi"}`),
	}
	bs, ok, err := p.Event(e)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("no match")
	}
	if bs["?g"] != "99" {
		t.Fatalf("bindings %v", bs)
	}

	e.Type = "TYPING_START"
	if _, ok, _ = p.Event(e); ok {
		t.Fatal("matched the wrong type")
	}

	var none *Pattern
	if _, ok, _ = none.Event(e); !ok {
		t.Fatal("nil pattern should match")
	}

	e.Data = json.RawMessage(`{`)
	e.Type = "MESSAGE_CREATE"
	if _, _, err = p.Event(e); err == nil {
		t.Fatal("expected an error for bad data")
	}
}
