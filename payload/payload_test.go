package payload

import (
	"encoding/json"
	"testing"
)

func TestFieldsDropAbsent(t *testing.T) {
	limit := 10
	fs := Fields{
		"guild_id": "5",
		"query":    Absent,
		"limit":    Opt(&limit),
		"nonce":    Opt[string](nil),
		"channel":  nil,
	}

	js, err := json.Marshal(fs)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err = json.Unmarshal(js, &got); err != nil {
		t.Fatal(err)
	}

	if _, have := got["query"]; have {
		t.Errorf("absent query sent: %s", js)
	}
	if _, have := got["nonce"]; have {
		t.Errorf("absent nonce sent: %s", js)
	}
	if v, have := got["channel"]; !have || v != nil {
		t.Errorf("null channel not sent as null: %s", js)
	}
	if got["limit"] != float64(10) {
		t.Errorf("limit %v", got["limit"])
	}
	if got["guild_id"] != "5" {
		t.Errorf("guild_id %v", got["guild_id"])
	}
}

func TestNestedFields(t *testing.T) {
	fs := Fields{
		"d": Fields{"a": 1, "b": Absent},
	}
	js, err := json.Marshal(fs)
	if err != nil {
		t.Fatal(err)
	}
	if string(js) != `{"d":{"a":1}}` {
		t.Fatalf("got %s", js)
	}
}
