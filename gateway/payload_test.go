package gateway

import (
	"encoding/json"
	"testing"

	"github.com/Comcast/cordial/payload"
)

func TestBuildPayloadOmitsAbsent(t *testing.T) {
	p, err := BuildPayload(OpPresenceUpdate, payload.Fields{
		"status": "online",
		"since":  nil,
		"afk":    payload.Absent,
	})
	if err != nil {
		t.Fatal(err)
	}
	js, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(js), `{"op":3,"d":{"since":null,"status":"online"},"s":null,"t":null}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestHeartbeatPayload(t *testing.T) {
	p, err := heartbeatPayload(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(p.D) != "null" {
		t.Fatal(string(p.D))
	}
	if p, _ = heartbeatPayload(42); string(p.D) != "42" {
		t.Fatal(string(p.D))
	}
}

func TestResumePayload(t *testing.T) {
	p, err := resumePayload("tok", "abc", 12)
	if err != nil {
		t.Fatal(err)
	}
	if p.Op != OpResume {
		t.Fatal(p.Op)
	}
	if got, want := string(p.D), `{"seq":12,"session_id":"abc","token":"tok"}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestParsePayload(t *testing.T) {
	p, err := parsePayload([]byte(`{"op":0,"d":{"x":1},"s":3,"t":"READY"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Type() != "READY" || p.S == nil || *p.S != 3 {
		t.Fatal(p)
	}
	if _, err = parsePayload([]byte(`{"op":`)); err == nil {
		t.Fatal("expected an error")
	}
}

func TestGatewayURL(t *testing.T) {
	base := "wss://gateway.example.com/?v=10&encoding=json"
	tests := []struct {
		resumeURL string
		resume    bool
		want      string
	}{
		{"", true, base},
		{"wss://r.example.com", false, base},
		{"wss://r.example.com", true, "wss://r.example.com/?v=10&encoding=json"},
		{"wss://r.example.com/?v=9", true, "wss://r.example.com/?v=9"},
	}
	for _, tt := range tests {
		if got := gatewayURL(base, tt.resumeURL, tt.resume); got != tt.want {
			t.Errorf("gatewayURL(%q, %v) = %q, want %q", tt.resumeURL, tt.resume, got, tt.want)
		}
	}
}

func TestActionFor(t *testing.T) {
	for _, code := range []int{4004, 4010, 4011, 4012, 4013, 4014} {
		if actionFor(code) != closeFatal {
			t.Errorf("%d should be fatal", code)
		}
	}
	for _, code := range []int{4007, 4009} {
		if actionFor(code) != closeIdentify {
			t.Errorf("%d should identify", code)
		}
	}
	for _, code := range []int{1001, 1006, 4000, 4008} {
		if actionFor(code) != closeResume {
			t.Errorf("%d should resume", code)
		}
	}
}

func TestStrings(t *testing.T) {
	if OpHeartbeatAck.String() != "HEARTBEAT_ACK" {
		t.Fatal(OpHeartbeatAck.String())
	}
	if Op(5).String() != "OP(5)" {
		t.Fatal(Op(5).String())
	}
	if Reconnecting.String() != "RECONNECTING" {
		t.Fatal(Reconnecting.String())
	}
}
