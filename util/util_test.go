package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogf(t *testing.T) {
	var buf bytes.Buffer
	saved, was := Log, Logging
	defer func() {
		Log, Logging = saved, was
	}()
	Log = zerolog.New(&buf).Level(zerolog.DebugLevel)

	Logging = false
	Logf("quiet %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}

	Logging = true
	Logf("loud %d", 2)
	if !strings.Contains(buf.String(), "loud 2") {
		t.Fatalf("missing output in %q", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	c := Component(&l, "gateway")
	c.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"gateway"`) {
		t.Fatalf("missing component in %q", buf.String())
	}
}

func TestJS(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{
			name: "map",
			arg:  map[string]interface{}{"op": 1},
			want: `{"op":1}`,
		},
		{
			name: "unmarshalable",
			arg:  func() {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JS(tt.arg)
			if tt.want != "" && got != tt.want {
				t.Errorf("JS() = %v, want %v", got, tt.want)
			}
			if got == "" {
				t.Errorf("JS() returned nothing")
			}
		})
	}
}
