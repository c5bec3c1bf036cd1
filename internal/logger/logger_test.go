package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "debug", "json"), "session")

	log.Info().Str("attempt_id", "a-1").Msg("Session started")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["component"] != "session" || line["attempt_id"] != "a-1" || line["message"] != "Session started" {
		t.Fatalf("unexpected fields %v", line)
	}
}

func TestNewLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		expectDbg bool
	}{
		{level: "debug", expectDbg: true},
		{level: "warn", expectDbg: false},
		{level: "nonsense", expectDbg: false},
	}
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tc.level, "json")
			log.Debug().Msg("debug line")

			if got := strings.Contains(buf.String(), "debug line"); got != tc.expectDbg {
				t.Fatalf("expected debug output %v, got %v", tc.expectDbg, got)
			}
		})
	}
}
