package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "info")
	log.Info().Int("rows", 3).Msg("parsed")
	log.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if ev["message"] != "parsed" || ev["rows"] != float64(3) || ev["time"] == nil {
		t.Errorf("unexpected event %v", ev)
	}
}

func TestNew_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", "debug")
	log.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing: %q", buf.String())
	}

	buf.Reset()
	log = New(&buf, "json", "bogus")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("unknown level should default to info, got %q", buf.String())
	}
}
