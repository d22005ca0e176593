package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("debug parsed as %v", got)
	}
	if got := ParseLevel("WARNING"); got != slog.LevelWarn {
		t.Fatalf("WARNING parsed as %v", got)
	}
	if got := ParseLevel(" error "); got != slog.LevelError {
		t.Fatalf("padded error parsed as %v", got)
	}
	if got := ParseLevel("verbose"); got != slog.LevelInfo {
		t.Fatalf("unknown level should fall back to info, got %v", got)
	}
	if got := ParseLevel(""); got != slog.LevelInfo {
		t.Fatalf("empty level should fall back to info, got %v", got)
	}
}

func TestComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	Component(base, "ingest").Info("connected", "addr", "127.0.0.1:8765")

	line := buf.String()
	if !strings.Contains(line, `"component":"ingest"`) {
		t.Fatalf("component attr missing from line: %s", line)
	}
	if !strings.Contains(line, `"addr":"127.0.0.1:8765"`) {
		t.Fatalf("call-site attrs lost: %s", line)
	}
}

func TestComponentNilLogger(t *testing.T) {
	if got := Component(nil, "engine"); got != nil {
		t.Fatalf("nil logger should stay nil, got %v", got)
	}
}
