package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/writebehind"
)

func TestWritesSortedAttrsAndHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})))

	l.Debug("hidden", writebehind.Fields{"x": 1})
	l.Warn("retrying", writebehind.Fields{"queue": "users", "attempt": 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "retrying" || rec["level"] != "WARN" || rec["queue"] != "users" || rec["attempt"] != float64(2) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if strings.Index(lines[0], `"attempt"`) > strings.Index(lines[0], `"queue"`) {
		t.Fatalf("attrs not sorted: %s", lines[0])
	}
}
