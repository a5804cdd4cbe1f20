package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")

	Debug("hello", "user_id", "u-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["user_id"] != "u-1" {
		t.Fatalf("unexpected record: %v", line)
	}
	if line["service"] != "notifications" {
		t.Fatalf("service attribute missing: %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", "text")

	Info("dropped")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", "text")

	if FromContext(context.Background()) != Get() {
		t.Fatalf("expected default logger for empty context")
	}

	scoped := Get().With("request_id", "r-1")
	ctx := NewContext(context.Background(), scoped)
	FromContext(ctx).Info("scoped")

	if !strings.Contains(buf.String(), "request_id=r-1") {
		t.Fatalf("scoped attribute missing: %q", buf.String())
	}
}
