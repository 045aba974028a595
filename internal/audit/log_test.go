package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"passgate.org/internal/auth"
	"passgate.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEventWithIdentity(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{Badge: 42, Role: auth.RoleAdmin})

	if err := LogEvent(ctx, "transit.create", map[string]any{"passage": 3}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" || entry["event"] != "transit.create" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["badge"] != float64(42) || entry["role"] != "admin" {
		t.Fatalf("unexpected actor: %v %v", entry["badge"], entry["role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["passage"] != float64(3) {
		t.Fatalf("unexpected fields: %v", entry["fields"])
	}
}

func TestLogEventSystemActor(t *testing.T) {
	buf := captureLog(t)

	if err := LogEvent(context.Background(), "badge.reactivated", nil); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"actor":"system"`) {
		t.Fatalf("expected system actor, got %s", buf.String())
	}
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}
