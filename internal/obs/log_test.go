package obs

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	lg := Logger()
	original := lg.Writer()
	var buf bytes.Buffer
	lg.SetOutput(&buf)
	t.Cleanup(func() { lg.SetOutput(original) })
	return &buf
}

func TestLogRequestStampsServiceAndTimestamp(t *testing.T) {
	buf := captureLog(t)

	fields := map[string]any{"level": "info", "method": "GET", "path": "/v1/events"}
	LogRequest(fields)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["service"] != ServiceName {
		t.Fatalf("service = %v, want %q", entry["service"], ServiceName)
	}
	ts, _ := entry["ts"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("ts %q not RFC 3339: %v", ts, err)
	}
	if entry["method"] != "GET" || entry["path"] != "/v1/events" {
		t.Fatalf("caller fields lost: %v", entry)
	}
	if _, ok := fields["ts"]; ok {
		t.Fatal("caller map must not be mutated")
	}
}

func TestLogRequestKeepsCallerOverrides(t *testing.T) {
	buf := captureLog(t)

	LogRequest(map[string]any{"service": "agenda-worker", "ts": "2024-03-04T10:00:00Z"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["service"] != "agenda-worker" {
		t.Fatalf("service = %v, want caller value", entry["service"])
	}
	if entry["ts"] != "2024-03-04T10:00:00Z" {
		t.Fatalf("ts = %v, want caller value", entry["ts"])
	}
}
