package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "routed", F("attempts", 2))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["message"] != "routed" {
		t.Errorf("message = %v, want routed", e["message"])
	}
	if e["attempts"] != float64(2) {
		t.Errorf("attempts = %v, want 2", e["attempts"])
	}
	if _, ok := e["time"]; !ok {
		t.Error("entry has no time field")
	}
}

func TestLogger_WithAddsCallFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(CallMeta{
		Service:   "image",
		Instance:  "imagen-primary",
		Operation: "generate",
		RequestID: "req-1",
	})

	logger.Warn(context.Background(), "slow call")

	e := decodeLines(t, &buf)[0]
	want := map[string]string{
		"service":    "image",
		"instance":   "imagen-primary",
		"operation":  "generate",
		"request_id": "req-1",
	}
	for k, v := range want {
		if e[k] != v {
			t.Errorf("%s = %v, want %v", k, e[k], v)
		}
	}
	if _, ok := e["workflow"]; ok {
		t.Error("empty workflow should be omitted")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"debug", "info", "warn", "error"}},
		{level: "info", want: []string{"info", "warn", "error"}},
		{level: "warn", want: []string{"warn", "error"}},
		{level: "error", want: []string{"error"}},
		{level: "bogus", want: []string{"info", "warn", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "d")
			logger.Info(ctx, "i")
			logger.Warn(ctx, "w")
			logger.Error(ctx, "e")

			entries := decodeLines(t, &buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("entries = %d, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e["level"] != tt.want[i] {
					t.Errorf("entry %d level = %v, want %v", i, e["level"], tt.want[i])
				}
			}
		})
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "call",
		F("api_key", "sk-live-123"),
		F("request", map[string]any{"prompt": "secret prompt"}),
		F("service", "image"),
	)

	out := buf.String()
	if strings.Contains(out, "sk-live-123") || strings.Contains(out, "secret prompt") {
		t.Fatalf("sensitive value leaked: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want [REDACTED]", e["api_key"])
	}
	if e["service"] != "image" {
		t.Errorf("service = %v, want image", e["service"])
	}
}

func TestLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "call failed", F("error", errors.New("connection refused")))

	e := decodeLines(t, &buf)[0]
	if e["error"] != "connection refused" {
		t.Errorf("error = %v, want connection refused", e["error"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := FromZerolog(zerolog.New(&buf))

	logger.Info(context.Background(), "adapted")

	if e := decodeLines(t, &buf)[0]; e["message"] != "adapted" {
		t.Errorf("message = %v, want adapted", e["message"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info(context.Background(), "ignored", F("k", "v"))
	if logger.With(CallMeta{Service: "x"}) == nil {
		t.Fatal("With should return non-nil logger")
	}
}
