package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentNotify, Output: &buf})

	logger.WithUser("u-1").Info("aggregated", FieldCount, 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentNotify || entry[FieldUserID] != "u-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))

	sl.LogError(context.Background(), "fetch failed", errors.New("boom"), ComponentAlerts, OpFetch, NewFields().WithSource("bills"))

	out := buf.String()
	for _, want := range []string{"fetch failed", "error=boom", "operation=fetch", "source=bills"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if got := FromContext(context.Background()); got == nil || got.Component() != "unknown" {
		t.Fatalf("expected default logger, got %+v", got)
	}

	logger := Discard()
	req := httptest.NewRequest("GET", "/", nil)
	var seen *Logger
	h := Middleware(logger)(httpHandlerFunc(func(ctx context.Context) { seen = FromContext(ctx) }))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != logger {
		t.Errorf("middleware did not attach logger")
	}
}

type httpHandlerFunc func(ctx context.Context)

func (f httpHandlerFunc) ServeHTTP(_ http.ResponseWriter, r *http.Request) { f(r.Context()) }
