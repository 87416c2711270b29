package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "debug text", cfg: Config{Level: "debug", Format: "text"}},
		{name: "uppercase", cfg: Config{Level: "WARN", Format: "JSON"}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Writer = &bytes.Buffer{}
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUser(ctx, "alice")
	ctx = WithSession(ctx, "s-2")
	logger.With("component", "test").InfoContext(ctx, "evaluated", "tool", "read_file")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log: %v\n%s", err, buf.String())
	}
	for k, want := range map[string]string{
		"request_id": "req-1",
		"user":       "alice",
		"session_id": "s-2",
		"component":  "test",
		"tool":       "read_file",
	} {
		if entry[k] != want {
			t.Errorf("%s = %v, want %q", k, entry[k], want)
		}
	}

	if GetRequestID(ctx) != "req-1" || GetUser(ctx) != "alice" || GetSession(ctx) != "s-2" {
		t.Error("context getters returned wrong values")
	}
	if GetUser(context.Background()) != "" {
		t.Error("GetUser on empty context should be empty")
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	if err != nil || lvl != slog.LevelWarn {
		t.Errorf("ParseLevel(warning) = %v, %v", lvl, err)
	}
}
