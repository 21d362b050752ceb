package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	l, closer, err := New(Config{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ForComponent(l, CompPrompt).Info("prompt_sent", slog.String("pane", "%1"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"msg":"prompt_sent"`, `"component":"prompt"`, `"pane":"%1"`} {
		if !strings.Contains(got, want) {
			t.Errorf("log output missing %s: %s", want, got)
		}
	}
}

func TestForComponent_NilLoggerDiscards(t *testing.T) {
	l := ForComponent(nil, CompMux)
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected discard logger to be disabled at every level")
	}
}
