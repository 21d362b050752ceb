package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timvw/pane-relay/internal/lock"
	"github.com/timvw/pane-relay/internal/model"
)

func TestPromptPath(t *testing.T) {
	s := NewSender("/work", nil, nil)
	if got, want := s.PromptPath("%3"), "/work/.opencode/prompts/%3.prompt.input"; got != want {
		t.Errorf("PromptPath = %q, want %q", got, want)
	}
	if got, want := s.LockPath("%3"), "/work/.opencode/prompts/%3.prompt.input.lock"; got != want {
		t.Errorf("LockPath = %q, want %q", got, want)
	}
}

func TestSendThenReadRoundTrip(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	ctx := context.Background()

	for _, content := range []string{
		"",
		"hello",
		"line one\nline two\n",
		"# not a header\n\nbody",
		"unicode: héllo ✓",
		strings.Repeat("x", 1<<16),
	} {
		if err := s.SendPrompt(ctx, "%1", content); err != nil {
			t.Fatalf("SendPrompt: %v", err)
		}
		got, err := s.ReadPrompt(ctx, "%1")
		if err != nil {
			t.Fatalf("ReadPrompt: %v", err)
		}
		if got != content {
			t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(content))
		}
	}
}

func TestSendOverwrites(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	ctx := context.Background()

	_ = s.SendPrompt(ctx, "%1", "first, and much longer")
	_ = s.SendPrompt(ctx, "%1", "second")

	got, err := s.ReadPrompt(ctx, "%1")
	if err != nil || got != "second" {
		t.Errorf("ReadPrompt = %q, %v; want last write", got, err)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	_, err := s.ReadPrompt(context.Background(), "%7")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	ctx := context.Background()

	if err := s.ClearPrompt(ctx, "%1"); err != nil {
		t.Fatalf("clear missing: %v", err)
	}
	_ = s.SendPrompt(ctx, "%1", "x")
	if err := s.ClearPrompt(ctx, "%1"); err != nil {
		t.Fatalf("first clear: %v", err)
	}
	if err := s.ClearPrompt(ctx, "%1"); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := s.ReadPrompt(ctx, "%1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestOperationsFailWhileLockHeld(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	ctx := context.Background()
	_ = s.SendPrompt(ctx, "%1", "original")

	held, err := lock.Acquire(s.LockPath("%1"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SendPrompt(ctx, "%1", "intruder"); !errors.Is(err, model.ErrProcess) {
		t.Errorf("SendPrompt under foreign lock: expected ErrProcess, got %v", err)
	}
	if _, err := s.ReadPrompt(ctx, "%1"); !errors.Is(err, model.ErrProcess) {
		t.Errorf("ReadPrompt under foreign lock: expected ErrProcess, got %v", err)
	}
	held.Release()

	got, err := s.ReadPrompt(ctx, "%1")
	if err != nil || got != "original" {
		t.Errorf("ReadPrompt after release = %q, %v", got, err)
	}
}

func TestInvalidPaneID(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	for _, pane := range []model.PaneID{"", "../escape", ".."} {
		if err := s.SendPrompt(context.Background(), pane, "x"); !errors.Is(err, model.ErrIO) {
			t.Errorf("SendPrompt(%q): expected ErrIO, got %v", pane, err)
		}
	}
}

func TestSendWithMetadata(t *testing.T) {
	dir := t.TempDir()
	s := NewSender(dir, nil, nil)
	ctx := context.Background()
	meta := model.PromptMetadata{SessionID: "$2", Timestamp: 1712345678, Agent: "reviewer"}

	if err := s.SendPromptWithMetadata(ctx, "%5", "look at\nthis diff", meta); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, ".opencode", "prompts", "%5.prompt.input"))
	if err != nil {
		t.Fatal(err)
	}
	want := "# session: $2\n# timestamp: 1712345678\n# agent: reviewer\n\nlook at\nthis diff"
	if string(raw) != want {
		t.Errorf("file content:\n%q\nwant\n%q", raw, want)
	}

	content, got, err := s.ReadPromptWithMetadata(ctx, "%5")
	if err != nil {
		t.Fatal(err)
	}
	if content != "look at\nthis diff" || got == nil || *got != meta {
		t.Errorf("ReadPromptWithMetadata = %q, %+v", content, got)
	}
}

func TestSendWithMetadata_RejectsLineBreaks(t *testing.T) {
	tests := []struct {
		name string
		meta model.PromptMetadata
	}{
		{"agent newline", model.PromptMetadata{SessionID: "$1", Timestamp: 1, Agent: "planner\nv2"}},
		{"agent carriage return", model.PromptMetadata{SessionID: "$1", Timestamp: 1, Agent: "planner\rv2"}},
		{"session newline", model.PromptMetadata{SessionID: "$1\n# agent: x", Timestamp: 1, Agent: "planner"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewSender(dir, nil, nil)

			err := s.SendPromptWithMetadata(context.Background(), "%1", "body", tt.meta)
			if !errors.Is(err, model.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if _, err := os.Stat(s.PromptPath("%1")); !os.IsNotExist(err) {
				t.Errorf("inbox written despite invalid metadata: %v", err)
			}
		})
	}
}

func TestReadWithMetadata_PlainPromptWithHeaderPrefix(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	ctx := context.Background()
	raw := "# session: notes for today\nremember the release"

	if err := s.SendPrompt(ctx, "%3", raw); err != nil {
		t.Fatal(err)
	}
	content, meta, err := s.ReadPromptWithMetadata(ctx, "%3")
	if err != nil {
		t.Fatalf("ReadPromptWithMetadata: %v", err)
	}
	if content != raw || meta != nil {
		t.Errorf("got %q, meta %+v; want raw content and no metadata", content, meta)
	}
}

func TestParsePrompt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		content string
		hasMeta bool
	}{
		{"plain", "just text", "just text", false},
		{"empty", "", "", false},
		{"header and empty body", "# session: $0\n# timestamp: 1\n# agent: a\n\n", "", true},
		{"header and body", "# session: $0\n# timestamp: 1\n# agent: a\n\nx\ny", "x\ny", true},
		{"header without body separator", "# session: $0\n# timestamp: 1\n# agent: a\n", "# session: $0\n# timestamp: 1\n# agent: a\n", false},
		{"bad timestamp", "# session: $0\n# timestamp: soon\n# agent: a\n\nx", "# session: $0\n# timestamp: soon\n# agent: a\n\nx", false},
		{"missing agent", "# session: $0\n# timestamp: 1\n# who: a\n\nx", "# session: $0\n# timestamp: 1\n# who: a\n\nx", false},
		{"session prefix only", "# session: standup", "# session: standup", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, meta, err := ParsePrompt(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if content != tt.content || (meta != nil) != tt.hasMeta {
				t.Errorf("got %q, meta %+v", content, meta)
			}
		})
	}
}
