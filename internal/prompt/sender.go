// Package prompt delivers text prompts to panes through per-pane inbox
// files and, optionally, by typing them into the pane.
//
// Every inbox read and write holds the advisory lock at <file>.lock, so a
// reader never sees a half-written prompt. Writers that bypass the lock get
// no such guarantee.
package prompt

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timvw/pane-relay/internal/lock"
	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/otel"
)

const (
	promptDir    = ".opencode/prompts"
	promptSuffix = ".prompt.input"
	lockSuffix   = ".lock"
)

// Sender reads and writes pane inbox files under a base directory.
type Sender struct {
	base    string
	metrics *otel.Metrics
	logger  *slog.Logger
}

// NewSender returns a Sender rooted at basePath. Prompts are stored in
// <basePath>/.opencode/prompts.
func NewSender(basePath string, metrics *otel.Metrics, logger *slog.Logger) *Sender {
	return &Sender{
		base:    basePath,
		metrics: metrics,
		logger:  logging.ForComponent(logger, logging.CompPrompt),
	}
}

// Dir returns the directory holding inbox files.
func (s *Sender) Dir() string {
	return filepath.Join(s.base, promptDir)
}

// PromptPath returns the inbox file for pane.
func (s *Sender) PromptPath(pane model.PaneID) string {
	return filepath.Join(s.Dir(), string(pane)+promptSuffix)
}

// LockPath returns the lock marker guarding pane's inbox.
func (s *Sender) LockPath(pane model.PaneID) string {
	return s.PromptPath(pane) + lockSuffix
}

// SendPrompt replaces pane's inbox with content.
func (s *Sender) SendPrompt(ctx context.Context, pane model.PaneID, content string) error {
	if err := s.write(ctx, "send prompt", pane, content); err != nil {
		return err
	}
	s.metrics.RecordPromptSent(ctx, false)
	return nil
}

// SendPromptWithMetadata replaces pane's inbox with content preceded by a
// provenance header. Metadata fields containing line breaks are KindParse.
func (s *Sender) SendPromptWithMetadata(ctx context.Context, pane model.PaneID, content string, meta model.PromptMetadata) error {
	if err := checkMetadata(meta); err != nil {
		return err
	}
	if err := s.write(ctx, "send prompt", pane, FormatPrompt(content, meta)); err != nil {
		return err
	}
	s.metrics.RecordPromptSent(ctx, true)
	return nil
}

// ReadPrompt returns the raw inbox content. A missing inbox is KindNotFound;
// an empty one is a valid empty prompt.
func (s *Sender) ReadPrompt(ctx context.Context, pane model.PaneID) (string, error) {
	if err := checkPane(pane); err != nil {
		return "", err
	}
	var content string
	err := s.locked(ctx, "read prompt", pane, func() error {
		data, err := os.ReadFile(s.PromptPath(pane))
		if errors.Is(err, fs.ErrNotExist) {
			return model.Errorf(model.KindNotFound, "read prompt", "no prompt for pane %s", pane)
		}
		if err != nil {
			return model.Wrap(model.KindIO, "read prompt", err)
		}
		content = string(data)
		return nil
	})
	return content, err
}

// ReadPromptWithMetadata reads the inbox and splits off the header, if any.
func (s *Sender) ReadPromptWithMetadata(ctx context.Context, pane model.PaneID) (string, *model.PromptMetadata, error) {
	raw, err := s.ReadPrompt(ctx, pane)
	if err != nil {
		return "", nil, err
	}
	return ParsePrompt(raw)
}

// ClearPrompt removes pane's inbox. Removing a missing inbox succeeds.
func (s *Sender) ClearPrompt(ctx context.Context, pane model.PaneID) error {
	if err := checkPane(pane); err != nil {
		return err
	}
	return s.locked(ctx, "clear prompt", pane, func() error {
		err := os.Remove(s.PromptPath(pane))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return model.Wrap(model.KindIO, "clear prompt", err)
		}
		s.logger.Debug("prompt_cleared", slog.String("pane", string(pane)))
		return nil
	})
}

func (s *Sender) write(ctx context.Context, op string, pane model.PaneID, data string) error {
	if err := checkPane(pane); err != nil {
		return err
	}
	return s.locked(ctx, op, pane, func() error {
		if err := writeAtomic(s.PromptPath(pane), []byte(data)); err != nil {
			return model.Wrap(model.KindIO, op, err)
		}
		s.logger.Debug("prompt_written", slog.String("pane", string(pane)), slog.Int("bytes", len(data)))
		return nil
	})
}

// locked runs fn under pane's inbox lock and counts contention.
func (s *Sender) locked(ctx context.Context, op string, pane model.PaneID, fn func() error) error {
	err := lock.TryWith(s.LockPath(pane), fn)
	if err != nil && errors.Is(err, model.ErrProcess) {
		s.metrics.RecordLockContention(ctx, op)
		s.logger.Info("prompt_lock_busy", slog.String("pane", string(pane)), slog.String("op", op))
	}
	return err
}

// writeAtomic writes data to a sibling temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// checkPane rejects ids that cannot name a file in the inbox directory.
func checkPane(pane model.PaneID) error {
	if !pane.Valid() || strings.ContainsAny(string(pane), `/\`) || pane == "." || pane == ".." {
		return model.Errorf(model.KindIO, "prompt path", "invalid pane id %q", pane)
	}
	return nil
}

const (
	headerSession   = "# session: "
	headerTimestamp = "# timestamp: "
	headerAgent     = "# agent: "
)

// FormatPrompt renders content with a metadata header:
//
//	# session: $1
//	# timestamp: 1700000000
//	# agent: planner
//
//	<content>
func FormatPrompt(content string, meta model.PromptMetadata) string {
	var b strings.Builder
	b.WriteString(headerSession + string(meta.SessionID) + "\n")
	b.WriteString(headerTimestamp + strconv.FormatInt(meta.Timestamp, 10) + "\n")
	b.WriteString(headerAgent + meta.Agent + "\n")
	b.WriteString("\n")
	b.WriteString(content)
	return b.String()
}

// ParsePrompt splits a metadata header off raw. Content without a complete
// header, including a plain prompt that merely starts with "# session: ",
// is returned as-is with nil metadata.
func ParsePrompt(raw string) (string, *model.PromptMetadata, error) {
	if !strings.HasPrefix(raw, headerSession) {
		return raw, nil, nil
	}

	lines := strings.SplitN(raw, "\n", 5)
	if len(lines) < 5 || lines[3] != "" {
		return raw, nil, nil
	}
	agent, ok := strings.CutPrefix(lines[2], headerAgent)
	if !ok {
		return raw, nil, nil
	}
	tsText, ok := strings.CutPrefix(lines[1], headerTimestamp)
	if !ok {
		return raw, nil, nil
	}
	ts, err := strconv.ParseInt(tsText, 10, 64)
	if err != nil {
		return raw, nil, nil
	}

	meta := &model.PromptMetadata{
		SessionID: model.SessionID(strings.TrimPrefix(lines[0], headerSession)),
		Timestamp: ts,
		Agent:     agent,
	}
	return lines[4], meta, nil
}

// checkMetadata rejects header fields that would break the one-field-per-line
// format.
func checkMetadata(meta model.PromptMetadata) error {
	if strings.ContainsAny(string(meta.SessionID), "\r\n") {
		return model.Errorf(model.KindParse, "send prompt", "session id %q contains a line break", meta.SessionID)
	}
	if strings.ContainsAny(meta.Agent, "\r\n") {
		return model.Errorf(model.KindParse, "send prompt", "agent %q contains a line break", meta.Agent)
	}
	return nil
}
