package mux

import (
	"context"
	"strconv"
	"strings"

	"github.com/timvw/pane-relay/internal/model"
)

// ListPanes returns the panes of one window.
func (t *Tmux) ListPanes(ctx context.Context, window model.WindowID) ([]model.Pane, error) {
	out, err := t.run(ctx, "list-panes", model.WindowTarget(window), "-F", paneFormat)
	if err != nil {
		return nil, notFoundIfMissing(err, "window", string(window))
	}
	return parsePanes(out)
}

// SplitPane splits the active pane of window. horizontal places the new pane
// to the right, otherwise below.
func (t *Tmux) SplitPane(ctx context.Context, window model.WindowID, horizontal bool) (model.Pane, error) {
	dir := "-v"
	if horizontal {
		dir = "-h"
	}
	out, err := t.run(ctx, "split-window", model.WindowTarget(window), "-d", dir, "-P", "-F", "#{pane_id}")
	if err != nil {
		return model.Pane{}, err
	}
	id := model.PaneID(firstLine(out))

	panes, err := t.ListPanes(ctx, window)
	if err != nil {
		return model.Pane{}, err
	}
	for _, p := range panes {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Pane{}, model.Errorf(model.KindNotFound, "split pane", "pane %q not listed after split", id)
}

func (t *Tmux) KillPane(ctx context.Context, id model.PaneID) error {
	_, err := t.run(ctx, "kill-pane", model.PaneTarget(id))
	return err
}

func (t *Tmux) SelectPane(ctx context.Context, id model.PaneID) error {
	_, err := t.run(ctx, "select-pane", model.PaneTarget(id))
	return err
}

// SendKeys sends key names (e.g. "Enter", "C-c") or strings that tmux
// interprets as key sequences.
func (t *Tmux) SendKeys(ctx context.Context, pane model.PaneID, keys ...string) error {
	_, err := t.run(ctx, "send-keys", model.PaneTarget(pane), keys...)
	return err
}

// SendLiteral types text into the pane without key-name lookup.
func (t *Tmux) SendLiteral(ctx context.Context, pane model.PaneID, text string) error {
	_, err := t.run(ctx, "send-keys", model.PaneTarget(pane), "-l", text)
	return err
}

// CapturePane returns the pane's visible content with wrapped lines joined.
// lines > 0 also includes that many lines of scrollback.
func (t *Tmux) CapturePane(ctx context.Context, pane model.PaneID, lines int) (string, error) {
	args := []string{"-p", "-J"}
	if lines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(lines))
	}
	return t.run(ctx, "capture-pane", model.PaneTarget(pane), args...)
}

// PipePane appends everything the pane prints to logPath. -o leaves an
// existing pipe in place instead of toggling it off.
func (t *Tmux) PipePane(ctx context.Context, pane model.PaneID, logPath string) error {
	_, err := t.run(ctx, "pipe-pane", model.PaneTarget(pane), "-o", "cat >> "+shellQuote(logPath))
	return err
}

// StopPipePane closes the pane's output pipe.
func (t *Tmux) StopPipePane(ctx context.Context, pane model.PaneID) error {
	_, err := t.run(ctx, "pipe-pane", model.PaneTarget(pane))
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
