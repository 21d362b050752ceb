// Package mux is the tmux transport: it issues control commands through an
// Executor and parses listings into model entities.
//
// This package only observes and drives tmux. It never caches ids between
// calls; every query rebuilds the topology from fresh listings.
package mux

import (
	"context"
	"log/slog"
	"strings"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	relayotel "github.com/timvw/pane-relay/internal/otel"
)

var tracer = relayotel.Tracer("mux")

// Multiplexer is the subset of tmux control that consumers outside this
// package depend on.
type Multiplexer interface {
	ListSessions(ctx context.Context) ([]model.Session, error)
	FindSession(ctx context.Context, idOrName string) (model.Session, error)
	SendKeys(ctx context.Context, pane model.PaneID, keys ...string) error
	CapturePane(ctx context.Context, pane model.PaneID, lines int) (string, error)
}

// Tmux implements Multiplexer on top of an Executor.
type Tmux struct {
	exec   *Executor
	logger *slog.Logger
}

var _ Multiplexer = (*Tmux)(nil)

// NewTmux returns a tmux controller using exec.
func NewTmux(exec *Executor, logger *slog.Logger) *Tmux {
	return &Tmux{exec: exec, logger: logging.ForComponent(logger, logging.CompMux)}
}

// Executor returns the underlying command executor.
func (t *Tmux) Executor() *Executor {
	return t.exec
}

// run executes cmd and returns stdout. A failed command becomes KindCommand.
func (t *Tmux) run(ctx context.Context, name string, target model.CommandTarget, args ...string) (string, error) {
	resp, err := t.exec.Execute(ctx, model.Command{Name: name, Target: target, Args: args})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", model.Errorf(model.KindCommand, "tmux "+name, "%s", resp.ErrorText("tmux "+name+" failed"))
	}
	return resp.Data.Output, nil
}

// list runs a listing command. A missing server means nothing to list.
func (t *Tmux) list(ctx context.Context, name string, args ...string) (string, error) {
	out, err := t.run(ctx, name, model.ServerTarget(), args...)
	if err != nil && isNoServer(err) {
		t.logger.Debug("tmux_no_server", slog.String("command", name))
		return "", nil
	}
	return out, err
}

func isNoServer(err error) bool {
	if model.KindOf(err) != model.KindCommand {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "error connecting to") {
		// Only a missing socket means no server; anything else is unreachable.
		return strings.Contains(msg, "No such file or directory")
	}
	return strings.Contains(msg, "no server running") ||
		strings.Contains(msg, "no sessions")
}

// firstLine returns the first non-empty line of out, trimmed.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
