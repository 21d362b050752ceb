package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/otel"
)

// maxStderr caps the stderr text carried in a failed Response.
const maxStderr = 4096

// RunResult is the captured outcome of one process run.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a process and waits for it. A nonzero exit is reported in
// RunResult.ExitCode with a nil error; err is reserved for processes that
// could not be started at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (RunResult, error)
}

// OSRunner runs processes with os/exec.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// Executor turns a model.Command into exactly one tmux invocation.
type Executor struct {
	binary  string
	socket  string
	runner  Runner
	metrics *otel.Metrics
	logger  *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSocket selects a named tmux server (tmux -L).
func WithSocket(name string) ExecutorOption {
	return func(e *Executor) { e.socket = name }
}

// WithRunner substitutes the process runner, typically with a fake in tests.
func WithRunner(r Runner) ExecutorOption {
	return func(e *Executor) { e.runner = r }
}

// WithMetrics records every invocation on m.
func WithMetrics(m *otel.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger used for per-command debug output.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an executor for binary ("tmux" when empty).
func NewExecutor(binary string, opts ...ExecutorOption) *Executor {
	if binary == "" {
		binary = "tmux"
	}
	e := &Executor{binary: binary, runner: OSRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.ForComponent(e.logger, logging.CompMux)
	return e
}

// Argv returns the arguments Execute passes to the tmux binary.
func (e *Executor) Argv(cmd model.Command) []string {
	argv := make([]string, 0, len(cmd.Args)+5)
	if e.socket != "" {
		argv = append(argv, "-L", e.socket)
	}
	argv = append(argv, cmd.Name)
	if !cmd.Target.IsServer() {
		argv = append(argv, "-t", cmd.Target.ID)
	}
	return append(argv, cmd.Args...)
}

// Execute runs cmd once. A nonzero exit yields a Response with Success false
// and a nil error. Failing to start the process yields a KindIO error.
func (e *Executor) Execute(ctx context.Context, cmd model.Command) (model.Response, error) {
	argv := e.Argv(cmd)
	start := time.Now()
	res, err := e.runner.Run(ctx, e.binary, argv...)
	elapsed := time.Since(start)

	if err != nil {
		e.metrics.RecordCommand(ctx, cmd.Name, false, elapsed)
		e.logger.Debug("tmux_launch_failed", slog.String("command", cmd.Name), slog.String("error", err.Error()))
		return model.Response{}, model.Wrap(model.KindIO, "tmux "+cmd.Name, err)
	}

	ok := res.ExitCode == 0
	e.metrics.RecordCommand(ctx, cmd.Name, ok, elapsed)
	e.logger.Debug("tmux_command",
		slog.String("command", cmd.Name),
		slog.String("target", cmd.Target.String()),
		slog.Int("exit", res.ExitCode),
		slog.Duration("elapsed", elapsed))

	if !ok {
		msg := truncate(strings.TrimSpace(res.Stderr), maxStderr)
		if msg == "" {
			msg = fmt.Sprintf("tmux %s failed (exit=%d)", cmd.Name, res.ExitCode)
		}
		return model.Response{Success: false, Data: model.EmptyData(), Error: &msg}, nil
	}
	if res.Stdout == "" {
		return model.Response{Success: true, Data: model.EmptyData()}, nil
	}
	return model.Response{Success: true, Data: model.OutputData(res.Stdout)}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
