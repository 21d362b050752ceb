package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/timvw/pane-relay/internal/model"
)

// Environment describes the tmux installation visible to this process.
type Environment struct {
	// Binary is the resolved path of the tmux executable.
	Binary string
	// Version is the output of tmux -V, e.g. "tmux 3.4".
	Version string
	// InsideTmux is true when this process runs in a tmux pane ($TMUX set).
	InsideTmux bool
	// ServerRunning is true when the server answered list-sessions.
	ServerRunning bool
}

// Detect resolves binary on $PATH and queries the server through t.
// A missing binary is an error; a stopped server is not.
func Detect(ctx context.Context, binary string, t *Tmux) (Environment, error) {
	if binary == "" {
		binary = "tmux"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return Environment{}, fmt.Errorf("tmux binary %q not found (install tmux or set tmux_binary): %w", binary, err)
	}
	env := Environment{Binary: path, InsideTmux: os.Getenv("TMUX") != ""}

	if out, err := t.run(ctx, "-V", model.ServerTarget()); err == nil {
		env.Version = strings.TrimSpace(out)
	}

	_, err = t.run(ctx, "list-sessions", model.ServerTarget(), "-F", "#{session_id}")
	switch {
	case err == nil:
		env.ServerRunning = true
	case isNoServer(err):
	default:
		return env, err
	}
	return env, nil
}
