package mux

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// scriptedRunner answers by tmux command name. Responses for a name are
// consumed in order; the last one repeats.
type scriptedRunner struct {
	mu        sync.Mutex
	responses map[string][]RunResult
	launchErr error
	calls     [][]string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.launchErr != nil {
		return RunResult{}, r.launchErr
	}
	cmd := commandName(args)
	queue := r.responses[cmd]
	if len(queue) == 0 {
		return RunResult{}, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		r.responses[cmd] = queue[1:]
	}
	return res, nil
}

// commandName skips a leading -L socket pair.
func commandName(args []string) string {
	if len(args) >= 2 && args[0] == "-L" {
		args = args[2:]
	}
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// flagValue returns the argument following flag.
func flagValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

// fakeServer is a tiny in-memory tmux: one window and one pane per session.
type fakeServer struct {
	mu       sync.Mutex
	next     int
	sessions []fakeSession
}

type fakeSession struct {
	id, name, window, pane string
}

func (s *fakeServer) Run(_ context.Context, _ string, args ...string) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sep := FieldSeparator
	switch commandName(args) {
	case "new-session":
		name := flagValue(args, "-s")
		for _, fs := range s.sessions {
			if fs.name == name {
				return RunResult{Stderr: "duplicate session: " + name, ExitCode: 1}, nil
			}
		}
		n := s.next
		s.next++
		s.sessions = append(s.sessions, fakeSession{
			id: fmt.Sprintf("$%d", n), name: name,
			window: fmt.Sprintf("@%d", n), pane: fmt.Sprintf("%%%d", n),
		})
		return RunResult{}, nil

	case "kill-session":
		target := flagValue(args, "-t")
		for i, fs := range s.sessions {
			if fs.id == target {
				s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
				return RunResult{}, nil
			}
		}
		return RunResult{Stderr: "can't find session: " + target, ExitCode: 1}, nil

	case "list-sessions":
		if len(s.sessions) == 0 {
			return RunResult{Stderr: "no server running on /tmp/tmux-1000/default", ExitCode: 1}, nil
		}
		var b strings.Builder
		for _, fs := range s.sessions {
			b.WriteString(strings.Join([]string{fs.id, fs.name, "0"}, sep) + "\n")
		}
		return RunResult{Stdout: b.String()}, nil

	case "list-windows":
		var b strings.Builder
		for _, fs := range s.sessions {
			b.WriteString(strings.Join([]string{fs.id, fs.window, "bash", "1"}, sep) + "\n")
		}
		return RunResult{Stdout: b.String()}, nil

	case "list-panes":
		var b strings.Builder
		for _, fs := range s.sessions {
			b.WriteString(strings.Join([]string{fs.id, fs.window, fs.pane, "/home/dev", "4242", "1"}, sep) + "\n")
		}
		return RunResult{Stdout: b.String()}, nil
	}
	return RunResult{}, nil
}

func newFakeTmux(r Runner, opts ...ExecutorOption) *Tmux {
	opts = append([]ExecutorOption{WithRunner(r)}, opts...)
	return NewTmux(NewExecutor("tmux", opts...), nil)
}

func rec(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}

