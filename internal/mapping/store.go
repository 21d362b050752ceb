// Package mapping persists the association between external agent session
// ids and the tmux sessions they run in.
//
// The map lives in <state_dir>/sessions.json. Every mutation reloads the
// file, applies the change and rewrites it atomically while holding the
// advisory lock at sessions.json.lock, so concurrent CLI invocations do not
// lose each other's writes.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timvw/pane-relay/internal/lock"
	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
)

const fileName = "sessions.json"

// Entry maps one agent session to a tmux session name.
type Entry struct {
	AgentSession string    `json:"agent_session"`
	TmuxSession  string    `json:"tmux_session"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.AgentSession) == "" {
		return fmt.Errorf("agent session is required")
	}
	if strings.TrimSpace(e.TmuxSession) == "" {
		return fmt.Errorf("tmux session is required")
	}
	return nil
}

// Store reads and writes the mapping file.
type Store struct {
	path   string
	Now    func() time.Time
	logger *slog.Logger
}

// NewStore returns a Store backed by <stateDir>/sessions.json.
func NewStore(stateDir string, logger *slog.Logger) *Store {
	return &Store{
		path:   filepath.Join(stateDir, fileName),
		Now:    time.Now,
		logger: logging.ForComponent(logger, logging.CompMapping),
	}
}

// Path returns the mapping file location.
func (s *Store) Path() string { return s.path }

func (s *Store) lockPath() string { return s.path + ".lock" }

// Insert records agent → tmux, replacing any previous mapping for agent.
func (s *Store) Insert(agent, tmux string) (Entry, error) {
	e := Entry{AgentSession: agent, TmuxSession: tmux, CreatedAt: s.Now().UTC()}
	if err := e.Validate(); err != nil {
		return Entry{}, model.Wrap(model.KindParse, "insert mapping", err)
	}
	err := s.mutate("insert mapping", func(m map[string]Entry) bool {
		m[agent] = e
		return true
	})
	if err != nil {
		return Entry{}, err
	}
	s.logger.Debug("mapping_inserted", slog.String("agent", agent), slog.String("tmux", tmux))
	return e, nil
}

// LookupTmux returns the tmux session mapped to agent.
func (s *Store) LookupTmux(agent string) (string, error) {
	m, err := s.load()
	if err != nil {
		return "", err
	}
	e, ok := m[agent]
	if !ok {
		return "", model.Errorf(model.KindNotFound, "lookup mapping", "no tmux session for agent session %q", agent)
	}
	return e.TmuxSession, nil
}

// LookupAgent returns the agent sessions mapped to tmux, oldest first.
func (s *Store) LookupAgent(tmux string) ([]string, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	var agents []string
	for _, e := range entries {
		if e.TmuxSession == tmux {
			agents = append(agents, e.AgentSession)
		}
	}
	if len(agents) == 0 {
		return nil, model.Errorf(model.KindNotFound, "lookup mapping", "no agent session for tmux session %q", tmux)
	}
	return agents, nil
}

// Remove deletes the mapping for agent. Removing an absent mapping is not
// an error; the return value reports whether anything was deleted.
func (s *Store) Remove(agent string) (bool, error) {
	var removed bool
	err := s.mutate("remove mapping", func(m map[string]Entry) bool {
		if _, ok := m[agent]; !ok {
			return false
		}
		delete(m, agent)
		removed = true
		return true
	})
	return removed, err
}

// List returns every entry sorted by creation time, then agent id.
func (s *Store) List() ([]Entry, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]Entry, 0, len(m))
	for _, e := range m {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].AgentSession < result[j].AgentSession
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Clear removes every mapping.
func (s *Store) Clear() error {
	return s.mutate("clear mappings", func(m map[string]Entry) bool {
		clear(m)
		return true
	})
}

// mutate applies fn to the current map under the file lock and persists the
// result when fn reports a change.
func (s *Store) mutate(op string, fn func(map[string]Entry) bool) error {
	return lock.TryWith(s.lockPath(), func() error {
		m, err := s.load()
		if err != nil {
			return err
		}
		if !fn(m) {
			return nil
		}
		if err := s.save(m); err != nil {
			return model.Wrap(model.KindIO, op, err)
		}
		return nil
	})
}

// load reads the mapping file. A missing file is an empty map.
func (s *Store) load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, model.Wrap(model.KindIO, "read mappings", err)
	}
	m := make(map[string]Entry)
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, model.Wrap(model.KindParse, "decode mappings", err)
	}
	return m, nil
}

func (s *Store) save(m map[string]Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+fileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
