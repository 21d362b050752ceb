// Package capture reads the per-session output logs written by tmux
// pipe-pane. It never writes log content; the only mutations are truncate
// and delete.
package capture

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/otel"
)

const (
	logSuffix           = ".log"
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultPartialFlush is how long an unterminated last line may sit
	// unchanged before WatchLog delivers it anyway.
	DefaultPartialFlush = time.Second
)

// DefaultDir is where logs live when no directory is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "tmux_logs")
}

// Reader exposes <dir>/<session_id>.log files.
type Reader struct {
	dir     string
	poll    time.Duration
	flush   time.Duration
	metrics *otel.Metrics
	logger  *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithPollInterval sets how often WatchLog checks for growth.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithPartialFlush sets how long a trailing line without a newline waits
// for more bytes before WatchLog delivers it.
func WithPartialFlush(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.flush = d
		}
	}
}

func WithMetrics(m *otel.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader returns a Reader over dir, or DefaultDir when dir is empty.
func NewReader(dir string, opts ...Option) *Reader {
	if dir == "" {
		dir = DefaultDir()
	}
	r := &Reader{dir: dir, poll: DefaultPollInterval, flush: DefaultPartialFlush}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.ForComponent(r.logger, logging.CompCapture)
	return r
}

// Dir returns the log directory.
func (r *Reader) Dir() string { return r.dir }

// LogPath returns the log file for session. Pass it to pipe-pane to start
// capturing.
func (r *Reader) LogPath(session model.SessionID) string {
	return filepath.Join(r.dir, string(session)+logSuffix)
}

// EnsureDir creates the log directory.
func (r *Reader) EnsureDir() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return model.Wrap(model.KindIO, "create log dir", err)
	}
	return nil
}

// ReadLog returns the whole log. A session with no log yet reads as empty.
func (r *Reader) ReadLog(session model.SessionID) (string, error) {
	data, err := os.ReadFile(r.LogPath(session))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", model.Wrap(model.KindCommand, "read log", err)
	}
	return string(data), nil
}

// ReadLogLines returns the log split into lines without terminators.
func (r *Reader) ReadLogLines(session model.SessionID) ([]string, error) {
	data, err := r.ReadLog(session)
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

// ReadLogFrom returns the lines after the first offset lines.
func (r *Reader) ReadLogFrom(session model.SessionID, offset int) ([]string, error) {
	lines, err := r.ReadLogLines(session)
	if err != nil {
		return nil, err
	}
	if offset <= 0 {
		return lines, nil
	}
	if offset >= len(lines) {
		return []string{}, nil
	}
	return lines[offset:], nil
}

// TailLog returns at most the last n lines. Fewer lines than n is not an
// error.
func (r *Reader) TailLog(session model.SessionID, n int) ([]string, error) {
	lines, err := r.ReadLogLines(session)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}
	if n >= len(lines) {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

// SearchLog returns the lines containing pattern as a literal substring, in
// file order.
func (r *Reader) SearchLog(session model.SessionID, pattern string) ([]string, error) {
	lines, err := r.ReadLogLines(session)
	if err != nil {
		return nil, err
	}
	matches := []string{}
	for _, line := range lines {
		if strings.Contains(line, pattern) {
			matches = append(matches, line)
		}
	}
	return matches, nil
}

// LogSize returns the log size in bytes.
func (r *Reader) LogSize(session model.SessionID) (int64, error) {
	info, err := r.stat(session, "log size")
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// LogTimestamp returns the log's modification time.
func (r *Reader) LogTimestamp(session model.SessionID) (time.Time, error) {
	info, err := r.stat(session, "log timestamp")
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (r *Reader) stat(session model.SessionID, op string) (fs.FileInfo, error) {
	info, err := os.Stat(r.LogPath(session))
	if err != nil {
		return nil, model.Wrap(model.KindCommand, op, err)
	}
	return info, nil
}

// ClearLog truncates the log to zero length. A missing log is left missing.
func (r *Reader) ClearLog(session model.SessionID) error {
	err := os.Truncate(r.LogPath(session), 0)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return model.Wrap(model.KindCommand, "clear log", err)
	}
	return nil
}

// DeleteLog removes the log. A missing log is not an error.
func (r *Reader) DeleteLog(session model.SessionID) error {
	err := os.Remove(r.LogPath(session))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return model.Wrap(model.KindCommand, "delete log", err)
	}
	return nil
}

// ListSessionLogs returns the session ids that have a log, sorted.
func (r *Reader) ListSessionLogs() ([]model.SessionID, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.SessionID{}, nil
	}
	if err != nil {
		return nil, model.Wrap(model.KindCommand, "list logs", err)
	}
	ids := []model.SessionID{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if id, ok := strings.CutSuffix(name, logSuffix); ok && id != "" {
			ids = append(ids, model.SessionID(id))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// splitLines splits on \n, drops a trailing empty element and strips \r.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
