package mux

import (
	"strconv"
	"strings"

	"github.com/timvw/pane-relay/internal/model"
)

// FieldSeparator delimits fields in tmux -F output. Session and window names
// can contain tabs and colons but not the ASCII unit separator.
const FieldSeparator = "\x1f"

// escapedSeparator is how some tmux builds render \x1f in format output.
const escapedSeparator = `\037`

var (
	sessionFormat = joinFormat("#{session_id}", "#{session_name}", "#{session_attached}")
	windowFormat  = joinFormat("#{session_id}", "#{window_id}", "#{window_name}", "#{window_active}")
	paneFormat    = joinFormat("#{session_id}", "#{window_id}", "#{pane_id}",
		"#{pane_current_path}", "#{pane_pid}", "#{pane_active}")
)

func joinFormat(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}

// splitRecords yields the non-empty lines of out split into fields. Every
// line must have exactly n fields.
func splitRecords(op, out string, n int) ([][]string, error) {
	var records [][]string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = strings.ReplaceAll(line, escapedSeparator, FieldSeparator)
		fields := strings.Split(line, FieldSeparator)
		if len(fields) != n {
			return nil, model.Errorf(model.KindParse, op, "expected %d fields, got %d in %q", n, len(fields), line)
		}
		records = append(records, fields)
	}
	return records, nil
}

// parseFlag parses a tmux numeric flag or count. Anything above zero is true.
func parseFlag(op, field, v string) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return false, model.Errorf(model.KindParse, op, "invalid %s %q", field, v)
	}
	return n > 0, nil
}

func parseSessions(out string) ([]model.Session, error) {
	const op = "parse sessions"
	records, err := splitRecords(op, out, 3)
	if err != nil {
		return nil, err
	}
	sessions := make([]model.Session, 0, len(records))
	for _, f := range records {
		attached, err := parseFlag(op, "session_attached", f[2])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, model.Session{
			ID:       model.SessionID(f[0]),
			Name:     f[1],
			Attached: attached,
		})
	}
	return sessions, nil
}

func parseWindows(out string) ([]model.Window, error) {
	const op = "parse windows"
	records, err := splitRecords(op, out, 4)
	if err != nil {
		return nil, err
	}
	windows := make([]model.Window, 0, len(records))
	for _, f := range records {
		active, err := parseFlag(op, "window_active", f[3])
		if err != nil {
			return nil, err
		}
		windows = append(windows, model.Window{
			SessionID: model.SessionID(f[0]),
			ID:        model.WindowID(f[1]),
			Name:      f[2],
			Active:    active,
		})
	}
	return windows, nil
}

func parsePanes(out string) ([]model.Pane, error) {
	const op = "parse panes"
	records, err := splitRecords(op, out, 6)
	if err != nil {
		return nil, err
	}
	panes := make([]model.Pane, 0, len(records))
	for _, f := range records {
		p := model.Pane{
			SessionID: model.SessionID(f[0]),
			WindowID:  model.WindowID(f[1]),
			ID:        model.PaneID(f[2]),
		}
		if f[3] != "" {
			path := f[3]
			p.CurrentPath = &path
		}
		if pid := strings.TrimSpace(f[4]); pid != "" {
			n, err := strconv.Atoi(pid)
			if err != nil {
				return nil, model.Errorf(model.KindParse, op, "invalid pane_pid %q", f[4])
			}
			p.PID = &n
		}
		if p.Active, err = parseFlag(op, "pane_active", f[5]); err != nil {
			return nil, err
		}
		panes = append(panes, p)
	}
	return panes, nil
}

type windowKey struct {
	session model.SessionID
	window  model.WindowID
}

// buildTopology nests windows under sessions and panes under windows by id.
// A window or pane whose parent is not in the listing is a parse error.
func buildTopology(sessions []model.Session, windows []model.Window, panes []model.Pane) ([]model.Session, error) {
	const op = "build topology"

	winIdx := make(map[windowKey]int, len(windows))
	for i, w := range windows {
		winIdx[windowKey{w.SessionID, w.ID}] = i
	}
	for _, p := range panes {
		i, ok := winIdx[windowKey{p.SessionID, p.WindowID}]
		if !ok {
			return nil, model.Errorf(model.KindParse, op, "pane %s references unknown window %s in session %s", p.ID, p.WindowID, p.SessionID)
		}
		windows[i].Panes = append(windows[i].Panes, p)
	}

	sessIdx := make(map[model.SessionID]int, len(sessions))
	for i, s := range sessions {
		sessIdx[s.ID] = i
	}
	for _, w := range windows {
		i, ok := sessIdx[w.SessionID]
		if !ok {
			return nil, model.Errorf(model.KindParse, op, "window %s references unknown session %s", w.ID, w.SessionID)
		}
		sessions[i].Windows = append(sessions[i].Windows, w)
	}
	return sessions, nil
}
