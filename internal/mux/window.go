package mux

import (
	"context"
	"strings"

	"github.com/timvw/pane-relay/internal/model"
)

// ListWindows returns the windows of one session with their panes.
func (t *Tmux) ListWindows(ctx context.Context, session model.SessionID) ([]model.Window, error) {
	target := model.SessionTarget(session)

	out, err := t.run(ctx, "list-windows", target, "-F", windowFormat)
	if err != nil {
		return nil, notFoundIfMissing(err, "session", string(session))
	}
	windows, err := parseWindows(out)
	if err != nil {
		return nil, err
	}

	out, err = t.run(ctx, "list-panes", target, "-s", "-F", paneFormat)
	if err != nil {
		return nil, notFoundIfMissing(err, "session", string(session))
	}
	panes, err := parsePanes(out)
	if err != nil {
		return nil, err
	}

	sessions, err := buildTopology([]model.Session{{ID: session}}, windows, panes)
	if err != nil {
		return nil, err
	}
	return sessions[0].Windows, nil
}

// NewWindow opens a detached window in session and returns it.
func (t *Tmux) NewWindow(ctx context.Context, session model.SessionID, name string) (model.Window, error) {
	args := []string{"-d", "-P", "-F", "#{window_id}"}
	if name != "" {
		args = append(args, "-n", name)
	}
	out, err := t.run(ctx, "new-window", model.SessionTarget(session), args...)
	if err != nil {
		return model.Window{}, err
	}
	id := model.WindowID(firstLine(out))

	windows, err := t.ListWindows(ctx, session)
	if err != nil {
		return model.Window{}, err
	}
	for _, w := range windows {
		if (id.Valid() && w.ID == id) || (!id.Valid() && name != "" && w.Name == name) {
			return w, nil
		}
	}
	return model.Window{}, model.Errorf(model.KindNotFound, "new window", "window %q not listed after creation", name)
}

func (t *Tmux) KillWindow(ctx context.Context, id model.WindowID) error {
	_, err := t.run(ctx, "kill-window", model.WindowTarget(id))
	return err
}

func (t *Tmux) SelectWindow(ctx context.Context, id model.WindowID) error {
	_, err := t.run(ctx, "select-window", model.WindowTarget(id))
	return err
}

func (t *Tmux) RenameWindow(ctx context.Context, id model.WindowID, name string) error {
	_, err := t.run(ctx, "rename-window", model.WindowTarget(id), name)
	return err
}

// notFoundIfMissing converts tmux's "can't find" failures into KindNotFound.
func notFoundIfMissing(err error, what, id string) error {
	if model.KindOf(err) == model.KindCommand && strings.Contains(err.Error(), "can't find") {
		return &model.Error{Kind: model.KindNotFound, Op: "find " + what, Msg: what + " " + id + " not found", Err: err}
	}
	return err
}
