package mux

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-relay/internal/model"
)

// NewSession creates a detached session and returns it as tmux reports it.
// tmux does not echo the new id reliably, so the session is located by name
// with a single re-query. Two sessions created concurrently under the same
// name can race; the first listed match wins.
func (t *Tmux) NewSession(ctx context.Context, name string) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "new_session",
		trace.WithAttributes(attribute.String("session.name", name)))
	defer span.End()

	if _, err := t.run(ctx, "new-session", model.ServerTarget(), "-d", "-s", name); err != nil {
		return model.Session{}, spanError(span, err)
	}

	sessions, err := t.ListSessions(ctx)
	if err != nil {
		return model.Session{}, spanError(span, err)
	}
	for _, s := range sessions {
		if s.Name == name {
			span.SetAttributes(attribute.String("session.id", s.ID.String()))
			return s, nil
		}
	}
	return model.Session{}, spanError(span,
		model.Errorf(model.KindNotFound, "new session", "session %q not listed after creation", name))
}

// ListSessions returns every session with its windows and panes.
func (t *Tmux) ListSessions(ctx context.Context) ([]model.Session, error) {
	ctx, span := tracer.Start(ctx, "list_sessions")
	defer span.End()

	out, err := t.list(ctx, "list-sessions", "-F", sessionFormat)
	if err != nil {
		return nil, spanError(span, err)
	}
	sessions, err := parseSessions(out)
	if err != nil || len(sessions) == 0 {
		return sessions, spanError(span, err)
	}

	out, err = t.list(ctx, "list-windows", "-a", "-F", windowFormat)
	if err != nil {
		return nil, spanError(span, err)
	}
	windows, err := parseWindows(out)
	if err != nil {
		return nil, spanError(span, err)
	}

	out, err = t.list(ctx, "list-panes", "-a", "-F", paneFormat)
	if err != nil {
		return nil, spanError(span, err)
	}
	panes, err := parsePanes(out)
	if err != nil {
		return nil, spanError(span, err)
	}

	sessions, err = buildTopology(sessions, windows, panes)
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetAttributes(attribute.Int("sessions.count", len(sessions)))
	return sessions, nil
}

// GetSession returns the session with the given id.
func (t *Tmux) GetSession(ctx context.Context, id model.SessionID) (model.Session, error) {
	sessions, err := t.ListSessions(ctx)
	if err != nil {
		return model.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Session{}, model.Errorf(model.KindNotFound, "get session", "session %s not found", id)
}

// FindSession resolves idOrName against session ids first, then names.
func (t *Tmux) FindSession(ctx context.Context, idOrName string) (model.Session, error) {
	sessions, err := t.ListSessions(ctx)
	if err != nil {
		return model.Session{}, err
	}
	for _, s := range sessions {
		if string(s.ID) == idOrName {
			return s, nil
		}
	}
	for _, s := range sessions {
		if s.Name == idOrName {
			return s, nil
		}
	}
	return model.Session{}, model.Errorf(model.KindNotFound, "find session", "no session with id or name %q", idOrName)
}

func (t *Tmux) RenameSession(ctx context.Context, id model.SessionID, name string) error {
	_, err := t.run(ctx, "rename-session", model.SessionTarget(id), name)
	return err
}

// AttachSession attaches the calling terminal to the session. It needs a
// controlling terminal; interactive callers usually exec tmux directly.
func (t *Tmux) AttachSession(ctx context.Context, id model.SessionID) error {
	_, err := t.run(ctx, "attach-session", model.SessionTarget(id))
	return err
}

// DetachSession detaches every client attached to the session.
func (t *Tmux) DetachSession(ctx context.Context, id model.SessionID) error {
	_, err := t.run(ctx, "detach-client", model.ServerTarget(), "-s", string(id))
	return err
}

// KillSession destroys the session. Its id must not be reused afterwards.
func (t *Tmux) KillSession(ctx context.Context, id model.SessionID) error {
	ctx, span := tracer.Start(ctx, "kill_session",
		trace.WithAttributes(attribute.String("session.id", id.String())))
	defer span.End()

	_, err := t.run(ctx, "kill-session", model.SessionTarget(id))
	return spanError(span, err)
}

// spanError marks span failed when err is non-nil and returns err.
func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
