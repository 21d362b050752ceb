package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
)

const enterAttempts = 3

// KeyInjector types into a pane. *mux.Tmux satisfies it.
type KeyInjector interface {
	SendKeys(ctx context.Context, pane model.PaneID, keys ...string) error
	SendLiteral(ctx context.Context, pane model.PaneID, text string) error
}

// Nudger types text into a pane the way a person would: literal text, a
// pause for the paste to land, Escape (leaves vim insert mode), then Enter
// with retry. Control sequences such as "C-c" are sent as a single key.
type Nudger struct {
	// SendKeys sends keys to pane. flag is "-l" for literal text, else "".
	SendKeys func(ctx context.Context, pane model.PaneID, flag, keys string) error
	// Sleep pauses between steps; replaced in tests.
	Sleep func(time.Duration)
	// Delay is the pause after typing literal text.
	Delay time.Duration
}

// NewNudger returns a Nudger that drives keys through k.
func NewNudger(k KeyInjector, delay time.Duration) *Nudger {
	return &Nudger{
		SendKeys: func(ctx context.Context, pane model.PaneID, flag, keys string) error {
			if flag == "-l" {
				return k.SendLiteral(ctx, pane, keys)
			}
			return k.SendKeys(ctx, pane, keys)
		},
		Sleep: time.Sleep,
		Delay: delay,
	}
}

// Nudge delivers keys to pane.
func (n *Nudger) Nudge(ctx context.Context, pane model.PaneID, keys string) error {
	if isControlSequence(keys) {
		return n.SendKeys(ctx, pane, "", keys)
	}
	return n.nudgeLiteral(ctx, pane, keys)
}

func (n *Nudger) nudgeLiteral(ctx context.Context, pane model.PaneID, text string) error {
	if err := n.SendKeys(ctx, pane, "-l", text); err != nil {
		return fmt.Errorf("send literal keys: %w", err)
	}
	n.Sleep(n.Delay)

	_ = n.SendKeys(ctx, pane, "", "Escape")
	n.Sleep(100 * time.Millisecond)

	var lastErr error
	for attempt := 0; attempt < enterAttempts; attempt++ {
		if attempt > 0 {
			n.Sleep(200 * time.Millisecond)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.SendKeys(ctx, pane, "", "Enter"); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to send Enter after %d attempts: %w", enterAttempts, lastErr)
}

// isControlSequence reports whether keys names a tmux key rather than text.
func isControlSequence(keys string) bool {
	switch keys {
	case "Enter", "Escape", "Up", "Down", "Left", "Right",
		"Tab", "BTab", "Space", "BSpace", "DC", "Home", "End", "PPage", "NPage":
		return true
	}
	// C-x and M-x chords
	if len(keys) == 3 && (keys[0] == 'C' || keys[0] == 'M') && keys[1] == '-' {
		return true
	}
	return false
}

// RemoteSender pushes a prompt to an agent over its own API.
type RemoteSender interface {
	SendPrompt(ctx context.Context, agentSession, content string) error
}

// Deliverer writes a prompt to the pane's inbox and then types it into the
// pane, so both file-polling and interactive agents receive it.
type Deliverer struct {
	Sender *Sender
	Nudger *Nudger
	// Remote, when set, also receives the prompt for the agent session that
	// ResolveAgent maps the tmux session to.
	Remote       RemoteSender
	ResolveAgent func(model.SessionID) (string, error)
	// Agent is recorded in the metadata header when a session is known.
	Agent string
	// Now stamps metadata; defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Deliver sends content to pane. With a valid session the inbox gets a
// metadata header. The inbox write happens first so a failed remote send
// or injection still leaves the prompt readable; the remote send precedes
// injection.
func (d *Deliverer) Deliver(ctx context.Context, pane model.PaneID, session model.SessionID, content string) error {
	logger := logging.ForComponent(d.Logger, logging.CompPrompt)
	now := d.Now
	if now == nil {
		now = time.Now
	}

	var err error
	if session.Valid() {
		meta := model.NewPromptMetadata(session, d.Agent, now())
		err = d.Sender.SendPromptWithMetadata(ctx, pane, content, meta)
	} else {
		err = d.Sender.SendPrompt(ctx, pane, content)
	}
	if err != nil {
		return err
	}

	if d.Remote != nil {
		if err := d.sendRemote(ctx, session, content); err != nil {
			logger.Warn("prompt_remote_failed", slog.String("pane", string(pane)), slog.String("error", err.Error()))
			return fmt.Errorf("send prompt for %s to agent: %w", pane, err)
		}
	}

	if d.Nudger == nil {
		return nil
	}
	if err := d.Nudger.Nudge(ctx, pane, content); err != nil {
		logger.Warn("prompt_inject_failed", slog.String("pane", string(pane)), slog.String("error", err.Error()))
		return fmt.Errorf("inject prompt into %s: %w", pane, err)
	}
	logger.Debug("prompt_delivered", slog.String("pane", string(pane)))
	return nil
}

func (d *Deliverer) sendRemote(ctx context.Context, session model.SessionID, content string) error {
	if !session.Valid() {
		return model.Errorf(model.KindNotFound, "send prompt", "remote delivery needs a tmux session")
	}
	if d.ResolveAgent == nil {
		return model.Errorf(model.KindNotFound, "send prompt", "no agent session resolver")
	}
	agent, err := d.ResolveAgent(session)
	if err != nil {
		return err
	}
	return d.Remote.SendPrompt(ctx, agent, content)
}
