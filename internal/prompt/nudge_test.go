package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/timvw/pane-relay/internal/model"
)

type keyCall struct {
	pane model.PaneID
	flag string
	keys string
}

func recordingNudger(calls *[]keyCall, fail func(flag, keys string) error) *Nudger {
	return &Nudger{
		SendKeys: func(_ context.Context, pane model.PaneID, flag, keys string) error {
			*calls = append(*calls, keyCall{pane, flag, keys})
			if fail != nil {
				return fail(flag, keys)
			}
			return nil
		},
		Sleep: func(time.Duration) {},
		Delay: 500 * time.Millisecond,
	}
}

func TestNudger_LiteralText(t *testing.T) {
	var calls []keyCall
	n := recordingNudger(&calls, nil)

	if err := n.Nudge(context.Background(), "%4", "run the tests"); err != nil {
		t.Fatalf("Nudge() error: %v", err)
	}

	want := []keyCall{
		{"%4", "-l", "run the tests"},
		{"%4", "", "Escape"},
		{"%4", "", "Enter"},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d send-keys calls, got %d: %+v", len(want), len(calls), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i+1, calls[i], want[i])
		}
	}
}

func TestNudger_DelayAfterLiteral(t *testing.T) {
	var slept []time.Duration
	n := &Nudger{
		SendKeys: func(context.Context, model.PaneID, string, string) error { return nil },
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
		Delay:    750 * time.Millisecond,
	}
	if err := n.Nudge(context.Background(), "%1", "y"); err != nil {
		t.Fatal(err)
	}
	if len(slept) == 0 || slept[0] != 750*time.Millisecond {
		t.Errorf("first sleep should be the configured delay, got %v", slept)
	}
}

func TestNudger_ControlSequence(t *testing.T) {
	var calls []keyCall
	n := recordingNudger(&calls, nil)

	if err := n.Nudge(context.Background(), "%0", "C-c"); err != nil {
		t.Fatalf("Nudge() error: %v", err)
	}
	if len(calls) != 1 || calls[0].flag != "" || calls[0].keys != "C-c" {
		t.Fatalf("expected one raw C-c, got %+v", calls)
	}
}

func TestNudger_EnterRetryOnFailure(t *testing.T) {
	var calls []keyCall
	attempts := 0
	n := recordingNudger(&calls, func(_, keys string) error {
		if keys == "Enter" {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("tmux busy")
			}
		}
		return nil
	})

	if err := n.Nudge(context.Background(), "%0", "yes"); err != nil {
		t.Fatalf("Nudge() should succeed on 3rd Enter attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 Enter attempts, got %d", attempts)
	}
}

func TestNudger_EnterAllRetriesFail(t *testing.T) {
	var calls []keyCall
	n := recordingNudger(&calls, func(_, keys string) error {
		if keys == "Enter" {
			return fmt.Errorf("tmux not responding")
		}
		return nil
	})

	err := n.Nudge(context.Background(), "%0", "y")
	if err == nil || !strings.Contains(err.Error(), "failed to send Enter after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNudger_LiteralSendFails(t *testing.T) {
	var calls []keyCall
	n := recordingNudger(&calls, func(flag, _ string) error {
		if flag == "-l" {
			return fmt.Errorf("send failed")
		}
		return nil
	})

	err := n.Nudge(context.Background(), "%0", "y")
	if err == nil || !strings.Contains(err.Error(), "send literal keys") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("nothing should follow a failed literal send, got %+v", calls)
	}
}

func TestIsControlSequence(t *testing.T) {
	tests := []struct {
		keys string
		want bool
	}{
		{"Enter", true},
		{"Escape", true},
		{"BSpace", true},
		{"PPage", true},
		{"C-c", true},
		{"C-d", true},
		{"M-x", true},
		{"y", false},
		{"continue", false},
		{"", false},
		{"C-", false},
		{"C-cc", false},
		{"CC-c", false},
		{"enter", false},
	}
	for _, tt := range tests {
		t.Run(tt.keys, func(t *testing.T) {
			if got := isControlSequence(tt.keys); got != tt.want {
				t.Errorf("isControlSequence(%q) = %v, want %v", tt.keys, got, tt.want)
			}
		})
	}
}

type fakeInjector struct {
	literal []string
	keys    []string
}

func (f *fakeInjector) SendKeys(_ context.Context, _ model.PaneID, keys ...string) error {
	f.keys = append(f.keys, keys...)
	return nil
}

func (f *fakeInjector) SendLiteral(_ context.Context, _ model.PaneID, text string) error {
	f.literal = append(f.literal, text)
	return nil
}

func TestNewNudgerRoutesLiteral(t *testing.T) {
	inj := &fakeInjector{}
	n := NewNudger(inj, 0)
	n.Sleep = func(time.Duration) {}

	if err := n.Nudge(context.Background(), "%2", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(inj.literal) != 1 || inj.literal[0] != "hello" {
		t.Errorf("literal: %q", inj.literal)
	}
	if strings.Join(inj.keys, ",") != "Escape,Enter" {
		t.Errorf("keys: %q", inj.keys)
	}
}

func TestDeliverer_WritesThenInjects(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	inj := &fakeInjector{}
	n := NewNudger(inj, 0)
	n.Sleep = func(time.Duration) {}
	d := &Deliverer{
		Sender: s,
		Nudger: n,
		Agent:  "planner",
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
	ctx := context.Background()

	if err := d.Deliver(ctx, "%1", "$0", "fix the build"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	content, meta, err := s.ReadPromptWithMetadata(ctx, "%1")
	if err != nil {
		t.Fatal(err)
	}
	if content != "fix the build" || meta == nil || meta.Agent != "planner" || meta.Timestamp != 1700000000 {
		t.Errorf("inbox: %q %+v", content, meta)
	}
	if len(inj.literal) != 1 || inj.literal[0] != "fix the build" {
		t.Errorf("injected: %q", inj.literal)
	}
}

func TestDeliverer_InjectFailureKeepsInbox(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	injectErr := errors.New("pane gone")
	d := &Deliverer{
		Sender: s,
		Nudger: &Nudger{
			SendKeys: func(context.Context, model.PaneID, string, string) error { return injectErr },
			Sleep:    func(time.Duration) {},
		},
	}
	ctx := context.Background()

	err := d.Deliver(ctx, "%9", "", "hi")
	if !errors.Is(err, injectErr) {
		t.Fatalf("expected inject error, got %v", err)
	}
	got, err := s.ReadPrompt(ctx, "%9")
	if err != nil || got != "hi" {
		t.Errorf("inbox after failed inject: %q %v", got, err)
	}
}

type fakeRemote struct {
	sent map[string][]string
	err  error
}

func (r *fakeRemote) SendPrompt(_ context.Context, agent, content string) error {
	if r.err != nil {
		return r.err
	}
	if r.sent == nil {
		r.sent = map[string][]string{}
	}
	r.sent[agent] = append(r.sent[agent], content)
	return nil
}

func TestDeliverer_RemoteUsesResolvedAgentSession(t *testing.T) {
	s := NewSender(t.TempDir(), nil, nil)
	remote := &fakeRemote{}
	d := &Deliverer{
		Sender: s,
		Remote: remote,
		ResolveAgent: func(id model.SessionID) (string, error) {
			if id != "$3" {
				return "", model.Errorf(model.KindNotFound, "lookup mapping", "no agent for %s", id)
			}
			return "ses_abc", nil
		},
	}
	ctx := context.Background()

	if err := d.Deliver(ctx, "%4", "$3", "run the tests"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := remote.sent["ses_abc"]; len(got) != 1 || got[0] != "run the tests" {
		t.Errorf("remote got %q", remote.sent)
	}
	if content, _, err := s.ReadPromptWithMetadata(ctx, "%4"); err != nil || content != "run the tests" {
		t.Errorf("inbox: %q %v", content, err)
	}
}

func TestDeliverer_RemoteFailures(t *testing.T) {
	remoteErr := errors.New("server down")
	tests := []struct {
		name    string
		session model.SessionID
		remote  *fakeRemote
		resolve func(model.SessionID) (string, error)
		want    error
	}{
		{"no session", "", &fakeRemote{}, func(model.SessionID) (string, error) { return "ses_1", nil }, model.ErrNotFound},
		{"unmapped session", "$1", &fakeRemote{}, func(model.SessionID) (string, error) {
			return "", model.Errorf(model.KindNotFound, "lookup mapping", "none")
		}, model.ErrNotFound},
		{"no resolver", "$1", &fakeRemote{}, nil, model.ErrNotFound},
		{"send fails", "$1", &fakeRemote{err: remoteErr}, func(model.SessionID) (string, error) { return "ses_1", nil }, remoteErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSender(t.TempDir(), nil, nil)
			var calls []keyCall
			d := &Deliverer{
				Sender:       s,
				Nudger:       recordingNudger(&calls, nil),
				Remote:       tt.remote,
				ResolveAgent: tt.resolve,
			}
			ctx := context.Background()

			err := d.Deliver(ctx, "%2", tt.session, "hello")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(calls) != 0 {
				t.Errorf("pane injected after remote failure: %+v", calls)
			}
			if got, err := s.ReadPrompt(ctx, "%2"); err != nil || !strings.HasSuffix(got, "hello") {
				t.Errorf("inbox after remote failure: %q %v", got, err)
			}
		})
	}
}
