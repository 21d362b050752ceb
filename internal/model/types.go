// Package model holds the value types exchanged between the tmux transport,
// the prompt inbox and the capture log reader.
//
// Every entity is a snapshot built fresh from a tmux listing. Ids are tmux's
// own ($0, @0, %0) and are not stable across server restarts, so nothing in
// this package caches them.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SessionID is a tmux session id such as "$0".
type SessionID string

// WindowID is a tmux window id such as "@0".
type WindowID string

// PaneID is a tmux pane id such as "%0".
type PaneID string

func (id SessionID) String() string { return string(id) }
func (id WindowID) String() string  { return string(id) }
func (id PaneID) String() string    { return string(id) }

// Valid reports whether the id is non-empty. tmux owns the syntax.
func (id SessionID) Valid() bool { return strings.TrimSpace(string(id)) != "" }

// Valid reports whether the id is non-empty.
func (id WindowID) Valid() bool { return strings.TrimSpace(string(id)) != "" }

// Valid reports whether the id is non-empty.
func (id PaneID) Valid() bool { return strings.TrimSpace(string(id)) != "" }

// Session is a tmux session and the windows it owns.
type Session struct {
	// ID is the tmux session id (e.g., "$3").
	ID SessionID `json:"id"`
	// Name is the user-visible session name.
	Name string `json:"name"`
	// Windows are ordered as tmux lists them.
	Windows []Window `json:"windows"`
	// Attached is true when at least one client is attached.
	Attached bool `json:"attached"`
}

// Window is a tmux window. SessionID is a back-reference used for lookup only.
type Window struct {
	ID        WindowID  `json:"id"`
	SessionID SessionID `json:"session_id"`
	Name      string    `json:"name"`
	Panes     []Pane    `json:"panes"`
	Active    bool      `json:"active"`
}

// Pane is a tmux pane.
type Pane struct {
	ID        PaneID    `json:"id"`
	WindowID  WindowID  `json:"window_id"`
	SessionID SessionID `json:"session_id"`
	// CurrentPath is nil when tmux reported no working directory.
	CurrentPath *string `json:"current_path,omitempty"`
	// PID is nil when tmux reported no shell process.
	PID    *int `json:"pid,omitempty"`
	Active bool `json:"active"`
}

// ActiveWindow returns the window tmux marked active, if any.
func (s Session) ActiveWindow() (Window, bool) {
	for _, w := range s.Windows {
		if w.Active {
			return w, true
		}
	}
	return Window{}, false
}

// FirstPane returns the active pane of the active window, falling back to the
// first pane of the first window.
func (s Session) FirstPane() (Pane, bool) {
	if w, ok := s.ActiveWindow(); ok {
		for _, p := range w.Panes {
			if p.Active {
				return p, true
			}
		}
		if len(w.Panes) > 0 {
			return w.Panes[0], true
		}
	}
	for _, w := range s.Windows {
		if len(w.Panes) > 0 {
			return w.Panes[0], true
		}
	}
	return Pane{}, false
}

// TargetKind selects the -t flag a command is issued with.
type TargetKind int

const (
	TargetServer TargetKind = iota
	TargetSession
	TargetWindow
	TargetPane
)

func (k TargetKind) String() string {
	switch k {
	case TargetServer:
		return "server"
	case TargetSession:
		return "session"
	case TargetWindow:
		return "window"
	case TargetPane:
		return "pane"
	default:
		return fmt.Sprintf("target(%d)", int(k))
	}
}

// CommandTarget is one of server, session, window or pane. Build it with the
// constructor functions; the zero value targets the server.
type CommandTarget struct {
	Kind TargetKind `json:"kind"`
	// ID is the tmux id for session, window and pane targets.
	ID string `json:"id,omitempty"`
}

func ServerTarget() CommandTarget              { return CommandTarget{Kind: TargetServer} }
func SessionTarget(id SessionID) CommandTarget { return CommandTarget{Kind: TargetSession, ID: string(id)} }
func WindowTarget(id WindowID) CommandTarget   { return CommandTarget{Kind: TargetWindow, ID: string(id)} }
func PaneTarget(id PaneID) CommandTarget       { return CommandTarget{Kind: TargetPane, ID: string(id)} }
func (t CommandTarget) IsServer() bool         { return t.Kind == TargetServer }
func (t CommandTarget) String() string {
	if t.Kind == TargetServer {
		return "server"
	}
	return t.Kind.String() + ":" + t.ID
}

// Command describes a single tmux invocation. It is a request descriptor:
// building one has no effect until it is passed to an executor.
type Command struct {
	// Name is the tmux command (e.g., "list-sessions").
	Name   string        `json:"command"`
	Target CommandTarget `json:"target"`
	Args   []string      `json:"args,omitempty"`
}

// DataKind tags the payload carried by a Response.
type DataKind int

const (
	DataEmpty DataKind = iota
	DataSession
	DataWindow
	DataPane
	DataSessions
	DataWindows
	DataPanes
	DataOutput
)

// ResponseData is a tagged payload. Only the field matching Kind is set.
type ResponseData struct {
	Kind     DataKind  `json:"kind"`
	Session  *Session  `json:"session,omitempty"`
	Window   *Window   `json:"window,omitempty"`
	Pane     *Pane     `json:"pane,omitempty"`
	Sessions []Session `json:"sessions,omitempty"`
	Windows  []Window  `json:"windows,omitempty"`
	Panes    []Pane    `json:"panes,omitempty"`
	Output   string    `json:"output,omitempty"`
}

func EmptyData() ResponseData               { return ResponseData{Kind: DataEmpty} }
func OutputData(out string) ResponseData    { return ResponseData{Kind: DataOutput, Output: out} }
func SessionsData(s []Session) ResponseData { return ResponseData{Kind: DataSessions, Sessions: s} }

// Response is the outcome of a tmux command that ran to completion.
type Response struct {
	Success bool         `json:"success"`
	Data    ResponseData `json:"data"`
	// Error is set from stderr when Success is false.
	Error *string `json:"error,omitempty"`
}

// ErrorText returns the error message, or fallback when tmux printed nothing.
func (r Response) ErrorText(fallback string) string {
	if r.Error != nil && strings.TrimSpace(*r.Error) != "" {
		return strings.TrimSpace(*r.Error)
	}
	return fallback
}

// Message is a point-in-time record of a prompt sent to a pane.
type Message struct {
	ID      string `json:"id"`
	PaneID  PaneID `json:"pane_id"`
	Content string `json:"content"`
	// Timestamp is unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// QueuedMessage is a message waiting in the in-memory queue.
type QueuedMessage struct {
	ID       string    `json:"id"`
	PaneID   PaneID    `json:"pane_id"`
	Content  string    `json:"content"`
	QueuedAt time.Time `json:"queued_at"`
}

// Message converts the queued entry into a send record.
func (q QueuedMessage) Message() Message {
	return Message{ID: q.ID, PaneID: q.PaneID, Content: q.Content, Timestamp: q.QueuedAt.Unix()}
}

// QueueStats summarizes the queue. OldestMessageAge is nil when empty.
type QueueStats struct {
	TotalMessages    int            `json:"total_messages"`
	OldestMessageAge *time.Duration `json:"oldest_message_age,omitempty"`
}

// PromptMetadata records where a delivered prompt came from.
type PromptMetadata struct {
	SessionID SessionID `json:"session_id"`
	// Timestamp is unix seconds.
	Timestamp int64  `json:"timestamp"`
	Agent     string `json:"agent"`
}

// NewPromptMetadata stamps metadata with the given time.
func NewPromptMetadata(session SessionID, agent string, now time.Time) PromptMetadata {
	return PromptMetadata{SessionID: session, Timestamp: now.Unix(), Agent: agent}
}
