package model

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies a failure. Callers branch on kind, not on message text.
type Kind string

const (
	// KindIO is a filesystem or process-launch failure.
	KindIO Kind = "io"
	// KindCommand means tmux ran but reported failure, or a log query failed.
	KindCommand Kind = "command"
	// KindParse means tmux output did not have the expected shape.
	KindParse Kind = "parse"
	// KindNotFound means the queried entity or file is absent.
	KindNotFound Kind = "not_found"
	// KindProcess is lock contention or another OS-level failure; Errno is set.
	KindProcess Kind = "process"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrIO       = &Error{Kind: KindIO}
	ErrCommand  = &Error{Kind: KindCommand}
	ErrParse    = &Error{Kind: KindParse}
	ErrNotFound = &Error{Kind: KindNotFound}
	ErrProcess  = &Error{Kind: KindProcess}
)

// Error is the error type returned by every core operation.
type Error struct {
	Kind Kind
	// Op names the failed operation (e.g., "list-sessions", "read prompt").
	Op  string
	Msg string
	// Errno is the OS error code for KindProcess errors.
	Errno syscall.Errno
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op
	}
	if e.Kind == KindProcess && e.Errno != 0 {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Errno.Error(), msg)
	}
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause. Errno is filled in from cause when it
// carries one.
func Wrap(kind Kind, op string, cause error) error {
	e := &Error{Kind: kind, Op: op, Err: cause}
	var errno syscall.Errno
	if errors.As(cause, &errno) {
		e.Errno = errno
	}
	return e
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ExitCode maps an error to a process exit status: 0 for nil, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
