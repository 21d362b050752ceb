package capture

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/timvw/pane-relay/internal/model"
)

// readChunk bounds a single read from the log.
const readChunk = 64 << 10

// follower tracks how far into one log file lines have been delivered.
type follower struct {
	path    string
	offset  int64
	quiet   time.Duration
	partial string
	flushed bool
	grewAt  time.Time
	pending []string
}

// poll reads up to readChunk bytes appended since the last call and queues
// the complete lines among them. It reports whether more bytes remain.
// A trailing line without \n is held until it completes, or until the file
// has not grown for the quiet interval, when it is delivered as is and a
// newline arriving right after it is dropped.
// A file shorter than the offset was truncated and is reread from 0.
func (f *follower) poll(now time.Time) (bool, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return false, err
	}
	size := info.Size()
	if size < f.offset {
		f.offset = 0
		f.partial = ""
		f.flushed = false
	}
	if size == f.offset {
		if f.partial != "" && now.Sub(f.grewAt) >= f.quiet {
			f.pending = append(f.pending, strings.TrimSuffix(f.partial, "\r"))
			f.partial = ""
			f.flushed = true
		}
		return false, nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	buf := make([]byte, min(size-f.offset, readChunk))
	n, err := file.ReadAt(buf, f.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	f.offset += int64(n)
	f.grewAt = now

	chunk := f.partial + string(buf[:n])
	if f.flushed && n > 0 {
		// The newline ending an already delivered line.
		if rest, ok := strings.CutPrefix(chunk, "\r\n"); ok {
			chunk = rest
		} else {
			chunk = strings.TrimPrefix(chunk, "\n")
		}
		f.flushed = false
	}
	parts := strings.Split(chunk, "\n")
	f.partial = parts[len(parts)-1]
	for _, l := range parts[:len(parts)-1] {
		f.pending = append(f.pending, strings.TrimSuffix(l, "\r"))
	}
	return n > 0 && f.offset < size, nil
}

// next pops the oldest undelivered line.
func (f *follower) next() (string, bool) {
	if len(f.pending) == 0 {
		return "", false
	}
	line := f.pending[0]
	f.pending = f.pending[1:]
	return line, true
}

// WatchLog delivers lines appended to session's log, oldest first, starting
// from the beginning of the file. It blocks until ctx is done, fn returns
// an error, or the log cannot be read. A missing log fails with
// KindNotFound before watching starts; read failures later are KindCommand.
//
// The file size is polled every poll interval. An fsnotify watch on the log
// directory triggers an early poll on writes; it is not relied on. A last
// line without a newline is delivered once the file stays unchanged for the
// partial flush interval.
func (r *Reader) WatchLog(ctx context.Context, session model.SessionID, fn func(string) error) error {
	f := r.newFollower(session)
	if err := r.checkExists(f.path); err != nil {
		return err
	}
	return r.follow(ctx, f, fn)
}

// FollowLog is WatchLog starting at the current end of the file.
func (r *Reader) FollowLog(ctx context.Context, session model.SessionID, fn func(string) error) error {
	f := r.newFollower(session)
	if err := r.checkExists(f.path); err != nil {
		return err
	}
	if info, err := os.Stat(f.path); err == nil {
		f.offset = info.Size()
	}
	return r.follow(ctx, f, fn)
}

// Lines is WatchLog as an iterator. Breaking out of the loop stops the
// watch; ranging again resumes after the last delivered line. A terminal
// error, including cancellation, is yielded once with an empty line.
func (r *Reader) Lines(ctx context.Context, session model.SessionID) iter.Seq2[string, error] {
	f := r.newFollower(session)
	checked := false
	return func(yield func(string, error) bool) {
		if !checked {
			if err := r.checkExists(f.path); err != nil {
				yield("", err)
				return
			}
			checked = true
		}
		err := r.follow(ctx, f, func(line string) error {
			if !yield(line, nil) {
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield("", err)
		}
	}
}

var errStopIteration = errors.New("stop iteration")

func (r *Reader) newFollower(session model.SessionID) *follower {
	return &follower{path: r.LogPath(session), quiet: r.flush}
}

func (r *Reader) checkExists(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Errorf(model.KindNotFound, "watch log", "log file does not exist: %s", path)
	}
	if err != nil {
		return model.Wrap(model.KindCommand, "watch log", err)
	}
	return nil
}

func (r *Reader) follow(ctx context.Context, f *follower, fn func(string) error) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if w, err := fsnotify.NewWatcher(); err != nil {
		r.logger.Debug("log_watch_fsnotify_unavailable", slog.String("error", err.Error()))
	} else {
		defer w.Close()
		if err := w.Add(r.dir); err != nil {
			r.logger.Debug("log_watch_add_failed", slog.String("dir", r.dir), slog.String("error", err.Error()))
		} else {
			events, watchErrs = w.Events, w.Errors
		}
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.logger.Debug("log_watch_started", slog.String("path", f.path), slog.Int64("offset", f.offset))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := f.poll(time.Now())
		if err != nil {
			return model.Wrap(model.KindCommand, "watch log", err)
		}
		delivered := 0
		for line, ok := f.next(); ok; line, ok = f.next() {
			delivered++
			if err := fn(line); err != nil {
				r.metrics.RecordLines(ctx, delivered)
				return err
			}
		}
		r.metrics.RecordLines(ctx, delivered)
		if more {
			continue
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				break wait
			case ev, ok := <-events:
				if !ok {
					events = nil
				} else if ev.Name == f.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					break wait
				}
			case err, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
				} else {
					r.logger.Debug("log_watch_fsnotify_error", slog.String("error", err.Error()))
				}
			}
		}
	}
}
