// Package queue is an in-memory FIFO of prompts waiting to be delivered.
//
// A Queue has a single owner. It does no locking; callers sharing one across
// goroutines must synchronize access themselves.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/otel"
)

// Queue holds pending messages oldest first.
type Queue struct {
	items []model.QueuedMessage

	// Now is the clock used for queued_at and ages. Defaults to time.Now.
	Now     func() time.Time
	Metrics *otel.Metrics
	Logger  *slog.Logger
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{Now: time.Now}
}

func (q *Queue) now() time.Time {
	if q.Now == nil {
		return time.Now()
	}
	return q.Now()
}

// Push enqueues content for pane and returns the stored entry.
func (q *Queue) Push(pane model.PaneID, content string) model.QueuedMessage {
	m := model.QueuedMessage{
		ID:       uuid.NewString(),
		PaneID:   pane,
		Content:  content,
		QueuedAt: q.now(),
	}
	q.items = append(q.items, m)
	return m
}

// PushMessage enqueues an existing entry unchanged.
func (q *Queue) PushMessage(m model.QueuedMessage) {
	q.items = append(q.items, m)
}

// Pop removes and returns the oldest entry.
func (q *Queue) Pop() (model.QueuedMessage, bool) {
	if len(q.items) == 0 {
		return model.QueuedMessage{}, false
	}
	m := q.items[0]
	q.items[0] = model.QueuedMessage{}
	q.items = q.items[1:]
	return m, true
}

// Peek returns the oldest entry without removing it.
func (q *Queue) Peek() (model.QueuedMessage, bool) {
	if len(q.items) == 0 {
		return model.QueuedMessage{}, false
	}
	return q.items[0], true
}

func (q *Queue) Len() int { return len(q.items) }

// Stats reports the queue length and the age of the oldest entry.
func (q *Queue) Stats() model.QueueStats {
	stats := model.QueueStats{TotalMessages: len(q.items)}
	if len(q.items) > 0 {
		age := q.now().Sub(q.items[0].QueuedAt)
		stats.OldestMessageAge = &age
	}
	return stats
}

// Drain pops entries in order and hands each to deliver. It stops at the
// first failure, puts that entry back at the head, and returns the error
// with the number of entries delivered so far.
func (q *Queue) Drain(ctx context.Context, deliver func(model.QueuedMessage) error) (int, error) {
	logger := logging.ForComponent(q.Logger, logging.CompQueue)
	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		m, ok := q.Pop()
		if !ok {
			return delivered, nil
		}
		if err := deliver(m); err != nil {
			q.items = append([]model.QueuedMessage{m}, q.items...)
			logger.Warn("queue_delivery_failed",
				slog.String("id", m.ID),
				slog.String("pane", string(m.PaneID)),
				slog.String("error", err.Error()))
			return delivered, fmt.Errorf("deliver message %s: %w", m.ID, err)
		}
		delivered++
		q.Metrics.RecordDispatch(ctx)
	}
}
