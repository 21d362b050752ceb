package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/timvw/pane-relay/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func TestFIFOOrder(t *testing.T) {
	q := New()
	var want []string
	for _, c := range []string{"one", "two", "three", "four"} {
		want = append(want, q.Push("%1", c).ID)
		if q.Stats().TotalMessages != q.Len() {
			t.Fatalf("stats out of sync with Len")
		}
	}
	for i, id := range want {
		m, ok := q.Pop()
		if !ok || m.ID != id {
			t.Fatalf("pop %d: got %+v, want id %s", i, m, id)
		}
		if q.Stats().TotalMessages != q.Len() {
			t.Fatalf("stats out of sync with Len")
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("pop on empty queue should report false")
	}
}

func TestPushAssignsUUID(t *testing.T) {
	q := New()
	a, b := q.Push("%1", "a"), q.Push("%1", "b")
	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", a.ID, err)
	}
	if a.ID == b.ID {
		t.Error("ids must be unique")
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	q := New()
	if _, ok := q.Peek(); ok {
		t.Error("peek on empty queue should report false")
	}
	first := q.Push("%1", "a")
	q.Push("%2", "b")

	for range 3 {
		m, ok := q.Peek()
		if !ok || m.ID != first.ID {
			t.Fatalf("peek: %+v", m)
		}
		if q.Len() != 2 {
			t.Fatalf("peek changed length to %d", q.Len())
		}
	}
}

func TestStatsScenario(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &clock{t: t0}
	q := &Queue{Now: c.Now}

	if s := q.Stats(); s.TotalMessages != 0 || s.OldestMessageAge != nil {
		t.Fatalf("empty stats: %+v", s)
	}

	q.Push("%1", "A")
	c.t = t0.Add(10 * time.Second)
	q.Push("%1", "B")
	c.t = t0.Add(25 * time.Second)
	q.Push("%1", "C")

	m, _ := q.Pop()
	if m.Content != "A" {
		t.Fatalf("pop: got %q, want A", m.Content)
	}

	c.t = t0.Add(40 * time.Second)
	s := q.Stats()
	if s.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2", s.TotalMessages)
	}
	if s.OldestMessageAge == nil || *s.OldestMessageAge != 30*time.Second {
		t.Errorf("OldestMessageAge = %v, want 30s (now - t1)", s.OldestMessageAge)
	}
}

func TestPushMessageKeepsFields(t *testing.T) {
	q := New()
	at := time.Unix(1000, 0)
	q.PushMessage(model.QueuedMessage{ID: "fixed", PaneID: "%3", Content: "x", QueuedAt: at})
	m, _ := q.Peek()
	if m.ID != "fixed" || !m.QueuedAt.Equal(at) {
		t.Errorf("unexpected entry: %+v", m)
	}
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	q := New()
	q.Push("%1", "a")
	q.Push("%1", "b")
	q.Push("%1", "c")

	boom := errors.New("inbox locked")
	var seen []string
	n, err := q.Drain(context.Background(), func(m model.QueuedMessage) error {
		seen = append(seen, m.Content)
		if m.Content == "b" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	head, _ := q.Peek()
	if head.Content != "b" {
		t.Errorf("failed message should be back at the head, got %q", head.Content)
	}

	n, err = q.Drain(context.Background(), func(m model.QueuedMessage) error {
		seen = append(seen, m.Content)
		return nil
	})
	if err != nil || n != 2 || q.Len() != 0 {
		t.Fatalf("second drain: n=%d err=%v len=%d", n, err, q.Len())
	}
	if got := len(seen); got != 4 || seen[2] != "b" || seen[3] != "c" {
		t.Errorf("delivery order: %v", seen)
	}
}

func TestDrainHonoursCancel(t *testing.T) {
	q := New()
	q.Push("%1", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := q.Drain(ctx, func(model.QueuedMessage) error { return nil })
	if !errors.Is(err, context.Canceled) || n != 0 || q.Len() != 1 {
		t.Errorf("n=%d err=%v len=%d", n, err, q.Len())
	}
}
