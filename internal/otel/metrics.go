package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pane-relay"

// Metrics holds all OTEL metric instruments for pane-relay.
// All counters are cumulative (monotonic) and safe for concurrent use.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// tmux transport (partitioned by command + success via attributes)
	Commands        metric.Int64Counter
	CommandDuration metric.Float64Histogram

	// Prompt inbox
	PromptsSent    metric.Int64Counter
	LockContention metric.Int64Counter

	// Capture log
	LinesWatched metric.Int64Counter

	// Queue
	MessagesDispatched metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	// --- tmux transport ---

	m.Commands, err = meter.Int64Counter("tmux.commands",
		metric.WithDescription("Total tmux commands executed, partitioned by command and success"))
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("tmux.command.duration",
		metric.WithDescription("Wall-clock duration of tmux commands"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	// --- prompt inbox ---

	m.PromptsSent, err = meter.Int64Counter("prompts.sent",
		metric.WithDescription("Prompts written to pane inbox files"))
	if err != nil {
		return nil, err
	}

	m.LockContention, err = meter.Int64Counter("prompts.lock_contention",
		metric.WithDescription("Inbox operations rejected because another process held the lock"))
	if err != nil {
		return nil, err
	}

	// --- capture log ---

	m.LinesWatched, err = meter.Int64Counter("log.lines_watched",
		metric.WithDescription("Capture log lines delivered by watchers"),
		metric.WithUnit("{line}"))
	if err != nil {
		return nil, err
	}

	m.MessagesDispatched, err = meter.Int64Counter("queue.dispatched",
		metric.WithDescription("Queued messages handed to the prompt inbox"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCommand records a tmux invocation and its duration.
func (m *Metrics) RecordCommand(ctx context.Context, command string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tmux.command", command),
		attribute.Bool("tmux.success", success),
	)
	m.Commands.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordPromptSent records a prompt written to an inbox file.
func (m *Metrics) RecordPromptSent(ctx context.Context, withMetadata bool) {
	if m == nil {
		return
	}
	m.PromptsSent.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("prompt.metadata", withMetadata),
	))
}

// RecordLockContention records an operation that lost the inbox lock.
func (m *Metrics) RecordLockContention(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.LockContention.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prompt.op", op),
	))
}

// RecordLines records capture log lines delivered to a watcher.
func (m *Metrics) RecordLines(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinesWatched.Add(ctx, int64(n))
}

// RecordDispatch records a queued message handed to the inbox.
func (m *Metrics) RecordDispatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.MessagesDispatched.Add(ctx, 1)
}
