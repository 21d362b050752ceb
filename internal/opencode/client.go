// Package opencode talks to an OpenCode server's session API over HTTP:
// sending prompts, listing sessions and reading back their messages.
package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	relayotel "github.com/timvw/pane-relay/internal/otel"
)

var tracer = relayotel.Tracer("opencode")

const (
	DefaultTimeout = 10 * time.Second
	// maxErrorBody caps the response text kept in an API error.
	maxErrorBody = 4096
)

// SessionInfo describes one OpenCode session.
type SessionInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SessionStatus is the server's view of a session's activity.
type SessionStatus struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
}

// ToolCall is a tool invocation recorded in a message.
type ToolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Message is one entry in a session's conversation.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// SessionOutput is a session's full message history.
type SessionOutput struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	LastActivity string    `json:"last_activity"`
}

// Client is an OpenCode session API client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.ForComponent(c.logger, logging.CompOpenCode)
	return c
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SendPrompt submits prompt to session as a new turn.
func (c *Client) SendPrompt(ctx context.Context, session, prompt string) error {
	return c.post(ctx, "send prompt", sessionPath(session, "prompt"), prompt)
}

// SendMessage appends message to session without starting a turn.
func (c *Client) SendMessage(ctx context.Context, session, message string) error {
	return c.post(ctx, "send message", sessionPath(session, "message"), message)
}

// ListSessions returns every session the server knows.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var sessions []SessionInfo
	if err := c.do(ctx, "list sessions", http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Status returns session's status.
func (c *Client) Status(ctx context.Context, session string) (SessionStatus, error) {
	var st SessionStatus
	err := c.do(ctx, "session status", http.MethodGet, sessionPath(session, "status"), nil, &st)
	return st, err
}

// Output returns session's message history.
func (c *Client) Output(ctx context.Context, session string) (SessionOutput, error) {
	var out SessionOutput
	err := c.do(ctx, "session messages", http.MethodGet, sessionPath(session, "messages"), nil, &out)
	return out, err
}

// Messages returns session's messages, oldest first.
func (c *Client) Messages(ctx context.Context, session string) ([]Message, error) {
	out, err := c.Output(ctx, session)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// TailMessages returns the last n messages of session. n <= 0 returns none.
func (c *Client) TailMessages(ctx context.Context, session string, n int) ([]Message, error) {
	msgs, err := c.Messages(ctx, session)
	if err != nil || n <= 0 {
		return nil, err
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// WatchMessages polls session every interval and calls fn once for each
// message it has not delivered before, in server order. It returns when
// ctx is done, fn fails, or a fetch fails.
func (c *Client) WatchMessages(ctx context.Context, session string, interval time.Duration, fn func(Message) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	seen := make(map[string]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msgs, err := c.Messages(ctx, session)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if err := fn(m); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health reports whether the server answers /health with a 2xx status.
// A server that cannot be reached is an error, not false.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, model.Wrap(model.KindCommand, "health check", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, model.Wrap(model.KindCommand, "health check", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func sessionPath(session, leaf string) string {
	return "/session/" + url.PathEscape(session) + "/" + leaf
}

func (c *Client) post(ctx context.Context, op, path, content string) error {
	body := struct {
		Content string `json:"content"`
	}{content}
	return c.do(ctx, op, http.MethodPost, path, body, nil)
}

// do sends one request. in is encoded as JSON when non-nil; a 2xx body is
// decoded into out when out is non-nil. A 404 is KindNotFound, any other
// non-2xx or transport failure KindCommand, and an undecodable body
// KindParse.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := tracer.Start(ctx, "opencode_request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return model.Wrap(model.KindParse, op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return model.Wrap(model.KindCommand, op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("opencode_request_failed", slog.String("op", op), slog.String("error", err.Error()))
		return model.Wrap(model.KindCommand, op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("opencode_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Errorf(model.KindParse, op, "empty response body")
		}
		return model.Wrap(model.KindParse, op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	kind := model.KindCommand
	if resp.StatusCode == http.StatusNotFound {
		kind = model.KindNotFound
	}
	return model.Errorf(kind, op, "OpenCode API error: %d - %s", resp.StatusCode, text)
}
