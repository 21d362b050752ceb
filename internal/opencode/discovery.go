package opencode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/timvw/pane-relay/internal/logging"
)

// EnvServerURL names the environment variable consulted during discovery.
const EnvServerURL = "OPENCODE_SERVER_URL"

const (
	DefaultServerURL    = "http://127.0.0.1:4096"
	DefaultCheckTimeout = 2 * time.Second
)

// DefaultPorts are the localhost ports scanned when nothing else answers.
var DefaultPorts = []int{4096, 4097, 4098, 4099}

// ServerState is the outcome of a health check.
type ServerState string

const (
	// StateAvailable means /health answered 2xx.
	StateAvailable ServerState = "available"
	// StateUnavailable means the server answered with another status, or
	// discovery found nothing.
	StateUnavailable ServerState = "unavailable"
	// StateUnknown means the server could not be reached.
	StateUnknown ServerState = "unknown"
)

// ServerStatus describes one checked or discovered server.
type ServerStatus struct {
	Running bool        `json:"running"`
	URL     string      `json:"url,omitempty"`
	State   ServerState `json:"state"`
}

// Discoverer locates a running OpenCode server.
type Discoverer struct {
	// DefaultURL is tried after the configured URL.
	DefaultURL string
	// Ports are scanned on 127.0.0.1 last.
	Ports []int
	// Getenv reads EnvServerURL; defaults to os.Getenv.
	Getenv  func(string) string
	Timeout time.Duration
	// HTTPClient overrides the client used for each health check.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewDiscoverer returns a Discoverer with the default URL, ports and timeout.
func NewDiscoverer(logger *slog.Logger) *Discoverer {
	return &Discoverer{
		DefaultURL: DefaultServerURL,
		Ports:      DefaultPorts,
		Getenv:     os.Getenv,
		Timeout:    DefaultCheckTimeout,
		Logger:     logger,
	}
}

// Check requests url's /health endpoint. An empty url is StateUnknown.
func (d *Discoverer) Check(ctx context.Context, url string) ServerStatus {
	if strings.TrimSpace(url) == "" {
		return ServerStatus{State: StateUnknown}
	}
	client := d.HTTPClient
	if client == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = DefaultCheckTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	ok, err := New(url, WithHTTPClient(client), WithLogger(d.Logger)).Health(ctx)
	switch {
	case err != nil:
		return ServerStatus{URL: url, State: StateUnknown}
	case ok:
		return ServerStatus{Running: true, URL: url, State: StateAvailable}
	default:
		return ServerStatus{URL: url, State: StateUnavailable}
	}
}

// Discover returns the first healthy server among, in order: configured,
// the default URL, $OPENCODE_SERVER_URL, then each port on 127.0.0.1.
// Each candidate is checked once. When none answers the result is
// StateUnavailable with no URL.
func (d *Discoverer) Discover(ctx context.Context, configured string) ServerStatus {
	logger := logging.ForComponent(d.Logger, logging.CompOpenCode)
	tried := make(map[string]bool)
	for _, url := range d.candidates(configured) {
		url = strings.TrimRight(url, "/")
		if url == "" || tried[url] {
			continue
		}
		tried[url] = true
		if ctx.Err() != nil {
			break
		}
		st := d.Check(ctx, url)
		logger.Debug("opencode_check", slog.String("url", url), slog.String("state", string(st.State)))
		if st.Running {
			return st
		}
	}
	return ServerStatus{State: StateUnavailable}
}

func (d *Discoverer) candidates(configured string) []string {
	urls := []string{configured, d.DefaultURL}
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	urls = append(urls, getenv(EnvServerURL))
	for _, p := range d.Ports {
		urls = append(urls, fmt.Sprintf("http://127.0.0.1:%d", p))
	}
	return urls
}
