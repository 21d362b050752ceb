package opencode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func healthServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func testDiscoverer(env map[string]string) *Discoverer {
	return &Discoverer{
		Getenv: func(k string) string { return env[k] },
	}
}

func TestCheck(t *testing.T) {
	up := healthServer(t, http.StatusOK)
	sick := healthServer(t, http.StatusServiceUnavailable)
	d := testDiscoverer(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		url     string
		state   ServerState
		running bool
	}{
		{"healthy", up.URL, StateAvailable, true},
		{"unhealthy", sick.URL, StateUnavailable, false},
		{"unreachable", deadURL(t), StateUnknown, false},
		{"empty", "", StateUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := d.Check(ctx, tt.url)
			if st.State != tt.state || st.Running != tt.running {
				t.Errorf("Check(%q) = %+v", tt.url, st)
			}
			if tt.url != "" && st.URL != tt.url {
				t.Errorf("URL = %q, want %q", st.URL, tt.url)
			}
		})
	}
}

func TestDiscover_Order(t *testing.T) {
	configured := healthServer(t, http.StatusOK)
	fallback := healthServer(t, http.StatusOK)
	sick := healthServer(t, http.StatusServiceUnavailable)
	ctx := context.Background()

	tests := []struct {
		name       string
		configured string
		defaultURL string
		env        string
		want       string
	}{
		{"configured wins", configured.URL, fallback.URL, "", configured.URL},
		{"default after dead configured", deadURL(t), fallback.URL, "", fallback.URL},
		{"env after unhealthy default", "", sick.URL, fallback.URL + "/", fallback.URL},
		{"nothing answers", deadURL(t), sick.URL, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDiscoverer(map[string]string{EnvServerURL: tt.env})
			d.DefaultURL = tt.defaultURL

			st := d.Discover(ctx, tt.configured)
			if st.URL != tt.want {
				t.Errorf("Discover = %+v, want url %q", st, tt.want)
			}
			if tt.want == "" && (st.Running || st.State != StateUnavailable) {
				t.Errorf("no server: got %+v", st)
			}
			if tt.want != "" && (!st.Running || st.State != StateAvailable) {
				t.Errorf("found server: got %+v", st)
			}
		})
	}
}

func TestDiscover_ChecksEachCandidateOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := testDiscoverer(map[string]string{EnvServerURL: srv.URL})
	d.DefaultURL = srv.URL + "/"
	d.Discover(context.Background(), srv.URL)
	if n := hits.Load(); n != 1 {
		t.Errorf("server checked %d times, want 1", n)
	}
}

func TestNewDiscovererDefaults(t *testing.T) {
	d := NewDiscoverer(nil)
	if d.DefaultURL != DefaultServerURL || len(d.Ports) != 4 || d.Ports[0] != 4096 || d.Ports[3] != 4099 {
		t.Errorf("defaults = %+v", d)
	}
	got := d.candidates("http://example:1")
	if got[0] != "http://example:1" || got[1] != DefaultServerURL || got[len(got)-1] != "http://127.0.0.1:4099" {
		t.Errorf("candidates = %q", got)
	}
}
