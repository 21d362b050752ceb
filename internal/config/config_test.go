package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"PANE_RELAY_TMUX_BINARY", "PANE_RELAY_SOCKET_NAME", "PANE_RELAY_BASE_PATH",
	"PANE_RELAY_LOG_DIR", "PANE_RELAY_STATE_DIR", "PANE_RELAY_POLL_INTERVAL",
	"PANE_RELAY_NUDGE_DELAY", "PANE_RELAY_LOG_LEVEL", "PANE_RELAY_LOG_FILE",
	"PANE_RELAY_LOG_FORMAT", "PANE_RELAY_EXCLUDE_SESSIONS", "PANE_RELAY_OPENCODE_URL",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
}

// chdirIsolated moves into a fresh directory with HOME pointing at it and
// every recognised env var cleared.
func chdirIsolated(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(origDir) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", dir)
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.TmuxBinary != "tmux" {
		t.Errorf("TmuxBinary: got %q, want %q", cfg.TmuxBinary, "tmux")
	}
	if want := filepath.Join(os.TempDir(), "tmux_logs"); cfg.LogDir != want {
		t.Errorf("LogDir: got %q, want %q", cfg.LogDir, want)
	}
	if cfg.PollInterval != "100ms" {
		t.Errorf("PollInterval: got %q, want %q", cfg.PollInterval, "100ms")
	}
	if cfg.NudgeDelay != "500ms" {
		t.Errorf("NudgeDelay: got %q, want %q", cfg.NudgeDelay, "500ms")
	}
	if cfg.SocketName != "" {
		t.Errorf("SocketName: got %q, want empty", cfg.SocketName)
	}
}

func TestMatchesExcludeList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		patterns []string
		want     bool
	}{
		{"exact match", "my-session", []string{"my-session"}, true},
		{"exact no match", "my-session", []string{"other-session"}, false},
		{"prefix glob match", "scratch-1234", []string{"scratch-*"}, true},
		{"prefix glob no match", "my-session", []string{"scratch-*"}, false},
		{"prefix glob exact prefix", "scratch-", []string{"scratch-*"}, true},
		{"empty patterns", "anything", []string{}, false},
		{"nil patterns", "anything", nil, false},
		{"multiple patterns last match", "bar", []string{"foo", "scratch-*", "bar"}, true},
		{"star only matches everything", "anything", []string{"*"}, true},
		{"empty name with star", "", []string{"*"}, true},
		{"empty name no match", "", []string{"foo"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchesExcludeList(tt.input, tt.patterns)
			if got != tt.want {
				t.Errorf("MatchesExcludeList(%q, %v) = %v, want %v",
					tt.input, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDisable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMs  int64
		wantErr bool
	}{
		{"empty returns fallback", "", 5000, false},
		{"zero disables", "0", 0, false},
		{"off disables", "off", 0, false},
		{"disable disables", "disable", 0, false},
		{"valid duration", "30s", 30000, false},
		{"valid short duration", "500ms", 500, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationOrDisable(tt.input, 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDurationOrDisable(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.Milliseconds() != tt.wantMs {
				t.Errorf("parseDurationOrDisable(%q) = %v, want %dms", tt.input, got, tt.wantMs)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := chdirIsolated(t)
	content := `tmux_binary: /opt/tmux/bin/tmux
socket_name: relay
base_path: /srv/agents
log_dir: ~/capture
poll_interval: 250ms
nudge_delay: off
opencode_url: http://127.0.0.1:4098
exclude_sessions:
  - "scratch-*"
  - "private"
log_level: debug
`
	if err := os.WriteFile(filepath.Join(dir, ".pane-relay.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigFile != ".pane-relay.yaml" {
		t.Errorf("ConfigFile: got %q", cfg.ConfigFile)
	}
	if cfg.TmuxBinary != "/opt/tmux/bin/tmux" {
		t.Errorf("TmuxBinary: got %q", cfg.TmuxBinary)
	}
	if cfg.SocketName != "relay" {
		t.Errorf("SocketName: got %q, want %q", cfg.SocketName, "relay")
	}
	if cfg.BasePath != "/srv/agents" {
		t.Errorf("BasePath: got %q", cfg.BasePath)
	}
	if want := filepath.Join(dir, "capture"); cfg.LogDir != want {
		t.Errorf("LogDir: got %q, want %q", cfg.LogDir, want)
	}
	if cfg.PollIntervalDuration != 250*time.Millisecond {
		t.Errorf("PollIntervalDuration: got %v", cfg.PollIntervalDuration)
	}
	if cfg.NudgeDelayDuration != 0 {
		t.Errorf("NudgeDelayDuration: got %v, want 0", cfg.NudgeDelayDuration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
	if cfg.OpenCodeURL != "http://127.0.0.1:4098" {
		t.Errorf("OpenCodeURL: got %q", cfg.OpenCodeURL)
	}
	if len(cfg.ExcludeSessions) != 2 {
		t.Fatalf("ExcludeSessions: got %d entries, want 2", len(cfg.ExcludeSessions))
	}
	if cfg.ExcludeSessions[0] != "scratch-*" {
		t.Errorf("ExcludeSessions[0]: got %q, want %q", cfg.ExcludeSessions[0], "scratch-*")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := chdirIsolated(t)
	content := `socket_name: from-file
log_dir: /var/log/file
opencode_url: http://file:4096
`
	if err := os.WriteFile(filepath.Join(dir, ".pane-relay.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PANE_RELAY_SOCKET_NAME", "from-env")
	t.Setenv("PANE_RELAY_EXCLUDE_SESSIONS", "a, b*,")
	t.Setenv("PANE_RELAY_OPENCODE_URL", "http://env:4097")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SocketName != "from-env" {
		t.Errorf("SocketName: got %q, want %q (env should override file)", cfg.SocketName, "from-env")
	}
	if cfg.LogDir != "/var/log/file" {
		t.Errorf("LogDir: got %q, want file value", cfg.LogDir)
	}
	if len(cfg.ExcludeSessions) != 2 || cfg.ExcludeSessions[1] != "b*" {
		t.Errorf("ExcludeSessions: got %v", cfg.ExcludeSessions)
	}
	if cfg.OpenCodeURL != "http://env:4097" {
		t.Errorf("OpenCodeURL: got %q, want env value", cfg.OpenCodeURL)
	}
}

func TestLoadFromHomeConfig(t *testing.T) {
	dir := chdirIsolated(t)
	cfgDir := filepath.Join(dir, ".config", "pane-relay")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("socket_name: home\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SocketName != "home" {
		t.Errorf("SocketName: got %q, want %q", cfg.SocketName, "home")
	}
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	chdirIsolated(t)

	for _, v := range []string{"soon", "0"} {
		t.Setenv("PANE_RELAY_POLL_INTERVAL", v)
		if _, err := Load(); err == nil {
			t.Errorf("Load() with poll interval %q: expected error", v)
		}
	}
}
