// Package config loads pane-relay configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PANE_RELAY_*, OTEL_EXPORTER_OTLP_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .pane-relay.yaml in current directory
//  2. ~/.config/pane-relay/config.yaml
//
// The resolved Config is handed to each component constructor. Nothing in
// this package keeps process-wide state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pane-relay configuration.
type Config struct {
	// tmux transport
	TmuxBinary string `yaml:"tmux_binary"`
	SocketName string `yaml:"socket_name"` // passed as tmux -L; empty uses the default server

	// Filesystem layout
	BasePath string `yaml:"base_path"` // prompt inbox root; prompts live under <base_path>/.opencode/prompts
	LogDir   string `yaml:"log_dir"`   // capture logs, one <session_id>.log per session
	StateDir string `yaml:"state_dir"` // session mapping store

	// Timing
	PollInterval string `yaml:"poll_interval"` // Go duration string, e.g. "100ms"
	NudgeDelay   string `yaml:"nudge_delay"`   // pause between typing a prompt and pressing Enter

	// OpenCode server for remote prompt delivery. Empty means discover:
	// $OPENCODE_SERVER_URL, then 127.0.0.1 ports 4096-4099.
	OpenCodeURL string `yaml:"opencode_url"`

	// Sessions hidden from list and console. Trailing * is a prefix glob.
	ExcludeSessions []string `yaml:"exclude_sessions"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"` // "text" or "json"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	PollIntervalDuration time.Duration `yaml:"-"`
	NudgeDelayDuration   time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	cfg := &Config{
		TmuxBinary:   "tmux",
		BasePath:     ".",
		LogDir:       filepath.Join(os.TempDir(), "tmux_logs"),
		PollInterval: "100ms",
		NudgeDelay:   "500ms",
		LogLevel:     "warn",
		LogFormat:    "text",
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.BasePath = wd
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.StateDir = filepath.Join(home, ".local", "state", "pane-relay")
	} else {
		cfg.StateDir = filepath.Join(os.TempDir(), "pane-relay")
	}
	return cfg
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	mergeEnv(cfg)

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve parses duration strings and expands ~ in paths.
func (c *Config) resolve() error {
	var err error
	c.PollIntervalDuration, err = parseDurationOrDisable(c.PollInterval, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid poll interval %q: %w", c.PollInterval, err)
	}
	if c.PollIntervalDuration == 0 {
		return fmt.Errorf("invalid poll interval %q: must be positive", c.PollInterval)
	}
	c.NudgeDelayDuration, err = parseDurationOrDisable(c.NudgeDelay, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid nudge delay %q: %w", c.NudgeDelay, err)
	}

	c.BasePath = expandHome(c.BasePath)
	c.LogDir = expandHome(c.LogDir)
	c.StateDir = expandHome(c.StateDir)
	c.LogFile = expandHome(c.LogFile)
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".pane-relay.yaml"); err == nil {
		return ".pane-relay.yaml", data, nil
	}

	// 2. ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "pane-relay", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	setString(&cfg.TmuxBinary, file.TmuxBinary)
	setString(&cfg.SocketName, file.SocketName)
	setString(&cfg.BasePath, file.BasePath)
	setString(&cfg.LogDir, file.LogDir)
	setString(&cfg.StateDir, file.StateDir)
	setString(&cfg.PollInterval, file.PollInterval)
	setString(&cfg.NudgeDelay, file.NudgeDelay)
	setString(&cfg.OpenCodeURL, file.OpenCodeURL)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.LogFile, file.LogFile)
	setString(&cfg.LogFormat, file.LogFormat)
	setString(&cfg.OTELEndpoint, file.OTELEndpoint)
	setString(&cfg.OTELHeaders, file.OTELHeaders)
	if len(file.ExcludeSessions) > 0 {
		cfg.ExcludeSessions = file.ExcludeSessions
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	setString(&cfg.TmuxBinary, os.Getenv("PANE_RELAY_TMUX_BINARY"))
	setString(&cfg.SocketName, os.Getenv("PANE_RELAY_SOCKET_NAME"))
	setString(&cfg.BasePath, os.Getenv("PANE_RELAY_BASE_PATH"))
	setString(&cfg.LogDir, os.Getenv("PANE_RELAY_LOG_DIR"))
	setString(&cfg.StateDir, os.Getenv("PANE_RELAY_STATE_DIR"))
	setString(&cfg.PollInterval, os.Getenv("PANE_RELAY_POLL_INTERVAL"))
	setString(&cfg.NudgeDelay, os.Getenv("PANE_RELAY_NUDGE_DELAY"))
	setString(&cfg.OpenCodeURL, os.Getenv("PANE_RELAY_OPENCODE_URL"))
	setString(&cfg.LogLevel, os.Getenv("PANE_RELAY_LOG_LEVEL"))
	setString(&cfg.LogFile, os.Getenv("PANE_RELAY_LOG_FILE"))
	setString(&cfg.LogFormat, os.Getenv("PANE_RELAY_LOG_FORMAT"))
	setString(&cfg.OTELEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setString(&cfg.OTELHeaders, os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	if v := os.Getenv("PANE_RELAY_EXCLUDE_SESSIONS"); v != "" {
		var patterns []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		cfg.ExcludeSessions = patterns
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// MatchesExcludeList reports whether name matches any pattern. A pattern
// ending in * matches by prefix; anything else must match exactly.
func MatchesExcludeList(name string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}
