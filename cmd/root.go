package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/capture"
	"github.com/timvw/pane-relay/internal/config"
	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/mapping"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/mux"
	"github.com/timvw/pane-relay/internal/opencode"
	telem "github.com/timvw/pane-relay/internal/otel"
	"github.com/timvw/pane-relay/internal/prompt"
)

// Version is set at build time with -ldflags "-X github.com/timvw/pane-relay/cmd.Version=...".
var Version = "dev"

var (
	// Global flags. Empty values leave the config untouched.
	flagSocket   string
	flagTmux     string
	flagBasePath string
	flagLogDir   string
	flagStateDir string
	flagLogLevel string
	flagJSON     bool
)

// runtime holds everything resolved once per invocation.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	tel       *telem.Telemetry
}

var rt runtime

var rootCmd = &cobra.Command{
	Use:   "pane-relay",
	Short: "Drive tmux sessions and relay prompts to AI coding agents",
	Long: `pane-relay controls tmux sessions, windows and panes, delivers prompts to
agents running in panes, and reads back what those agents print.

Prompts are written to per-pane inbox files under <base_path>/.opencode/prompts
and can optionally be typed into the pane. Pane output is captured with
tmux pipe-pane into <log_dir>/<session_id>.log and read with the output
commands.

Configuration is loaded from .pane-relay.yaml, ~/.config/pane-relay/config.yaml
and PANE_RELAY_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown(cmd.Context())
	},
}

// Execute runs the root command. Failures print "error: <msg>" and exit 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		teardown(context.Background())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(model.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagSocket, "socket", "L", "", "tmux server socket name (tmux -L)")
	rootCmd.PersistentFlags().StringVar(&flagTmux, "tmux", "", "tmux binary (default from config: tmux)")
	rootCmd.PersistentFlags().StringVar(&flagBasePath, "base-path", "", "root of the prompt inbox (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "capture log directory (default: $TMPDIR/tmux_logs)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "state directory for the session mapping")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	rootCmd.Version = Version
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(cfg)
	rt.cfg = cfg

	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	rt.logger = logger
	rt.logCloser = closer
	if cfg.ConfigFile != "" {
		logger.Debug("config_loaded", slog.String("path", cfg.ConfigFile))
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version
	tel, err := telem.Init(cmd.Context(), telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		logger.Warn("otel_init_failed", slog.String("error", err.Error()))
	}
	rt.tel = tel
	return nil
}

func teardown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rt.tel != nil {
		rt.tel.Shutdown(ctx)
		rt.tel = nil
	}
	if rt.logCloser != nil {
		_ = rt.logCloser.Close()
		rt.logCloser = nil
	}
}

func applyFlags(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.SocketName, flagSocket)
	set(&cfg.TmuxBinary, flagTmux)
	set(&cfg.BasePath, flagBasePath)
	set(&cfg.LogDir, flagLogDir)
	set(&cfg.StateDir, flagStateDir)
	set(&cfg.LogLevel, flagLogLevel)
}

func metrics() *telem.Metrics {
	if rt.tel == nil {
		return nil
	}
	return rt.tel.Metrics
}

func newTmux() *mux.Tmux {
	exec := mux.NewExecutor(rt.cfg.TmuxBinary,
		mux.WithSocket(rt.cfg.SocketName),
		mux.WithMetrics(metrics()),
		mux.WithLogger(rt.logger),
	)
	return mux.NewTmux(exec, rt.logger)
}

func newSender() *prompt.Sender {
	return prompt.NewSender(rt.cfg.BasePath, metrics(), rt.logger)
}

func newReader() *capture.Reader {
	return capture.NewReader(rt.cfg.LogDir,
		capture.WithPollInterval(rt.cfg.PollIntervalDuration),
		capture.WithMetrics(metrics()),
		capture.WithLogger(rt.logger),
	)
}

func newMappingStore() *mapping.Store {
	return mapping.NewStore(rt.cfg.StateDir, rt.logger)
}

func newDeliverer(t *mux.Tmux, inject bool) *prompt.Deliverer {
	d := &prompt.Deliverer{
		Sender: newSender(),
		Agent:  "pane-relay",
		Logger: rt.logger,
	}
	if inject {
		d.Nudger = prompt.NewNudger(t, rt.cfg.NudgeDelayDuration)
	}
	return d
}

func newDiscoverer() *opencode.Discoverer {
	return opencode.NewDiscoverer(rt.logger)
}

// newOpenCode returns a client for the configured or discovered server.
func newOpenCode(ctx context.Context) (*opencode.Client, error) {
	st := newDiscoverer().Discover(ctx, rt.cfg.OpenCodeURL)
	if !st.Running {
		return nil, model.Errorf(model.KindNotFound, "opencode",
			"no OpenCode server found; set opencode_url or %s", opencode.EnvServerURL)
	}
	return opencode.New(st.URL, opencode.WithLogger(rt.logger)), nil
}

// attachOpenCode makes d also send each prompt to the OpenCode session
// mapped to the prompt's tmux session. The mapping is looked up by session
// name first, then by id.
func attachOpenCode(ctx context.Context, d *prompt.Deliverer, t *mux.Tmux) error {
	c, err := newOpenCode(ctx)
	if err != nil {
		return err
	}
	store := newMappingStore()
	d.Remote = c
	d.ResolveAgent = func(id model.SessionID) (string, error) {
		keys := []string{string(id)}
		if s, err := t.FindSession(ctx, string(id)); err == nil {
			keys = append([]string{s.Name}, keys...)
		}
		var lastErr error
		for _, k := range keys {
			agents, err := store.LookupAgent(k)
			if err == nil {
				return agents[len(agents)-1], nil
			}
			lastErr = err
		}
		return "", lastErr
	}
	return nil
}

// resolveSession accepts a session id ($N) or name.
func resolveSession(ctx context.Context, t *mux.Tmux, arg string) (model.Session, error) {
	return t.FindSession(ctx, arg)
}

// sessionIDArg returns arg as a session id without asking tmux when it
// already looks like one, so logs of dead sessions stay reachable.
func sessionIDArg(ctx context.Context, arg string) (model.SessionID, error) {
	if strings.HasPrefix(arg, "$") {
		return model.SessionID(arg), nil
	}
	s, err := resolveSession(ctx, newTmux(), arg)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
