package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/mux"
)

var (
	statusTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	statusBad   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tmux environment, OpenCode server and resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		env, detectErr := mux.Detect(ctx, rt.cfg.TmuxBinary, t)

		var sessions, logs int
		if env.ServerRunning {
			if ss, err := t.ListSessions(ctx); err == nil {
				sessions = len(ss)
			}
		}
		if ids, err := newReader().ListSessionLogs(); err == nil {
			logs = len(ids)
		}
		mappings := 0
		if entries, err := newMappingStore().List(); err == nil {
			mappings = len(entries)
		}
		oc := newDiscoverer().Discover(ctx, rt.cfg.OpenCodeURL)

		if flagJSON {
			return printJSON(os.Stdout, map[string]any{
				"version":     Version,
				"tmux":        env,
				"sessions":    sessions,
				"capture_log": logs,
				"mappings":    mappings,
				"opencode":    oc,
				"config_file": rt.cfg.ConfigFile,
				"base_path":   rt.cfg.BasePath,
				"log_dir":     rt.cfg.LogDir,
				"state_dir":   rt.cfg.StateDir,
			})
		}

		var b strings.Builder
		b.WriteString(statusTitle.Render("pane-relay " + Version))
		b.WriteString("\n")
		row := func(k, v string) {
			b.WriteString(statusKey.Render(k))
			b.WriteString(v)
			b.WriteString("\n")
		}
		if detectErr != nil {
			row("tmux", statusBad.Render(detectErr.Error()))
		} else {
			row("tmux", fmt.Sprintf("%s (%s)", env.Version, env.Binary))
			if env.ServerRunning {
				row("server", statusOK.Render(fmt.Sprintf("running, %d sessions", sessions)))
			} else {
				row("server", statusBad.Render("not running"))
			}
		}
		inside := "no"
		if env.InsideTmux {
			inside = "yes"
		}
		row("inside tmux", inside)
		configFile := rt.cfg.ConfigFile
		if configFile == "" {
			configFile = "(defaults)"
		}
		row("config", configFile)
		row("prompts", newSender().Dir())
		row("capture logs", fmt.Sprintf("%s (%d)", rt.cfg.LogDir, logs))
		row("mappings", fmt.Sprintf("%s (%d)", newMappingStore().Path(), mappings))
		if oc.Running {
			row("opencode", statusOK.Render(oc.URL))
		} else {
			row("opencode", statusBad.Render("no server found"))
		}
		fmt.Print(b.String())
		return detectErr
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
