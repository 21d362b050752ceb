package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/console"
)

var (
	flagTheme        string
	flagConsoleTick  string
	flagConsoleNoInj bool
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive view of sessions and their output",
	Long: `Launch an interactive terminal UI with the session list on the left and
a live tail of the selected session's capture log on the right. Press
Enter to type a prompt; it is written to the session's active pane inbox
and typed into the pane.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel() // stops in-flight refreshes when the TUI exits

		interval, err := parseRefresh(flagConsoleTick)
		if err != nil {
			return err
		}

		t := newTmux()
		c := &console.Console{
			Sessions:        t,
			Logs:            newReader(),
			Deliverer:       newDeliverer(t, !flagConsoleNoInj),
			Exclude:         rt.cfg.ExcludeSessions,
			RefreshInterval: interval,
			Theme:           console.ThemeByName(flagTheme),
			Logger:          rt.logger,
		}
		return c.Run(ctx)
	},
}

func init() {
	consoleCmd.Flags().StringVar(&flagTheme, "theme", "dark", "Color theme: dark, light")
	consoleCmd.Flags().StringVar(&flagConsoleTick, "refresh", "2s", "refresh interval (0 disables)")
	consoleCmd.Flags().BoolVar(&flagConsoleNoInj, "no-inject", false, "only write prompts to the inbox, do not type them")
	rootCmd.AddCommand(consoleCmd)
}

func parseRefresh(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --refresh %q: %w", s, err)
	}
	return d, nil
}
