package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/config"
	"github.com/timvw/pane-relay/internal/model"
)

var flagListAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every session, window and pane",
	Long: `Print the full tmux topology: sessions, their windows and each window's
panes. Sessions matching exclude_sessions are hidden unless --all is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := newTmux().ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if !flagListAll {
			sessions = excludeSessions(sessions, rt.cfg.ExcludeSessions)
		}
		if flagJSON {
			return printJSON(os.Stdout, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "no sessions found")
			return nil
		}
		for _, s := range sessions {
			if err := printSession(s); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&flagListAll, "all", false, "include excluded sessions")
	rootCmd.AddCommand(listCmd)
}

func excludeSessions(sessions []model.Session, patterns []string) []model.Session {
	if len(patterns) == 0 {
		return sessions
	}
	out := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if !config.MatchesExcludeList(s.Name, patterns) {
			out = append(out, s)
		}
	}
	return out
}
