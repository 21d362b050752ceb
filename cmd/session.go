package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/model"
)

var flagStartCapture bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, inspect and stop tmux sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Create a detached session",
	Long: `Create a detached tmux session and print it.

With --capture, the session's first pane is piped into its capture log so
the output commands can read it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()

		s, err := t.NewSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to start session %q: %w", args[0], err)
		}

		if flagStartCapture {
			if err := startCapture(cmd, s); err != nil {
				return err
			}
		}
		return printSession(s)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := newTmux().ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if flagJSON {
			return printJSON(os.Stdout, sessions)
		}
		for _, s := range sessions {
			attached := ""
			if s.Attached {
				attached = " (attached)"
			}
			fmt.Printf("%s\t%s\t%d windows%s\n", s.ID, s.Name, len(s.Windows), attached)
		}
		return nil
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id|name>",
	Short: "Show one session with its windows and panes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSession(cmd.Context(), newTmux(), args[0])
		if err != nil {
			return err
		}
		return printSession(s)
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <id|name> <new-name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		if err := t.RenameSession(ctx, s.ID, args[1]); err != nil {
			return fmt.Errorf("failed to rename session %s: %w", s.ID, err)
		}
		fmt.Printf("%s\t%s\n", s.ID, args[1])
		return nil
	},
}

var sessionAttachCmd = &cobra.Command{
	Use:   "attach <id|name>",
	Short: "Attach this terminal to a session",
	Long: `Attach this terminal to a session. The pane-relay process is replaced
by tmux attach-session, so this command does not return on success.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}

		tmuxPath, err := exec.LookPath(rt.cfg.TmuxBinary)
		if err != nil {
			return fmt.Errorf("tmux binary %q not found: %w", rt.cfg.TmuxBinary, err)
		}
		argv := append([]string{tmuxPath}, t.Executor().Argv(model.Command{
			Name:   "attach-session",
			Target: model.SessionTarget(s.ID),
		})...)

		teardown(ctx)
		// Replace this process with tmux. On success, this never returns.
		if err := syscall.Exec(tmuxPath, argv, os.Environ()); err != nil {
			return fmt.Errorf("attach to %s: %w", s.ID, err)
		}
		return nil
	},
}

var sessionDetachCmd = &cobra.Command{
	Use:   "detach <id|name>",
	Short: "Detach every client from a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		return t.DetachSession(ctx, s.ID)
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <id|name>",
	Short: "Kill a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		if err := t.KillSession(ctx, s.ID); err != nil {
			return fmt.Errorf("failed to stop session %s: %w", s.ID, err)
		}
		if removed, err := dropMappingsFor(s.Name); err != nil {
			rt.logger.Warn("mapping_cleanup_failed", slog.String("session", s.Name), slog.String("error", err.Error()))
		} else if removed > 0 {
			fmt.Fprintf(os.Stderr, "removed %d agent mapping(s) for %s\n", removed, s.Name)
		}
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().BoolVar(&flagStartCapture, "capture", false, "pipe the first pane into the session's capture log")
	sessionCmd.AddCommand(sessionStartCmd, sessionListCmd, sessionGetCmd, sessionRenameCmd,
		sessionAttachCmd, sessionDetachCmd, sessionStopCmd)
	rootCmd.AddCommand(sessionCmd)
}

// dropMappingsFor removes agent mappings that point at a stopped session.
func dropMappingsFor(tmuxName string) (int, error) {
	store := newMappingStore()
	entries, err := store.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.TmuxSession != tmuxName {
			continue
		}
		if ok, err := store.Remove(e.AgentSession); err != nil {
			return n, err
		} else if ok {
			n++
		}
	}
	return n, nil
}

func printSession(s model.Session) error {
	if flagJSON {
		return printJSON(os.Stdout, s)
	}
	fmt.Printf("%s\t%s\n", s.ID, s.Name)
	for _, w := range s.Windows {
		marker := " "
		if w.Active {
			marker = "*"
		}
		fmt.Printf("  %s%s\t%s\n", marker, w.ID, w.Name)
		for _, p := range w.Panes {
			pm := " "
			if p.Active {
				pm = "*"
			}
			path := ""
			if p.CurrentPath != nil {
				path = *p.CurrentPath
			}
			fmt.Printf("    %s%s\t%s\n", pm, p.ID, path)
		}
	}
	return nil
}
