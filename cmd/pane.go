package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/model"
)

var (
	flagCaptureLines int
	flagLiteral      bool
	flagPipeStop     bool
)

var paneCmd = &cobra.Command{
	Use:   "pane",
	Short: "Inspect and drive panes",
}

var paneListCmd = &cobra.Command{
	Use:   "list <window-id>",
	Short: "List the panes of a window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		panes, err := newTmux().ListPanes(cmd.Context(), model.WindowID(args[0]))
		if err != nil {
			return fmt.Errorf("failed to list panes of %s: %w", args[0], err)
		}
		if flagJSON {
			return printJSON(os.Stdout, panes)
		}
		for _, p := range panes {
			marker := " "
			if p.Active {
				marker = "*"
			}
			pid := "-"
			if p.PID != nil {
				pid = fmt.Sprint(*p.PID)
			}
			path := ""
			if p.CurrentPath != nil {
				path = *p.CurrentPath
			}
			fmt.Printf("%s%s\t%s\t%s\n", marker, p.ID, pid, path)
		}
		return nil
	},
}

var paneSendKeysCmd = &cobra.Command{
	Use:   "send-keys <pane-id> <keys>...",
	Short: "Send keys to a pane",
	Long: `Send keys to a pane with tmux send-keys.

Each argument is one key (e.g., "C-c", "Enter") unless --literal is set, in
which case the arguments are joined and typed as text.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTmux()
		pane := model.PaneID(args[0])
		if flagLiteral {
			return t.SendLiteral(cmd.Context(), pane, strings.Join(args[1:], " "))
		}
		return t.SendKeys(cmd.Context(), pane, args[1:]...)
	},
}

var paneCaptureCmd = &cobra.Command{
	Use:   "capture <pane-id>",
	Short: "Print the content of a pane",
	Long: `Capture the content of a pane and print it to stdout.

The content is printed as tmux returns it. Use --lines to include
scrollback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := newTmux().CapturePane(cmd.Context(), model.PaneID(args[0]), flagCaptureLines)
		if err != nil {
			return fmt.Errorf("failed to capture pane %q: %w", args[0], err)
		}
		fmt.Fprint(os.Stdout, content)
		return nil
	},
}

var panePipeCmd = &cobra.Command{
	Use:   "pipe <session>",
	Short: "Pipe a session's active pane into its capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		if flagPipeStop {
			p, ok := s.FirstPane()
			if !ok {
				return fmt.Errorf("session %s has no panes", s.ID)
			}
			return t.StopPipePane(ctx, p.ID)
		}
		return startCapture(cmd, s)
	},
}

func init() {
	paneCaptureCmd.Flags().IntVarP(&flagCaptureLines, "lines", "n", 0, "scrollback lines to include")
	paneSendKeysCmd.Flags().BoolVarP(&flagLiteral, "literal", "l", false, "type the arguments as literal text")
	panePipeCmd.Flags().BoolVar(&flagPipeStop, "stop", false, "stop piping instead of starting")
	paneCmd.AddCommand(paneListCmd, paneSendKeysCmd, paneCaptureCmd, panePipeCmd)
	rootCmd.AddCommand(paneCmd)
}

// startCapture pipes the session's active pane into <log_dir>/<session_id>.log.
func startCapture(cmd *cobra.Command, s model.Session) error {
	p, ok := s.FirstPane()
	if !ok {
		return fmt.Errorf("session %s has no panes", s.ID)
	}
	reader := newReader()
	if err := reader.EnsureDir(); err != nil {
		return err
	}
	path := reader.LogPath(s.ID)
	if err := newTmux().PipePane(cmd.Context(), p.ID, path); err != nil {
		return fmt.Errorf("failed to pipe %s: %w", p.ID, err)
	}
	fmt.Fprintf(os.Stderr, "capturing %s to %s\n", p.ID, path)
	return nil
}
