package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/model"
)

var flagWindowName string

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "List, create and kill windows",
}

var windowListCmd = &cobra.Command{
	Use:   "list <session>",
	Short: "List the windows of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		windows, err := t.ListWindows(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to list windows of %s: %w", s.ID, err)
		}
		if flagJSON {
			return printJSON(os.Stdout, windows)
		}
		for _, w := range windows {
			printWindow(w)
		}
		return nil
	},
}

var windowNewCmd = &cobra.Command{
	Use:   "new <session>",
	Short: "Create a window in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := newTmux()
		s, err := resolveSession(ctx, t, args[0])
		if err != nil {
			return err
		}
		w, err := t.NewWindow(ctx, s.ID, flagWindowName)
		if err != nil {
			return fmt.Errorf("failed to create window in %s: %w", s.ID, err)
		}
		if flagJSON {
			return printJSON(os.Stdout, w)
		}
		printWindow(w)
		return nil
	},
}

var windowKillCmd = &cobra.Command{
	Use:   "kill <window-id>",
	Short: "Kill a window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newTmux().KillWindow(cmd.Context(), model.WindowID(args[0]))
	},
}

func init() {
	windowNewCmd.Flags().StringVarP(&flagWindowName, "name", "n", "", "window name")
	windowCmd.AddCommand(windowListCmd, windowNewCmd, windowKillCmd)
	rootCmd.AddCommand(windowCmd)
}

func printWindow(w model.Window) {
	marker := " "
	if w.Active {
		marker = "*"
	}
	fmt.Printf("%s%s\t%s\t%d panes\n", marker, w.ID, w.Name, len(w.Panes))
}
