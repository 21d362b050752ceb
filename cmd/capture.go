package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/parser"
)

var (
	flagOutputLines    int
	flagOutputFrom     int
	flagOutputClassify bool
	flagOutputFollow   bool
)

var outputCmd = &cobra.Command{
	Use:   "output",
	Short: "Read captured pane output",
	Long: `Read the capture log of a session, <log_dir>/<session_id>.log.

Logs are written by tmux pipe-pane (see "session start --capture" and
"pane pipe"). Sessions may be given by id ($N) or name; an id works even
after the session is gone.`,
}

var outputReadCmd = &cobra.Command{
	Use:   "read <session>",
	Short: "Print a capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		lines, err := newReader().ReadLogFrom(id, flagOutputFrom)
		if err != nil {
			return err
		}
		return printLines(lines)
	},
}

var outputTailCmd = &cobra.Command{
	Use:   "tail <session>",
	Short: "Print the last lines of a capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		lines, err := newReader().TailLog(id, flagOutputLines)
		if err != nil {
			return err
		}
		return printLines(lines)
	},
}

var outputSearchCmd = &cobra.Command{
	Use:   "search <session> <text>",
	Short: "Print capture log lines containing text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		lines, err := newReader().SearchLog(id, args[1])
		if err != nil {
			return err
		}
		return printLines(lines)
	},
}

var outputWatchCmd = &cobra.Command{
	Use:   "watch <session>",
	Short: "Stream a capture log until interrupted",
	Long: `Print every line of a capture log and keep printing new lines as they
are appended. With --follow, existing content is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := sessionIDArg(ctx, args[0])
		if err != nil {
			return err
		}
		r := newReader()
		emit := func(line string) error {
			if flagOutputClassify {
				resp := parser.Parse(line)
				fmt.Printf("%s\t%s\n", resp.Kind, line)
				return nil
			}
			fmt.Println(line)
			return nil
		}
		if flagOutputFollow {
			err = r.FollowLog(ctx, id, emit)
		} else {
			err = r.WatchLog(ctx, id, emit)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var outputClearCmd = &cobra.Command{
	Use:   "clear <session>",
	Short: "Truncate a capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return newReader().ClearLog(id)
	},
}

var outputDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return newReader().DeleteLog(id)
	},
}

var outputListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions that have a capture log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newReader().ListSessionLogs()
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, ids)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var outputSizeCmd = &cobra.Command{
	Use:   "size <session>",
	Short: "Print the size and modification time of a capture log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionIDArg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		r := newReader()
		size, err := r.LogSize(id)
		if err != nil {
			return err
		}
		mtime, err := r.LogTimestamp(id)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, struct {
				Session  string    `json:"session"`
				Bytes    int64     `json:"bytes"`
				Modified time.Time `json:"modified"`
			}{string(id), size, mtime})
		}
		fmt.Printf("%s\t%d bytes\t%s\n", id, size, mtime.Format(time.RFC3339))
		return nil
	},
}

func init() {
	outputReadCmd.Flags().IntVar(&flagOutputFrom, "from", 0, "skip this many lines")
	outputTailCmd.Flags().IntVarP(&flagOutputLines, "lines", "n", 20, "number of lines")
	outputWatchCmd.Flags().BoolVarP(&flagOutputFollow, "follow", "f", false, "skip existing content")
	for _, c := range []*cobra.Command{outputReadCmd, outputTailCmd, outputSearchCmd, outputWatchCmd} {
		c.Flags().BoolVar(&flagOutputClassify, "classify", false, "classify output into errors, tool calls, completions and messages")
	}
	outputCmd.AddCommand(outputReadCmd, outputTailCmd, outputSearchCmd, outputWatchCmd,
		outputClearCmd, outputDeleteCmd, outputListCmd, outputSizeCmd)
	rootCmd.AddCommand(outputCmd)
}

// printLines prints log lines, classified when --classify is set.
func printLines(lines []string) error {
	if !flagOutputClassify {
		if flagJSON {
			return printJSON(os.Stdout, lines)
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	}

	responses := parser.ParseAll(strings.Join(lines, "\n"))
	if flagJSON {
		return printJSON(os.Stdout, responses)
	}
	for _, r := range responses {
		body := r.Content
		if r.Kind == parser.KindError && r.Error != "" {
			body = r.Error
		}
		fmt.Printf("[%s] %s\n", r.Kind, strings.ReplaceAll(body, "\n", "\n  "))
	}
	counts := parser.CountByKind(responses)
	fmt.Fprintf(os.Stderr, "%d errors, %d tool calls, %d completions, %d messages\n",
		counts[parser.KindError], counts[parser.KindToolCall], counts[parser.KindCompletion], counts[parser.KindMessage])
	if tools := parser.ToolNames(responses); len(tools) > 0 {
		fmt.Fprintf(os.Stderr, "tools: %s\n", strings.Join(tools, ", "))
	}
	return nil
}
