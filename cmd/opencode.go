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
	"github.com/timvw/pane-relay/internal/opencode"
)

var (
	flagOCMessage bool
	flagOCTail    int
	flagOCWatch   bool
)

var opencodeCmd = &cobra.Command{
	Use:   "opencode",
	Short: "Talk to an OpenCode server's session API",
	Long: `Send prompts to and read messages from OpenCode sessions over HTTP.

The server is opencode_url when it answers /health, otherwise the first
healthy one of http://127.0.0.1:4096, $OPENCODE_SERVER_URL and
127.0.0.1 ports 4096-4099.`,
}

var opencodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Find an OpenCode server and check its health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newDiscoverer().Discover(cmd.Context(), rt.cfg.OpenCodeURL)
		if flagJSON {
			return printJSON(os.Stdout, st)
		}
		if !st.Running {
			fmt.Println("no OpenCode server found")
			return nil
		}
		fmt.Printf("%s\t%s\n", st.URL, st.State)
		return nil
	},
}

var opencodeSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List OpenCode sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newOpenCode(cmd.Context())
		if err != nil {
			return err
		}
		sessions, err := c.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, sessions)
		}
		for _, s := range sessions {
			fmt.Printf("%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt)
		}
		return nil
	},
}

var opencodeSendCmd = &cobra.Command{
	Use:   "send <agent-session> <text>...",
	Short: "Send a prompt to an OpenCode session",
	Long: `Submit text to an OpenCode session as a prompt. With --message the text
is appended as a message without starting a turn.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newOpenCode(ctx)
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		if flagOCMessage {
			return c.SendMessage(ctx, args[0], text)
		}
		return c.SendPrompt(ctx, args[0], text)
	},
}

var opencodeMessagesCmd = &cobra.Command{
	Use:   "messages <agent-session>",
	Short: "Print an OpenCode session's messages",
	Long: `Print the messages of an OpenCode session, oldest first. --tail keeps
the last N; --watch keeps polling and prints new messages until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newOpenCode(ctx)
		if err != nil {
			return err
		}
		emit := func(m opencode.Message) error {
			if flagJSON {
				return printJSON(os.Stdout, m)
			}
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Role, m.Content)
			for _, tc := range m.ToolCalls {
				fmt.Printf("  tool %s %s\n", tc.Tool, tc.Input)
			}
			return nil
		}

		if flagOCWatch {
			err := c.WatchMessages(ctx, args[0], time.Second, emit)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msgs []opencode.Message
		if flagOCTail > 0 {
			msgs, err = c.TailMessages(ctx, args[0], flagOCTail)
		} else {
			msgs, err = c.Messages(ctx, args[0])
		}
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := emit(m); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	opencodeSendCmd.Flags().BoolVar(&flagOCMessage, "message", false, "append as a message instead of a prompt")
	opencodeMessagesCmd.Flags().IntVarP(&flagOCTail, "tail", "n", 0, "print only the last N messages")
	opencodeMessagesCmd.Flags().BoolVarP(&flagOCWatch, "watch", "w", false, "keep printing new messages")
	opencodeCmd.AddCommand(opencodeStatusCmd, opencodeSessionsCmd, opencodeSendCmd, opencodeMessagesCmd)
	rootCmd.AddCommand(opencodeCmd)
}
