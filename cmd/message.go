package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/prompt"
	"github.com/timvw/pane-relay/internal/queue"
)

var (
	flagMsgSession  string
	flagMsgInject   bool
	flagMsgMetadata bool
	flagMsgOpenCode bool
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Write, read and clear pane prompt inboxes",
	Long: `Each pane has an inbox file at <base_path>/.opencode/prompts/<pane>.prompt.input.
An agent polling that file picks up the prompt. Every access holds the
inbox lock, so readers never see a partial write.`,
}

var messageSendCmd = &cobra.Command{
	Use:   "send <pane-id> <text>...",
	Short: "Write a prompt to a pane's inbox",
	Long: `Write a prompt to a pane's inbox, replacing whatever was there.

With --session the prompt gets a metadata header naming the session.
With --opencode the prompt is also sent to the OpenCode session mapped to
that tmux session (see "mapping add").
With --inject the prompt is also typed into the pane followed by Enter.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pane := model.PaneID(args[0])
		text := strings.Join(args[1:], " ")
		d, err := messageDeliverer(cmd)
		if err != nil {
			return err
		}
		if err := d.Deliver(cmd.Context(), pane, model.SessionID(flagMsgSession), text); err != nil {
			return fmt.Errorf("failed to send prompt to %s: %w", pane, err)
		}
		return nil
	},
}

var messageReadCmd = &cobra.Command{
	Use:   "read <pane-id>",
	Short: "Print a pane's pending prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pane := model.PaneID(args[0])
		s := newSender()
		if !flagMsgMetadata && !flagJSON {
			content, err := s.ReadPrompt(cmd.Context(), pane)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, content)
			return nil
		}

		content, meta, err := s.ReadPromptWithMetadata(cmd.Context(), pane)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, struct {
				Pane     model.PaneID          `json:"pane"`
				Content  string                `json:"content"`
				Metadata *model.PromptMetadata `json:"metadata,omitempty"`
			}{pane, content, meta})
		}
		if meta != nil {
			fmt.Printf("session:   %s\n", meta.SessionID)
			fmt.Printf("timestamp: %s\n", time.Unix(meta.Timestamp, 0).Format(time.RFC3339))
			fmt.Printf("agent:     %s\n\n", meta.Agent)
		}
		fmt.Fprint(os.Stdout, content)
		return nil
	},
}

var messageClearCmd = &cobra.Command{
	Use:   "clear <pane-id>",
	Short: "Remove a pane's pending prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newSender().ClearPrompt(cmd.Context(), model.PaneID(args[0]))
	},
}

var messageQueueCmd = &cobra.Command{
	Use:   "queue <pane-id> <message>...",
	Short: "Deliver several prompts in order",
	Long: `Queue each message argument for the pane and deliver them first in,
first out. Delivery stops at the first failure; the failed message and
everything after it are reported as undelivered.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pane := model.PaneID(args[0])

		q := queue.New()
		q.Metrics = metrics()
		q.Logger = rt.logger
		for _, m := range args[1:] {
			q.Push(pane, m)
		}
		stats := q.Stats()
		fmt.Fprintf(os.Stderr, "queued %d message(s) for %s\n", stats.TotalMessages, pane)

		d, err := messageDeliverer(cmd)
		if err != nil {
			return err
		}
		sent, err := q.Drain(ctx, func(m model.QueuedMessage) error {
			return d.Deliver(ctx, m.PaneID, model.SessionID(flagMsgSession), m.Content)
		})
		fmt.Fprintf(os.Stderr, "delivered %d, pending %d\n", sent, q.Len())
		return err
	},
}

func messageDeliverer(cmd *cobra.Command) (*prompt.Deliverer, error) {
	t := newTmux()
	d := newDeliverer(t, flagMsgInject)
	if flagMsgOpenCode {
		if flagMsgSession == "" {
			return nil, fmt.Errorf("--opencode needs --session")
		}
		if err := attachOpenCode(cmd.Context(), d, t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func init() {
	for _, c := range []*cobra.Command{messageSendCmd, messageQueueCmd} {
		c.Flags().StringVar(&flagMsgSession, "session", "", "session id recorded in the prompt header")
		c.Flags().BoolVar(&flagMsgInject, "inject", false, "also type the prompt into the pane")
		c.Flags().BoolVar(&flagMsgOpenCode, "opencode", false, "also send the prompt to the mapped OpenCode session")
	}
	messageReadCmd.Flags().BoolVar(&flagMsgMetadata, "metadata", false, "print the metadata header")
	messageCmd.AddCommand(messageSendCmd, messageReadCmd, messageClearCmd, messageQueueCmd)
	rootCmd.AddCommand(messageCmd)
}
