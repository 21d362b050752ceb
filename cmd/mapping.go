package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var flagMappingByTmux bool

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Map agent session ids to tmux sessions",
	Long: `Maintain the persistent map from external agent session ids to tmux
session names, stored in <state_dir>/sessions.json.`,
}

var mappingAddCmd = &cobra.Command{
	Use:   "add <agent-session> <tmux-session>",
	Short: "Record or replace a mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newMappingStore().Insert(args[0], args[1])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, e)
		}
		fmt.Printf("%s\t%s\n", e.AgentSession, e.TmuxSession)
		return nil
	},
}

var mappingGetCmd = &cobra.Command{
	Use:   "get <session>",
	Short: "Look up a mapping",
	Long: `Print the tmux session mapped to an agent session. With --tmux, the
argument is a tmux session name and the agent sessions are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newMappingStore()
		if flagMappingByTmux {
			agents, err := store.LookupAgent(args[0])
			if err != nil {
				return err
			}
			for _, a := range agents {
				fmt.Println(a)
			}
			return nil
		}
		tmux, err := store.LookupTmux(args[0])
		if err != nil {
			return err
		}
		fmt.Println(tmux)
		return nil
	},
}

var mappingRmCmd = &cobra.Command{
	Use:     "rm <agent-session>",
	Aliases: []string{"remove"},
	Short:   "Remove a mapping",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := newMappingStore().Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(os.Stderr, "no mapping for %s\n", args[0])
		}
		return nil
	},
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newMappingStore().List()
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, entries)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.AgentSession, e.TmuxSession, e.CreatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	mappingGetCmd.Flags().BoolVar(&flagMappingByTmux, "tmux", false, "look up agent sessions by tmux session name")
	mappingCmd.AddCommand(mappingAddCmd, mappingGetCmd, mappingRmCmd, mappingListCmd)
	rootCmd.AddCommand(mappingCmd)
}
