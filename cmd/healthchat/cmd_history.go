package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/healthchat/internal/state"
	"github.com/user/healthchat/internal/types"
)

var historyLimit int

func init() {
	historyShowCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of exchanges to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := state.NewHistoryLog(cfg.DataDir)

		ids, err := log.Conversations()
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CONVERSATION\tEXCHANGES")
		for _, id := range ids {
			count, err := log.Count(cmd.Context(), id)
			if err != nil {
				count = -1
			}
			fmt.Fprintf(w, "%s\t%d\n", id, count)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation>",
	Short: "Show the latest exchanges of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := state.NewHistoryLog(cfg.DataDir)

		entries, err := log.Tail(cmd.Context(), types.ConversationID(args[0]), historyLimit)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		for _, e := range entries {
			fmt.Printf("[%s] Q: %s\n", e.At.Format("2006-01-02 15:04"), e.Question)
			fmt.Printf("A: %s\n", e.Answer)
			if e.Error != "" {
				fmt.Printf("(error: %s)\n", e.Error)
			}
			fmt.Println()
		}
		return nil
	},
}
