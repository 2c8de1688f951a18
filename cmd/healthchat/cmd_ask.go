package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/healthchat/internal/types"
)

var askConversation string

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "cli", "conversation id that follow-up questions share")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question; without arguments, read questions from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv := types.ConversationID(askConversation)

		if len(args) > 0 {
			return askOnce(ctx, a, conv, strings.Join(args, " "))
		}

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Fprint(os.Stdout, "> ")
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				// Failures are already explained in the answer text.
				_ = askOnce(ctx, a, conv, line)
			}
			fmt.Fprint(os.Stdout, "> ")
		}
		fmt.Fprintln(os.Stdout)
		return scanner.Err()
	},
}

func askOnce(ctx context.Context, a *app, conv types.ConversationID, text string) error {
	answer, err := a.engine.AskIn(ctx, conv, text)
	if answer != nil {
		fmt.Fprintln(os.Stdout, answer.Text)
	}
	return err
}
