package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestratorx "github.com/tanpawarit/corecraft-support/agent/agents/orchestrator"
)

func newChatCmd() *cobra.Command {
	var (
		sessionID  string
		customerID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the support agent in the terminal",
		Long:  "Reads one message per line from stdin until EOF or /quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = "cli-" + uuid.NewString()
			}
			return chatLoop(cmd.InOrStdin(), cmd.OutOrStdout(), func(text string) (orchestratorx.Output, error) {
				return orch.Handle(ctx, orchestratorx.Input{SessionID: sessionID, CustomerID: customerID, Text: text})
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to resume (random when empty)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Authenticated customer id")
	return cmd
}

// chatLoop keeps going after a failed turn so one bad answer does not end the chat.
func chatLoop(in io.Reader, out io.Writer, turn func(string) (orchestratorx.Output, error)) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "you> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			fmt.Fprint(out, "you> ")
			continue
		case "/quit", "/exit":
			return nil
		}

		res, err := turn(text)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		} else {
			fmt.Fprintf(out, "agent> %s\n", res.Reply)
			if len(res.ToolCalls) > 0 {
				fmt.Fprintf(out, "       [%s: %s]\n", res.GoalType, strings.Join(res.ToolCalls, ", "))
			}
		}
		fmt.Fprint(out, "you> ")
	}
	return scanner.Err()
}
