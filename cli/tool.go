package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

func newToolCmd() *cobra.Command {
	var (
		rawArgs string
		agent   string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "tool <name>",
		Short: "Call a retail tool directly",
		Long: `Runs one tool against the configured store, the same way the agent does.
Business rule denials are printed with the result; only infrastructure
failures make the command fail.`,
		Example: `  corecraft tool get_order_details --args '{"order_id":"ord_4002"}'
  corecraft tool list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if args[0] == "list" {
				for _, name := range a.catalog.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			toolArgs := map[string]any{}
			if strings.TrimSpace(rawArgs) != "" {
				if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			res, err := a.catalog.ExecuteOne(ctx, contractx.AgentType(agent), contractx.ToolRequest{
				Tool: args[0],
				Args: toolArgs,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), output, res)
		},
	}

	cmd.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&agent, "agent", string(contractx.AgentTypeStaff), "Agent the call is made for: staff, sales or support")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json|yaml")
	return cmd
}
