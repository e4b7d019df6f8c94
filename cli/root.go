// Package cli is the corecraft command line: the HTTP server, a terminal chat
// and data management commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/corecraft-support/pkg/config"
)

var envFile string

// NewRootCmd creates the corecraft command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corecraft",
		Short: "CoreCraft Computers customer support agent",
		Long: `corecraft runs the CoreCraft support chat agent and manages the
retail data it works on.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configx.SetEnvFile(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (defaults to ./.env when present)")

	cmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newToolCmd(),
	)
	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
