package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Agent Orchestration & Permission-Gated Execution Core",
	Long: `Quill routes writing tasks to specialized workers and language-model
providers, gating every execution behind permission grants, quotas, and
human approval checkpoints.

Core capabilities:
- Classifies tasks by content type, complexity, domain, and collaboration mode
- Selects qualified workers by capability, performance, and load
- Enforces grants, quotas, and approval policies before any provider call
- Routes to providers with circuit breakers and fallback
- Records every decision in an append-only audit ledger`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
