package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "CostWarden - Risk-Gated Cloud Cost Optimization",
		Long: `CostWarden executes cloud cost optimization actions behind a safety
pipeline: risk scoring, approval workflows, policy guardrails, rollback
plans, and a fault-tolerant resilience layer.

Features:
  - Risk assessment with tag/cost/size escalation
  - Approval workflows routed by authority ladder
  - Rego policy guardrails with hot reload
  - Rollback plans registered before every reversible mutation
  - Rate limiting, circuit breaking, and classified retry
  - Batch execution and priority-queue scheduling`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newWorkflowCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newAuditCommand())

	return rootCmd
}
