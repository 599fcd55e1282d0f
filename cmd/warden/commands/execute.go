package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/costwarden/costwarden/pkg/stores"
)

func newExecuteCommand() *cobra.Command {
	var (
		actionsFile string
		force       bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a single optimization action",
		Long: `Execute one optimization action through the full pipeline.

This command:
  - Loads the action from a JSON file
  - Assesses risk and routes the action through approval
  - Registers a rollback plan before mutating anything
  - Executes the mutation with retry, rate limiting, and circuit breaking
  - Validates the result and rolls back on failure`,
		Example: `  # Execute an action
  warden execute --action action.json

  # Skip the approval workflow
  warden execute --action action.json --force

  # Preview without mutating anything
  warden execute --action action.json --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			actions, err := loadActions(actionsFile)
			if err != nil {
				return err
			}
			if len(actions) != 1 {
				return fmt.Errorf("expected exactly one action, got %d (use 'warden batch' for multiple)", len(actions))
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if dryRun {
				app.executor.SetDryRun(true)
			}

			record, err := app.executor.ExecuteOptimization(ctx, actions[0], force)
			if err != nil {
				return fmt.Errorf("failed to execute optimization: %w", err)
			}

			if jsonOutput {
				return printJSON(record)
			}

			fmt.Printf("Execution %s: %s\n", record.ID, record.Status)
			if record.Message != "" {
				fmt.Printf("  %s\n", record.Message)
			}
			if record.WorkflowID != "" {
				fmt.Printf("  workflow: %s\n", record.WorkflowID)
			}
			if record.ActualSavings != nil {
				fmt.Printf("  savings: $%.2f/month", *record.ActualSavings)
				if record.Accuracy != nil {
					fmt.Printf(" (%.1f%% of estimate)", *record.Accuracy)
				}
				fmt.Println()
			}
			if record.Status == stores.ExecutionStatusCancelled && record.WorkflowID != "" {
				fmt.Printf("\nApprove with: warden workflow approve %s --approver <name>\n", record.WorkflowID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&actionsFile, "action", "a", "", "JSON file holding the action to execute")
	cmd.Flags().BoolVar(&force, "force", false, "skip the approval workflow")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "synthesize the outcome without mutating anything")
	cmd.MarkFlagRequired("action")

	return cmd
}
