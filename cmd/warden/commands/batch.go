package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/costwarden/costwarden/pkg/engine"
)

func newBatchCommand() *cobra.Command {
	var (
		actionsFile string
		mode        string
		force       bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Execute a batch of optimization actions",
		Long: `Execute multiple optimization actions as one batch.

Batch modes:
  SEQUENTIAL       one action at a time, in order
  PARALLEL         bounded fan-out across all actions
  RESOURCE_GROUPED sequential within a resource type, parallel across types
  REGION_GROUPED   sequential within a region, parallel across regions`,
		Example: `  # Run a batch sequentially
  warden batch --actions actions.json

  # Fan out with the configured parallelism
  warden batch --actions actions.json --mode PARALLEL

  # Group by region, skipping approval
  warden batch --actions actions.json --mode REGION_GROUPED --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			actions, err := loadActions(actionsFile)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				return fmt.Errorf("actions file %s holds no actions", actionsFile)
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if dryRun {
				app.executor.SetDryRun(true)
			}

			summary, err := app.executor.ExecuteBatch(ctx, actions, engine.BatchMode(strings.ToUpper(mode)), force)
			if err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}

			if jsonOutput {
				return printJSON(summary)
			}

			fmt.Printf("Batch (%s): %d total, %d completed, %d failed, %d rolled back, %d cancelled\n",
				summary.Mode, summary.Total, summary.Completed, summary.Failed,
				summary.RolledBack, summary.Cancelled)
			fmt.Printf("  savings: $%.2f/month, elapsed: %s\n", summary.TotalSavings, summary.Elapsed)
			for _, record := range summary.Records {
				if record == nil {
					continue
				}
				line := fmt.Sprintf("  %s %s [%s]", record.ID, record.ResourceID, record.Status)
				if record.Message != "" {
					line += " " + record.Message
				}
				fmt.Println(line)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&actionsFile, "actions", "a", "", "JSON file holding the actions to execute")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(engine.BatchSequential), "batch mode (SEQUENTIAL, PARALLEL, RESOURCE_GROUPED, REGION_GROUPED)")
	cmd.Flags().BoolVar(&force, "force", false, "skip the approval workflow")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "synthesize all outcomes without mutating anything")
	cmd.MarkFlagRequired("actions")

	return cmd
}
