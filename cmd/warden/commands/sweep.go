package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep timed-out approval workflows",
		Long: `Check pending workflows against their deadlines. Timed-out
workflows auto-escalate when the stakes warrant it and they have
escalations left; otherwise they expire.`,
		Example: `  # One sweep
  warden sweep

  # Keep sweeping on the configured interval
  warden sweep --daemon`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if daemon {
				if err := app.watchConfig(ctx); err != nil {
					return err
				}
				fmt.Println("Timeout sweeper running; press Ctrl+C to stop")
				app.approvals.Run(ctx)
				return nil
			}

			result, err := app.approvals.CheckTimeouts(ctx)
			if err != nil {
				return fmt.Errorf("failed to sweep workflows: %w", err)
			}

			if jsonOutput {
				return printJSON(result)
			}
			fmt.Printf("Swept %d workflows: %d escalated, %d expired\n",
				result.Checked, result.Escalated, result.Expired)
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "sweep continuously on the configured interval")

	return cmd
}
