package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled optimizations",
		Long: `Queue optimization actions for later execution.

Scheduled actions sit in a priority queue ordered by scheduled time,
then priority. 'process' pops and executes everything due; 'run' keeps
processing on the configured interval until interrupted.`,
	}

	cmd.AddCommand(newScheduleAddCommand())
	cmd.AddCommand(newScheduleListCommand())
	cmd.AddCommand(newScheduleCancelCommand())
	cmd.AddCommand(newScheduleProcessCommand())
	cmd.AddCommand(newScheduleRunCommand())

	return cmd
}

func newScheduleAddCommand() *cobra.Command {
	var (
		actionsFile string
		at          string
		delay       time.Duration
		priority    int
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule actions for later execution",
		Example: `  # Run tonight at 02:00 UTC
  warden schedule add --actions actions.json --at 2026-08-30T02:00:00Z

  # Run in four hours, ahead of same-time items
  warden schedule add --actions actions.json --in 4h --priority 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			actions, err := loadActions(actionsFile)
			if err != nil {
				return err
			}

			when := time.Now().UTC()
			if at != "" {
				when, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("failed to parse --at time: %w", err)
				}
			} else if delay > 0 {
				when = when.Add(delay)
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			for _, action := range actions {
				item, err := app.scheduler.Schedule(ctx, action, when, priority, force)
				if err != nil {
					return fmt.Errorf("failed to schedule action %s: %w", action.ID, err)
				}
				fmt.Printf("Scheduled %s: %s %s at %s (priority %d)\n",
					item.ID, action.OperationKind, action.ResourceID,
					when.Format(time.RFC3339), priority)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&actionsFile, "actions", "a", "", "JSON file holding the actions to schedule")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 time to execute at")
	cmd.Flags().DurationVar(&delay, "in", 0, "delay before execution (e.g. 4h)")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "priority among items due at the same time")
	cmd.Flags().BoolVar(&force, "force", false, "skip the approval workflow at execution time")
	cmd.MarkFlagRequired("actions")

	return cmd
}

func newScheduleListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending scheduled actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			items := app.scheduler.Pending()
			if jsonOutput {
				return printJSON(items)
			}

			if len(items) == 0 {
				fmt.Println("No scheduled actions")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%s  %s  priority %d  %s %s\n",
					item.ID, item.ScheduledAt.Format(time.RFC3339), item.Priority,
					item.Action.OperationKind, item.Action.ResourceID)
			}
			return nil
		},
	}

	return cmd
}

func newScheduleCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <item-id>",
		Short: "Cancel a scheduled action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			cancelled, err := app.scheduler.CancelScheduled(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel scheduled action: %w", err)
			}
			if !cancelled {
				return fmt.Errorf("scheduled action not found: %s", args[0])
			}
			fmt.Printf("Cancelled %s\n", args[0])
			return nil
		},
	}

	return cmd
}

func newScheduleProcessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Execute everything currently due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			summary, err := app.scheduler.ProcessDue(ctx)
			if err != nil {
				return fmt.Errorf("failed to process due actions: %w", err)
			}

			if jsonOutput {
				return printJSON(summary)
			}
			fmt.Printf("Processed %d due actions: %d completed, %d failed, %d rolled back, %d cancelled\n",
				summary.Total, summary.Completed, summary.Failed,
				summary.RolledBack, summary.Cancelled)
			return nil
		},
	}

	return cmd
}

func newScheduleRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process due actions continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if err := app.watchConfig(ctx); err != nil {
				return err
			}
			if err := app.telemetry.StartMetricsServer(); err != nil {
				return err
			}

			fmt.Println("Scheduler running; press Ctrl+C to stop")
			app.scheduler.Run(ctx)
			return nil
		},
	}

	return cmd
}
