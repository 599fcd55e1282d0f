package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Export the audit trail",
		Long: `Dump the append-only audit trail as JSON.

Every gated, executed, and failed operation leaves an entry; the trail
is the compliance record for what the pipeline touched and why.`,
		Example: `  # Last 100 entries
  warden audit

  # A deeper slice of history
  warden audit --limit 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			export, err := app.safety.ExportAudit(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to export audit trail: %w", err)
			}
			return printJSON(export)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "max entries to export")

	return cmd
}
