package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/costwarden/costwarden/pkg/approval"
	"github.com/costwarden/costwarden/pkg/stores"
)

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage approval workflows",
		Long: `Inspect and act on approval workflows.

Workflows gate high-risk optimizations behind human sign-off. They move
through CREATED, AWAITING_APPROVAL, APPROVED or REJECTED, EXECUTED, and
COMPLETED; pending workflows escalate or expire on timeout.`,
	}

	cmd.AddCommand(newWorkflowListCommand())
	cmd.AddCommand(newWorkflowShowCommand())
	cmd.AddCommand(newWorkflowApproveCommand())
	cmd.AddCommand(newWorkflowRejectCommand())
	cmd.AddCommand(newWorkflowEscalateCommand())
	cmd.AddCommand(newWorkflowCancelCommand())

	return cmd
}

func newWorkflowListCommand() *cobra.Command {
	var (
		state           string
		includeArchived bool
		limit           int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Example: `  # Pending workflows
  warden workflow list --state AWAITING_APPROVAL

  # Everything, including archived
  warden workflow list --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			var stateFilter *stores.WorkflowState
			if state != "" {
				s := stores.WorkflowState(state)
				stateFilter = &s
			}

			workflows, err := app.approvals.ListWorkflows(ctx, stateFilter, includeArchived, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			if jsonOutput {
				return printJSON(workflows)
			}

			if len(workflows) == 0 {
				fmt.Println("No workflows found")
				return nil
			}
			for _, wf := range workflows {
				fmt.Printf("%s  %-18s %-8s %-9s $%.2f/mo  %s %s\n",
					wf.ID, wf.State, wf.Risk.Level, wf.Requirement.Authority,
					wf.Action.EstimatedSavings, wf.Action.OperationKind, wf.Action.ResourceID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "filter by workflow state")
	cmd.Flags().BoolVar(&includeArchived, "all", false, "include archived workflows")
	cmd.Flags().IntVar(&limit, "limit", 50, "max workflows to list")

	return cmd
}

func newWorkflowShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show one workflow in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			wf, err := app.approvals.GetWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(wf)
		},
	}

	return cmd
}

func newWorkflowApproveCommand() *cobra.Command {
	var (
		approver string
		comments string
	)

	cmd := &cobra.Command{
		Use:   "approve <workflow-id>",
		Short: "Approve the next pending step",
		Example: `  warden workflow approve wf-123 --approver alice
  warden workflow approve wf-123 --approver alice --comments "verified rollback plan"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitDecision(cmd, args[0], approver, approval.DecisionApprove, comments)
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "who is approving")
	cmd.Flags().StringVar(&comments, "comments", "", "decision comments")
	cmd.MarkFlagRequired("approver")

	return cmd
}

func newWorkflowRejectCommand() *cobra.Command {
	var (
		approver string
		comments string
	)

	cmd := &cobra.Command{
		Use:   "reject <workflow-id>",
		Short: "Reject a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitDecision(cmd, args[0], approver, approval.DecisionReject, comments)
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "who is rejecting")
	cmd.Flags().StringVar(&comments, "comments", "", "decision comments")
	cmd.MarkFlagRequired("approver")

	return cmd
}

func submitDecision(cmd *cobra.Command, workflowID, approver string, decision approval.Decision, comments string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	result, err := app.approvals.SubmitApproval(ctx, workflowID, approver, decision, comments)
	if err != nil {
		return fmt.Errorf("failed to submit decision: %w", err)
	}

	if jsonOutput {
		return printJSON(result)
	}
	if !result.Success {
		return fmt.Errorf("decision not applied: %s", result.Message)
	}
	fmt.Printf("Workflow %s is now %s\n", workflowID, result.State)
	return nil
}

func newWorkflowEscalateCommand() *cobra.Command {
	var (
		reason      string
		escalatedBy string
	)

	cmd := &cobra.Command{
		Use:   "escalate <workflow-id>",
		Short: "Escalate a workflow to the next authority",
		Long: `Raise a pending workflow one rung up the authority ladder and
extend its deadline. Workflows already at EXECUTIVE cannot escalate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			result, err := app.approvals.EscalateWorkflow(ctx, args[0], reason, escalatedBy)
			if err != nil {
				return fmt.Errorf("failed to escalate workflow: %w", err)
			}

			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				return fmt.Errorf("escalation not applied: %s", result.Message)
			}
			fmt.Printf("Workflow %s escalated to %s", args[0], result.Authority)
			if result.ExpiresAt != nil {
				fmt.Printf(", new deadline %s", result.ExpiresAt.Format("2006-01-02 15:04 MST"))
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual escalation", "why the workflow is escalating")
	cmd.Flags().StringVar(&escalatedBy, "by", "operator", "who is escalating")

	return cmd
}

func newWorkflowCancelCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <workflow-id>",
		Short: "Cancel a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			result, err := app.approvals.CancelWorkflow(ctx, args[0], reason)
			if err != nil {
				return fmt.Errorf("failed to cancel workflow: %w", err)
			}

			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				return fmt.Errorf("cancellation not applied: %s", result.Message)
			}
			fmt.Printf("Workflow %s cancelled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "cancellation reason")

	return cmd
}
