package engine

import (
	"context"
	"time"

	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
)

// ExecutionMode selects whether mutations actually run.
type ExecutionMode string

const (
	// ModeLive invokes the mutating callback for real.
	ModeLive ExecutionMode = "LIVE"

	// ModeDryRun never invokes the mutating callback; outcomes are
	// synthesized for safe rehearsal.
	ModeDryRun ExecutionMode = "DRY_RUN"
)

// OptimizationAction is one cost-saving change to apply to a cloud
// resource.
type OptimizationAction struct {
	ID               string                  `json:"id"`
	ResourceID       string                  `json:"resource_id"`
	ResourceType     string                  `json:"resource_type"`
	OperationKind    string                  `json:"operation_kind"`
	Region           string                  `json:"region,omitempty"`
	CurrentCost      float64                 `json:"current_cost"`
	EstimatedSavings float64                 `json:"estimated_savings"`
	Priority         int                     `json:"priority"`
	Metadata         safety.ResourceMetadata `json:"metadata"`
}

// MutationResult is what the caller-supplied mutating operation reports
// back. Details may carry provider-specific facts such as the realized
// savings.
type MutationResult struct {
	Success bool                   `json:"success"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MutatingOperation performs the actual external mutation for an action.
// The pipeline never constructs provider-specific calls itself.
type MutatingOperation func(ctx context.Context, action OptimizationAction) (*MutationResult, error)

// ExecutionRecord is the finalized outcome of one optimization attempt.
// A record is owned by exactly one worker until finalized, then published
// to the store.
type ExecutionRecord struct {
	ID               string                 `json:"id"`
	ActionID         string                 `json:"action_id"`
	ResourceID       string                 `json:"resource_id"`
	ResourceType     string                 `json:"resource_type"`
	Operation        string                 `json:"operation"`
	Mode             ExecutionMode          `json:"mode"`
	Status           stores.ExecutionStatus `json:"status"`
	WorkflowID       string                 `json:"workflow_id,omitempty"`
	RollbackPlanID   string                 `json:"rollback_plan_id,omitempty"`
	EstimatedSavings float64                `json:"estimated_savings"`
	ActualSavings    *float64               `json:"actual_savings,omitempty"`
	Accuracy         *float64               `json:"accuracy,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at"`
}

// savingsAccuracy reports realized savings as a percentage of the
// estimate.
func savingsAccuracy(actual, estimated float64) *float64 {
	if estimated == 0 {
		return nil
	}
	accuracy := actual / estimated * 100
	return &accuracy
}

// BatchMode selects how a batch of actions is executed.
type BatchMode string

const (
	// BatchSequential executes one action at a time.
	BatchSequential BatchMode = "SEQUENTIAL"

	// BatchParallel executes actions on a bounded worker pool.
	BatchParallel BatchMode = "PARALLEL"

	// BatchResourceGrouped partitions by resource type; partitions run
	// concurrently, each sequentially inside.
	BatchResourceGrouped BatchMode = "RESOURCE_GROUPED"

	// BatchRegionGrouped partitions by region.
	BatchRegionGrouped BatchMode = "REGION_GROUPED"
)

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	Mode         BatchMode          `json:"mode"`
	Total        int                `json:"total"`
	Completed    int                `json:"completed"`
	Failed       int                `json:"failed"`
	RolledBack   int                `json:"rolled_back"`
	Cancelled    int                `json:"cancelled"`
	TotalSavings float64            `json:"total_savings"`
	Elapsed      time.Duration      `json:"elapsed"`
	Records      []*ExecutionRecord `json:"records"`
}
