package engine

import (
	"context"
	"testing"
	"time"

	"github.com/costwarden/costwarden/pkg/stores"
)

func batchActions(n int) []OptimizationAction {
	actions := make([]OptimizationAction, 0, n)
	for i := 0; i < n; i++ {
		action := resizeAction("batch-" + string(rune('a'+i)))
		if i%2 == 0 {
			action.Region = "us-east-1"
			action.ResourceType = "compute"
		} else {
			action.Region = "eu-west-1"
			action.ResourceType = "database"
		}
		actions = append(actions, action)
	}
	return actions
}

func TestExecuteBatchSequential(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	summary, err := executor.ExecuteBatch(context.Background(), batchActions(4), BatchSequential, true)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}

	if summary.Total != 4 || summary.Completed != 4 {
		t.Errorf("summary = %d total / %d completed, want 4/4", summary.Total, summary.Completed)
	}
	if summary.TotalSavings != 800 {
		t.Errorf("total savings = %.0f, want 800", summary.TotalSavings)
	}
	if mutator.callCount() != 4 {
		t.Errorf("mutations = %d, want 4", mutator.callCount())
	}
}

func TestExecuteBatchParallel(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{MaxParallel: 3}, mutator)

	summary, err := executor.ExecuteBatch(context.Background(), batchActions(6), BatchParallel, true)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}

	if summary.Total != 6 || summary.Completed != 6 {
		t.Errorf("summary = %d total / %d completed, want 6/6", summary.Total, summary.Completed)
	}
	if len(summary.Records) != 6 {
		t.Errorf("records = %d, want 6", len(summary.Records))
	}
}

func TestExecuteBatchMixedOutcomes(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	actions := batchActions(3)
	// The second item fails pre-validation.
	actions[1].EstimatedSavings = actions[1].CurrentCost + 1

	summary, err := executor.ExecuteBatch(context.Background(), actions, BatchSequential, true)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}

	if summary.Completed != 2 || summary.Failed != 1 {
		t.Errorf("summary = %d completed / %d failed, want 2/1", summary.Completed, summary.Failed)
	}
}

func TestExecuteBatchGrouped(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{MaxParallel: 2}, mutator)

	for _, mode := range []BatchMode{BatchResourceGrouped, BatchRegionGrouped} {
		summary, err := executor.ExecuteBatch(context.Background(), batchActions(4), mode, true)
		if err != nil {
			t.Fatalf("ExecuteBatch(%s) failed: %v", mode, err)
		}
		if summary.Completed != 4 {
			t.Errorf("%s completed = %d, want 4", mode, summary.Completed)
		}
	}
}

func TestExecuteBatchUnknownMode(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	if _, err := executor.ExecuteBatch(context.Background(), batchActions(1), BatchMode("SIDEWAYS"), true); err == nil {
		t.Fatal("expected error for unknown batch mode")
	}
}

func TestExecuteBatchItemTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	mutator := &recordingMutator{block: block}
	executor, store := setupTestExecutor(t, Config{MaxParallel: 2, ItemTimeout: 50 * time.Millisecond}, mutator)
	ctx := context.Background()

	action := resizeAction("slow")
	summary, err := executor.ExecuteBatch(ctx, []OptimizationAction{action}, BatchParallel, true)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1 (timed-out item)", summary.Failed)
	}
	if summary.Completed != 0 {
		t.Errorf("completed = %d, want 0", summary.Completed)
	}

	// The timed-out item must land in a terminal persisted status even
	// though its own context has already expired.
	rows, err := store.ListExecutionsByResource(ctx, action.ResourceID)
	if err != nil {
		t.Fatalf("failed to list executions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("executions = %d, want 1", len(rows))
	}
	if rows[0].Status != stores.ExecutionStatusFailed {
		t.Errorf("persisted status = %s, want %s", rows[0].Status, stores.ExecutionStatusFailed)
	}
}

func TestSummarizeCountsRolledBack(t *testing.T) {
	savings := 120.0
	records := []*ExecutionRecord{
		{Status: stores.ExecutionStatusCompleted, ActualSavings: &savings},
		{Status: stores.ExecutionStatusRolledBack},
		{Status: stores.ExecutionStatusCancelled},
		nil,
	}

	summary := summarize(BatchSequential, records)
	if summary.Completed != 1 || summary.RolledBack != 1 || summary.Cancelled != 1 {
		t.Errorf("summary = %+v, want 1 completed / 1 rolled back / 1 cancelled", summary)
	}
	if summary.TotalSavings != 120 {
		t.Errorf("total savings = %.0f, want 120", summary.TotalSavings)
	}
}

// Grouped partitions must run sequentially within a partition: two actions
// on the same resource never conflict when grouped by resource type.
func TestGroupedAvoidsSameResourceConflicts(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{MaxParallel: 4}, mutator)

	first := resizeAction("g1")
	second := resizeAction("g2")
	second.ResourceID = first.ResourceID

	summary, err := executor.ExecuteBatch(context.Background(), []OptimizationAction{first, second}, BatchResourceGrouped, true)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	if summary.Completed != 2 {
		t.Errorf("completed = %d, want 2 (sequential within partition)", summary.Completed)
	}
}
