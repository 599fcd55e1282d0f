package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/approval"
	"github.com/costwarden/costwarden/pkg/resilience"
	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
)

// recordingMutator counts invocations and returns a scripted result.
type recordingMutator struct {
	mu     sync.Mutex
	calls  []OptimizationAction
	result *MutationResult
	err    error
	block  chan struct{} // when set, the mutation waits here
}

func (m *recordingMutator) mutate(ctx context.Context, action OptimizationAction) (*MutationResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, action)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &MutationResult{Success: true}, nil
}

func (m *recordingMutator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func setupTestExecutor(t *testing.T, cfg Config, mutator *recordingMutator) (*Executor, stores.Store) {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	recovery := resilience.NewRecoveryManager(
		resilience.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 2.0, MaxDelay: time.Millisecond},
		resilience.NewClassifier(),
		resilience.NewCircuitBreaker(resilience.BreakerConfig{FailureThreshold: 100}),
		resilience.NewRateLimiter(nil, 1000),
		nil,
		nil,
		nil,
		zerolog.Nop(),
	)

	assessor := safety.NewAssessor(safety.DefaultAssessorConfig())
	safetyEngine := safety.NewEngine(assessor, recovery, store, zerolog.Nop())
	approvals := approval.NewManager(approval.DefaultManagerConfig(), store, assessor, nil, nil, nil, zerolog.Nop())

	executor := NewExecutor(cfg, safetyEngine, approvals, nil, store, mutator.mutate, nil, nil, zerolog.Nop())
	return executor, store
}

func resizeAction(id string) OptimizationAction {
	return OptimizationAction{
		ID:               id,
		ResourceID:       "i-" + id,
		ResourceType:     "compute",
		OperationKind:    "resize_instance",
		Region:           "us-east-1",
		CurrentCost:      500,
		EstimatedSavings: 200,
		Metadata:         safety.ResourceMetadata{State: "running", InstanceType: "m5.large"},
	}
}

func TestExecuteOptimizationCompleted(t *testing.T) {
	mutator := &recordingMutator{result: &MutationResult{
		Success: true,
		Details: map[string]interface{}{"actual_savings": 180.0},
	}}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	record, err := executor.ExecuteOptimization(ctx, resizeAction("a1"), true)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	if record.Status != stores.ExecutionStatusCompleted {
		t.Fatalf("status = %s (%s), want %s", record.Status, record.Message, stores.ExecutionStatusCompleted)
	}
	if mutator.callCount() != 1 {
		t.Errorf("mutations = %d, want 1", mutator.callCount())
	}
	if record.ActualSavings == nil || *record.ActualSavings != 180 {
		t.Errorf("actual savings = %v, want 180", record.ActualSavings)
	}
	if record.Accuracy == nil || *record.Accuracy != 90 {
		t.Errorf("accuracy = %v, want 90", record.Accuracy)
	}
	if record.RollbackPlanID == "" {
		t.Error("resize is reversible and should carry a rollback plan")
	}

	row, err := store.GetExecution(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to load execution: %v", err)
	}
	if row.Status != stores.ExecutionStatusCompleted {
		t.Errorf("persisted status = %s, want %s", row.Status, stores.ExecutionStatusCompleted)
	}
	if row.ActualSavings == nil || *row.ActualSavings != 180 {
		t.Errorf("persisted savings = %v, want 180", row.ActualSavings)
	}
	if row.Attempts != 1 {
		t.Errorf("persisted attempts = %d, want 1", row.Attempts)
	}
}

func TestExecuteOptimizationDryRun(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{DryRun: true}, mutator)

	record, err := executor.ExecuteOptimization(context.Background(), resizeAction("a2"), true)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	if record.Status != stores.ExecutionStatusCompleted {
		t.Errorf("status = %s, want %s", record.Status, stores.ExecutionStatusCompleted)
	}
	if record.Mode != ModeDryRun {
		t.Errorf("mode = %s, want %s", record.Mode, ModeDryRun)
	}
	if mutator.callCount() != 0 {
		t.Errorf("mutations = %d, dry run must never invoke the callback", mutator.callCount())
	}
	if record.ActualSavings == nil || *record.ActualSavings != 200 {
		t.Errorf("synthesized savings = %v, want estimate 200", record.ActualSavings)
	}
}

func TestExecuteOptimizationGatedByApproval(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	action := OptimizationAction{
		ID:               "a3",
		ResourceID:       "i-prod",
		ResourceType:     "compute",
		OperationKind:    "terminate_instance",
		CurrentCost:      3000,
		EstimatedSavings: 2500,
		Metadata: safety.ResourceMetadata{
			State: "running",
			Tags:  map[string]string{"Environment": "production"},
		},
	}

	record, err := executor.ExecuteOptimization(context.Background(), action, false)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	if record.Status != stores.ExecutionStatusCancelled {
		t.Fatalf("status = %s, want %s", record.Status, stores.ExecutionStatusCancelled)
	}
	if record.WorkflowID == "" {
		t.Error("gated record should reference its workflow")
	}
	if mutator.callCount() != 0 {
		t.Errorf("mutations = %d, gated action must not execute", mutator.callCount())
	}
}

func TestExecuteOptimizationConsumesManualApproval(t *testing.T) {
	mutator := &recordingMutator{}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	action := OptimizationAction{
		ID:               "a9",
		ResourceID:       "i-prod-db",
		ResourceType:     "compute",
		OperationKind:    "terminate_instance",
		CurrentCost:      3000,
		EstimatedSavings: 2500,
		Metadata: safety.ResourceMetadata{
			State: "running",
			Tags:  map[string]string{"Environment": "production"},
		},
	}

	first, err := executor.ExecuteOptimization(ctx, action, false)
	if err != nil {
		t.Fatalf("first execution errored: %v", err)
	}
	if first.Status != stores.ExecutionStatusCancelled {
		t.Fatalf("first status = %s, want %s", first.Status, stores.ExecutionStatusCancelled)
	}
	if first.WorkflowID == "" {
		t.Fatal("gated record should reference its workflow")
	}

	// Approve every pending step out of band, the way an operator would
	// through the CLI.
	approvals := approval.NewManager(approval.DefaultManagerConfig(), store,
		safety.NewAssessor(safety.DefaultAssessorConfig()), nil, nil, nil, zerolog.Nop())
	for i := 0; i < 4; i++ {
		result, err := approvals.SubmitApproval(ctx, first.WorkflowID, "ops-lead", approval.DecisionApprove, "reviewed")
		if err != nil {
			t.Fatalf("SubmitApproval failed: %v", err)
		}
		if !result.Success {
			t.Fatalf("approval not accepted: %s", result.Message)
		}
		if result.State == stores.WorkflowStateApproved {
			break
		}
	}

	// The re-run must consume the existing grant, not open a second
	// workflow and gate again.
	second, err := executor.ExecuteOptimization(ctx, action, false)
	if err != nil {
		t.Fatalf("second execution errored: %v", err)
	}
	if second.Status != stores.ExecutionStatusCompleted {
		t.Fatalf("second status = %s (%s), want %s", second.Status, second.Message, stores.ExecutionStatusCompleted)
	}
	if second.WorkflowID != first.WorkflowID {
		t.Errorf("workflow id = %s, want the approved workflow %s", second.WorkflowID, first.WorkflowID)
	}
	if mutator.callCount() != 1 {
		t.Errorf("mutations = %d, want 1", mutator.callCount())
	}

	wf, err := store.GetWorkflow(ctx, first.WorkflowID)
	if err != nil {
		t.Fatalf("failed to load workflow: %v", err)
	}
	if wf.State != stores.WorkflowStateCompleted {
		t.Errorf("workflow state = %s, want %s", wf.State, stores.WorkflowStateCompleted)
	}
}

func TestExecuteOptimizationAutoApprovedProceeds(t *testing.T) {
	mutator := &recordingMutator{}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	action := OptimizationAction{
		ID:               "a4",
		ResourceID:       "i-tags",
		ResourceType:     "compute",
		OperationKind:    "apply_tags",
		CurrentCost:      100,
		EstimatedSavings: 10,
	}

	record, err := executor.ExecuteOptimization(ctx, action, false)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	if record.Status != stores.ExecutionStatusCompleted {
		t.Fatalf("status = %s (%s), want %s", record.Status, record.Message, stores.ExecutionStatusCompleted)
	}
	if record.WorkflowID == "" {
		t.Fatal("expected a workflow id")
	}

	wf, err := store.GetWorkflow(ctx, record.WorkflowID)
	if err != nil {
		t.Fatalf("failed to load workflow: %v", err)
	}
	if wf.State != stores.WorkflowStateCompleted {
		t.Errorf("workflow state = %s, want %s", wf.State, stores.WorkflowStateCompleted)
	}
}

func TestPreValidationFailures(t *testing.T) {
	mutator := &recordingMutator{}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	tests := []struct {
		name   string
		mutate func(a *OptimizationAction)
	}{
		{"savings exceed cost", func(a *OptimizationAction) { a.EstimatedSavings = 900 }},
		{"wrong lifecycle state", func(a *OptimizationAction) { a.Metadata.State = "stopped" }},
		{"missing resource id", func(a *OptimizationAction) { a.ResourceID = "" }},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := resizeAction("pv" + string(rune('a'+i)))
			tt.mutate(&action)

			record, err := executor.ExecuteOptimization(context.Background(), action, true)
			if err != nil {
				t.Fatalf("ExecuteOptimization failed: %v", err)
			}
			if record.Status != stores.ExecutionStatusFailed {
				t.Errorf("status = %s, want %s", record.Status, stores.ExecutionStatusFailed)
			}
			if record.Message == "" {
				t.Error("expected a rejection message")
			}
		})
	}

	if mutator.callCount() != 0 {
		t.Errorf("mutations = %d, rejected actions must not execute", mutator.callCount())
	}
}

func TestInFlightConflictRejected(t *testing.T) {
	block := make(chan struct{})
	mutator := &recordingMutator{block: block}
	executor, _ := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	action := resizeAction("a5")

	firstDone := make(chan *ExecutionRecord, 1)
	go func() {
		record, err := executor.ExecuteOptimization(ctx, action, true)
		if err != nil {
			t.Errorf("first execution failed: %v", err)
		}
		firstDone <- record
	}()

	// Wait until the first execution is inside the mutating callback.
	deadline := time.After(2 * time.Second)
	for mutator.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first execution never reached the mutation")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second := resizeAction("a6")
	second.ResourceID = action.ResourceID

	record, err := executor.ExecuteOptimization(ctx, second, true)
	if err != nil {
		t.Fatalf("second execution errored: %v", err)
	}
	if record.Status != stores.ExecutionStatusFailed {
		t.Errorf("conflicting status = %s, want %s", record.Status, stores.ExecutionStatusFailed)
	}

	close(block)
	first := <-firstDone
	if first.Status != stores.ExecutionStatusCompleted {
		t.Errorf("first status = %s, want %s", first.Status, stores.ExecutionStatusCompleted)
	}
}

func TestPersistedInFlightConflictRejected(t *testing.T) {
	mutator := &recordingMutator{}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	action := resizeAction("a10")

	// An EXECUTING row left behind by another process; the in-memory
	// claim table knows nothing about it.
	now := time.Now().UTC()
	stale := &stores.ExecutionRow{
		ID:           "stale-exec",
		ActionID:     "other-action",
		ResourceID:   action.ResourceID,
		ResourceType: "compute",
		Operation:    "resize_instance",
		Mode:         string(ModeLive),
		Status:       stores.ExecutionStatusExecuting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateExecution(ctx, stale); err != nil {
		t.Fatalf("failed to seed execution: %v", err)
	}

	record, err := executor.ExecuteOptimization(ctx, action, true)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}
	if record.Status != stores.ExecutionStatusFailed {
		t.Fatalf("status = %s, want %s", record.Status, stores.ExecutionStatusFailed)
	}
	if !strings.Contains(record.Message, "already in flight") {
		t.Errorf("message = %q, want an in-flight conflict", record.Message)
	}
	if mutator.callCount() != 0 {
		t.Errorf("mutations = %d, conflicting action must not execute", mutator.callCount())
	}
}

func TestPostValidationFailureRollsBack(t *testing.T) {
	mutator := &recordingMutator{result: &MutationResult{
		Success: true,
		Details: map[string]interface{}{"performance_degraded": true},
	}}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	ctx := context.Background()

	record, err := executor.ExecuteOptimization(ctx, resizeAction("a7"), true)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	if record.Status != stores.ExecutionStatusRolledBack {
		t.Fatalf("status = %s (%s), want %s", record.Status, record.Message, stores.ExecutionStatusRolledBack)
	}

	plan, err := store.GetRollbackPlan(ctx, record.RollbackPlanID)
	if err != nil {
		t.Fatalf("failed to load rollback plan: %v", err)
	}
	if plan.Status != stores.RollbackStatusExecuted {
		t.Errorf("plan status = %s, want %s", plan.Status, stores.RollbackStatusExecuted)
	}

	// One mutation plus one reversal.
	if mutator.callCount() != 2 {
		t.Errorf("mutations = %d, want 2", mutator.callCount())
	}
}

func TestMutationErrorTriggersBestEffortRollback(t *testing.T) {
	mutator := &recordingMutator{err: errors.New("InternalError: provider exploded")}
	executor, _ := setupTestExecutor(t, Config{}, mutator)

	record, err := executor.ExecuteOptimization(context.Background(), resizeAction("a8"), true)
	if err != nil {
		t.Fatalf("ExecuteOptimization failed: %v", err)
	}

	// The rollback invoker reuses the same failing mutator, so the
	// best-effort rollback fails too and the record finalizes FAILED.
	if record.Status != stores.ExecutionStatusFailed {
		t.Errorf("status = %s, want %s", record.Status, stores.ExecutionStatusFailed)
	}
	if mutator.callCount() < 2 {
		t.Errorf("mutations = %d, want at least 2 (mutation + rollback attempt)", mutator.callCount())
	}
}

func TestSavingsAccuracy(t *testing.T) {
	if acc := savingsAccuracy(50, 200); acc == nil || *acc != 25 {
		t.Errorf("accuracy = %v, want 25", acc)
	}
	if acc := savingsAccuracy(10, 0); acc != nil {
		t.Errorf("accuracy with zero estimate = %v, want nil", acc)
	}
}
