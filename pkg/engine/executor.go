package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/approval"
	"github.com/costwarden/costwarden/pkg/policy"
	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
	"github.com/costwarden/costwarden/pkg/telemetry"
)

// Config tunes the execution engine.
type Config struct {
	// DryRun synthesizes all outcomes without invoking the mutating
	// callback.
	DryRun bool

	// MaxParallel bounds the batch worker pool.
	MaxParallel int

	// ItemTimeout bounds one action's execution inside a parallel batch.
	ItemTimeout time.Duration

	// SchedulerInterval is how often due scheduled items are processed.
	SchedulerInterval time.Duration
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		MaxParallel:       5,
		ItemTimeout:       10 * time.Minute,
		SchedulerInterval: time.Minute,
	}
}

// Executor orchestrates the optimization pipeline: approval routing,
// guardrail evaluation, pre-execution validation, rollback-protected
// mutation, and post-execution validation. It guarantees at most one
// in-flight execution per resource id; a conflicting action is rejected
// at validation time rather than queued.
type Executor struct {
	cfg       Config
	safety    *safety.Engine
	approvals *approval.Manager
	policies  *policy.Engine
	store     stores.Store
	mutate    MutatingOperation
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
	logger    zerolog.Logger

	mu       sync.Mutex
	inflight map[string]string // resource id -> execution id

	now func() time.Time
}

// NewExecutor creates an execution engine. policies may be nil when
// guardrail evaluation is disabled; metrics and events may be nil.
func NewExecutor(
	cfg Config,
	safetyEngine *safety.Engine,
	approvals *approval.Manager,
	policies *policy.Engine,
	store stores.Store,
	mutate MutatingOperation,
	metrics *telemetry.Metrics,
	events *telemetry.EventPublisher,
	logger zerolog.Logger,
) *Executor {
	def := DefaultConfig()
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = def.ItemTimeout
	}
	if cfg.SchedulerInterval <= 0 {
		cfg.SchedulerInterval = def.SchedulerInterval
	}

	return &Executor{
		cfg:       cfg,
		safety:    safetyEngine,
		approvals: approvals,
		policies:  policies,
		store:     store,
		mutate:    mutate,
		metrics:   metrics,
		events:    events,
		logger:    logger.With().Str("component", "execution-engine").Logger(),
		inflight:  make(map[string]string),
		now:       time.Now,
	}
}

// SetDryRun switches the executor between live and dry-run execution.
// Not safe to call while executions are in flight.
func (e *Executor) SetDryRun(enabled bool) {
	e.cfg.DryRun = enabled
}

// ExecuteOptimization runs one action through the full pipeline. force
// skips approval routing. Expected failures (gated approval, validation
// rejection, guardrail violation, mutation failure) finalize the record;
// the error is reserved for infrastructure faults.
func (e *Executor) ExecuteOptimization(ctx context.Context, action OptimizationAction, force bool) (*ExecutionRecord, error) {
	record := e.newRecord(action)

	row := e.toRow(record)
	if err := e.store.CreateExecution(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordExecutionStarted(action.OperationKind)
	}
	if e.events != nil {
		e.events.PublishExecutionStarted(record.ID, action.ResourceID, action.OperationKind)
	}

	preApproved := force
	if !force {
		// A re-run of an action approved out of band consumes the
		// existing grant instead of opening a second workflow.
		wf, err := e.approvals.ApprovedWorkflowForAction(ctx, action.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up approval: %w", err)
		}
		if wf == nil {
			wf, err = e.approvals.CreateWorkflow(ctx, approvalAction(action), "execution-engine")
			if err != nil {
				return nil, fmt.Errorf("failed to route approval: %w", err)
			}
			record.WorkflowID = wf.ID

			if wf.State != stores.WorkflowStateApproved {
				return record, e.finalize(ctx, record, stores.ExecutionStatusCancelled,
					fmt.Sprintf("awaiting %s approval (workflow %s)", wf.Requirement.Authority, wf.ID))
			}
		} else {
			record.WorkflowID = wf.ID
		}
		preApproved = true
	}

	if !e.acquireResource(action.ResourceID, record.ID) {
		return record, e.finalize(ctx, record, stores.ExecutionStatusFailed,
			fmt.Sprintf("conflicting execution in flight for resource %s", action.ResourceID))
	}
	defer e.releaseResource(action.ResourceID)

	if msg := e.preValidate(ctx, action, force); msg != "" {
		return record, e.finalize(ctx, record, stores.ExecutionStatusFailed, msg)
	}

	if e.cfg.DryRun {
		return record, e.finalizeDryRun(ctx, record, action)
	}

	if err := e.store.UpdateExecutionStatus(ctx, record.ID, stores.ExecutionStatusExecuting, nil); err != nil {
		return nil, err
	}
	record.Status = stores.ExecutionStatusExecuting

	var mutation *MutationResult
	validation, err := e.safety.ValidateOperation(ctx, safety.ValidationRequest{
		OperationID:   record.ID,
		OperationKind: action.OperationKind,
		ResourceID:    action.ResourceID,
		ResourceType:  action.ResourceType,
		Metadata:      action.Metadata,
		PreApproved:   preApproved,
	}, func(ctx context.Context) error {
		// Runs once per retry attempt under the resilience layer.
		if err := e.store.IncrementExecutionAttempts(ctx, record.ID); err != nil {
			e.logger.Warn().Err(err).Str("execution_id", record.ID).Msg("Failed to record attempt")
		}
		result, mutateErr := e.mutate(ctx, action)
		if mutateErr != nil {
			return mutateErr
		}
		mutation = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	record.RollbackPlanID = validation.RollbackPlanID

	switch validation.Status {
	case safety.StatusRequiresApproval:
		return record, e.finalize(ctx, record, stores.ExecutionStatusCancelled, validation.Message)

	case safety.StatusFailed:
		return record, e.recoverFailure(ctx, record, validation.Message)
	}

	if msg := e.postValidate(mutation); msg != "" {
		return record, e.rollbackAndFinalize(ctx, record, msg)
	}

	if record.WorkflowID != "" {
		if err := e.approvals.MarkExecuted(ctx, record.WorkflowID); err != nil {
			e.logger.Error().Err(err).Str("workflow_id", record.WorkflowID).Msg("Failed to mark workflow executed")
		} else if err := e.approvals.MarkCompleted(ctx, record.WorkflowID); err != nil {
			e.logger.Error().Err(err).Str("workflow_id", record.WorkflowID).Msg("Failed to mark workflow completed")
		}
	}

	actual := actualSavings(mutation, action.EstimatedSavings)
	record.ActualSavings = &actual
	record.Accuracy = savingsAccuracy(actual, action.EstimatedSavings)
	if mutation != nil {
		record.Details = mutation.Details
	}

	if e.metrics != nil {
		e.metrics.RecordSavings(actual)
	}

	return record, e.finalize(ctx, record, stores.ExecutionStatusCompleted, "")
}

// preValidate runs the pre-execution checks and returns a rejection
// message, or empty when the action may proceed.
func (e *Executor) preValidate(ctx context.Context, action OptimizationAction, force bool) string {
	if action.ResourceID == "" {
		return "resource id is required"
	}
	if action.OperationKind == "" {
		return "operation kind is required"
	}
	if action.CurrentCost > 0 && action.EstimatedSavings > action.CurrentCost {
		return fmt.Sprintf("estimated savings $%.2f exceed current cost $%.2f", action.EstimatedSavings, action.CurrentCost)
	}
	if msg := stateMismatch(action.OperationKind, action.Metadata.State); msg != "" {
		return msg
	}

	// The in-memory claim only covers this process; the store is the
	// durable view of in-flight work on the resource.
	rows, err := e.store.ListExecutionsByResource(ctx, action.ResourceID)
	if err != nil {
		return fmt.Sprintf("failed to check in-flight executions: %v", err)
	}
	for _, row := range rows {
		if row.Status == stores.ExecutionStatusExecuting {
			return fmt.Sprintf("execution %s already in flight for resource %s", row.ID, action.ResourceID)
		}
	}

	if e.policies != nil {
		result, err := e.policies.EvaluateAction(ctx, policyInput(action, force), &policy.Context{
			Requester:   "execution-engine",
			Environment: environmentOf(action.Metadata.Tags),
			Timestamp:   e.now().UTC(),
		})
		if err != nil {
			return fmt.Sprintf("guardrail evaluation failed: %v", err)
		}
		if !result.Allowed {
			for _, v := range result.Violations {
				if e.events != nil {
					e.events.PublishGuardrailViolation(action.ResourceID, v.Policy, v.Message)
				}
			}
			return guardrailMessage(result.Violations)
		}
	}

	return ""
}

// stateMismatch rejects operations whose target is in the wrong lifecycle
// state.
func stateMismatch(operationKind, state string) string {
	if state == "" {
		return ""
	}
	switch operationKind {
	case "stop_instance", "resize_instance", "terminate_instance":
		if state != "running" {
			return fmt.Sprintf("%s requires a running resource, found %q", operationKind, state)
		}
	case "start_instance":
		if state != "stopped" {
			return fmt.Sprintf("start_instance requires a stopped resource, found %q", state)
		}
	}
	return ""
}

// postValidate checks the mutation outcome and returns a failure message
// when the change should be rolled back.
func (e *Executor) postValidate(mutation *MutationResult) string {
	if mutation == nil {
		return ""
	}
	if !mutation.Success {
		return "mutation reported failure"
	}
	if degraded, ok := mutation.Details["performance_degraded"].(bool); ok && degraded {
		return "post-execution validation detected performance degradation"
	}
	return ""
}

// rollbackAndFinalize undoes a completed mutation that failed
// post-validation and finalizes the record as ROLLED_BACK.
func (e *Executor) rollbackAndFinalize(ctx context.Context, record *ExecutionRecord, reason string) error {
	if record.RollbackPlanID == "" {
		return e.finalize(ctx, record, stores.ExecutionStatusFailed,
			fmt.Sprintf("%s; no rollback plan available", reason))
	}

	rollbackCtx, cancel := e.rollbackContext(ctx)
	defer cancel()
	result, err := e.safety.ExecuteRollback(rollbackCtx, record.RollbackPlanID, e.rollbackInvoker())
	if err != nil {
		return err
	}

	if e.metrics != nil {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		e.metrics.RecordRollback(outcome)
	}

	if !result.Success {
		if e.events != nil {
			e.events.PublishRollbackFailed(record.ID, record.RollbackPlanID, result.Message)
		}
		return e.finalize(ctx, record, stores.ExecutionStatusFailed,
			fmt.Sprintf("%s; rollback failed: %s", reason, result.Message))
	}

	if e.events != nil {
		e.events.PublishExecutionRolledBack(record.ID, record.ResourceID, record.RollbackPlanID)
	}
	return e.finalize(ctx, record, stores.ExecutionStatusRolledBack, reason)
}

// recoverFailure handles a mutation that raised an error: a best-effort
// rollback runs first, and the record finalizes as ROLLED_BACK when it
// succeeds, FAILED otherwise.
func (e *Executor) recoverFailure(ctx context.Context, record *ExecutionRecord, reason string) error {
	if record.RollbackPlanID == "" {
		return e.finalize(ctx, record, stores.ExecutionStatusFailed, reason)
	}

	rollbackCtx, cancel := e.rollbackContext(ctx)
	defer cancel()
	result, err := e.safety.ExecuteRollback(rollbackCtx, record.RollbackPlanID, e.rollbackInvoker())
	if err != nil {
		e.logger.Error().Err(err).Str("execution_id", record.ID).Msg("Best-effort rollback errored")
		return e.finalize(ctx, record, stores.ExecutionStatusFailed, reason)
	}
	if result.Success {
		return e.finalize(ctx, record, stores.ExecutionStatusRolledBack, reason)
	}
	return e.finalize(ctx, record, stores.ExecutionStatusFailed,
		fmt.Sprintf("%s; rollback failed: %s", reason, result.Message))
}

// rollbackContext detaches a rollback from its caller's deadline so an
// already-expired execution can still undo itself, with a fresh budget so
// a hung provider cannot block forever.
func (e *Executor) rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ItemTimeout)
}

// rollbackInvoker adapts the mutating callback to replay rollback steps.
func (e *Executor) rollbackInvoker() safety.RollbackInvoker {
	return func(ctx context.Context, step safety.RollbackStep) error {
		action := OptimizationAction{
			ID:            uuid.New().String(),
			ResourceID:    step.ResourceID,
			OperationKind: step.Operation,
		}
		result, err := e.mutate(ctx, action)
		if err != nil {
			return err
		}
		if result != nil && !result.Success {
			return fmt.Errorf("rollback operation %s reported failure", step.Operation)
		}
		return nil
	}
}

// finalizeDryRun synthesizes a successful outcome without mutating.
func (e *Executor) finalizeDryRun(ctx context.Context, record *ExecutionRecord, action OptimizationAction) error {
	record.Mode = ModeDryRun
	actual := action.EstimatedSavings
	record.ActualSavings = &actual
	record.Accuracy = savingsAccuracy(actual, action.EstimatedSavings)
	record.Details = map[string]interface{}{"synthesized": true}
	return e.finalize(ctx, record, stores.ExecutionStatusCompleted, "dry run")
}

// finalize publishes the record's terminal state. The writes run on a
// detached context so a timed-out execution still lands in a terminal
// status instead of staying EXECUTING forever.
func (e *Executor) finalize(ctx context.Context, record *ExecutionRecord, status stores.ExecutionStatus, message string) error {
	ctx = context.WithoutCancel(ctx)
	record.Status = status
	record.Message = message
	record.CompletedAt = e.now().UTC()

	var resultJSON *string
	if record.Details != nil || record.Accuracy != nil {
		payload, err := json.Marshal(map[string]interface{}{
			"accuracy": record.Accuracy,
			"details":  record.Details,
		})
		if err == nil {
			s := string(payload)
			resultJSON = &s
		}
	}

	if err := e.store.UpdateExecutionResult(ctx, record.ID, status, record.ActualSavings, resultJSON); err != nil {
		return err
	}
	if message != "" && (status == stores.ExecutionStatusFailed || status == stores.ExecutionStatusCancelled || status == stores.ExecutionStatusRolledBack) {
		if err := e.store.UpdateExecutionStatus(ctx, record.ID, status, &message); err != nil {
			return err
		}
	}

	elapsed := record.CompletedAt.Sub(record.StartedAt)
	if e.metrics != nil {
		e.metrics.RecordExecutionCompleted(string(status), elapsed)
	}
	if e.events != nil {
		switch status {
		case stores.ExecutionStatusCompleted:
			e.events.PublishExecutionCompleted(record.ID, string(status), elapsed)
		case stores.ExecutionStatusFailed, stores.ExecutionStatusCancelled:
			e.events.PublishExecutionFailed(record.ID, record.ResourceID, message)
		}
	}

	e.logger.Info().
		Str("execution_id", record.ID).
		Str("resource_id", record.ResourceID).
		Str("operation", record.Operation).
		Str("status", string(status)).
		Str("message", message).
		Dur("elapsed", elapsed).
		Msg("Execution finalized")

	return nil
}

// acquireResource claims a resource for one execution. It fails when
// another execution is already in flight for the same resource.
func (e *Executor) acquireResource(resourceID, executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[resourceID]; busy {
		return false
	}
	e.inflight[resourceID] = executionID
	return true
}

func (e *Executor) releaseResource(resourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, resourceID)
}

// newRecord seeds an execution record for an action.
func (e *Executor) newRecord(action OptimizationAction) *ExecutionRecord {
	mode := ModeLive
	if e.cfg.DryRun {
		mode = ModeDryRun
	}
	return &ExecutionRecord{
		ID:               uuid.New().String(),
		ActionID:         action.ID,
		ResourceID:       action.ResourceID,
		ResourceType:     action.ResourceType,
		Operation:        action.OperationKind,
		Mode:             mode,
		Status:           stores.ExecutionStatusPending,
		EstimatedSavings: action.EstimatedSavings,
		StartedAt:        e.now().UTC(),
	}
}

// toRow converts a record to its persisted form.
func (e *Executor) toRow(record *ExecutionRecord) *stores.ExecutionRow {
	row := &stores.ExecutionRow{
		ID:               record.ID,
		ActionID:         record.ActionID,
		ResourceID:       record.ResourceID,
		ResourceType:     record.ResourceType,
		Operation:        record.Operation,
		Mode:             string(record.Mode),
		Status:           record.Status,
		EstimatedSavings: record.EstimatedSavings,
		CreatedAt:        record.StartedAt,
		UpdatedAt:        record.StartedAt,
	}
	if record.WorkflowID != "" {
		row.WorkflowID = &record.WorkflowID
	}
	return row
}

// approvalAction converts an engine action for approval routing.
func approvalAction(action OptimizationAction) approval.Action {
	return approval.Action{
		ID:               action.ID,
		ResourceID:       action.ResourceID,
		ResourceType:     action.ResourceType,
		OperationKind:    action.OperationKind,
		CurrentCost:      action.CurrentCost,
		EstimatedSavings: action.EstimatedSavings,
		Metadata:         action.Metadata,
	}
}

// policyInput converts an engine action for guardrail evaluation.
func policyInput(action OptimizationAction, force bool) *policy.ActionInput {
	return &policy.ActionInput{
		ActionID:         action.ID,
		Operation:        action.OperationKind,
		ResourceID:       action.ResourceID,
		ResourceType:     action.ResourceType,
		Region:           action.Region,
		Tags:             action.Metadata.Tags,
		EstimatedSavings: action.EstimatedSavings,
		CurrentCost:      action.CurrentCost,
		Force:            force,
	}
}

// guardrailMessage flattens violations into one rejection message.
func guardrailMessage(violations []policy.Violation) string {
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return "guardrail violation: " + strings.Join(msgs, "; ")
}

// environmentOf guesses the environment from resource tags.
func environmentOf(tags map[string]string) string {
	for key, value := range tags {
		lowered := strings.ToLower(key)
		if lowered == "environment" || lowered == "env" {
			return strings.ToLower(value)
		}
	}
	return ""
}

// actualSavings pulls the realized savings from the mutation details,
// falling back to the estimate.
func actualSavings(mutation *MutationResult, estimated float64) float64 {
	if mutation == nil {
		return estimated
	}
	if actual, ok := mutation.Details["actual_savings"].(float64); ok {
		return actual
	}
	return estimated
}
