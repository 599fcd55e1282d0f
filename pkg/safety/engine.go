package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/resilience"
	"github.com/costwarden/costwarden/pkg/stores"
)

// ValidationStatus is the outcome of a validated operation.
type ValidationStatus string

const (
	// StatusExecuted means the mutation completed.
	StatusExecuted ValidationStatus = "EXECUTED"

	// StatusFailed means the mutation raised an error.
	StatusFailed ValidationStatus = "FAILED"

	// StatusRequiresApproval means the operation's risk demands an approval
	// workflow before it may execute.
	StatusRequiresApproval ValidationStatus = "REQUIRES_APPROVAL"
)

// MutatingFunc performs the actual external mutation. The pipeline never
// constructs provider-specific calls itself.
type MutatingFunc func(ctx context.Context) error

// RollbackInvoker performs one reversal step against the provider.
type RollbackInvoker func(ctx context.Context, step RollbackStep) error

// ValidationRequest describes one operation to validate and execute.
type ValidationRequest struct {
	// OperationID correlates the validation with an execution record.
	OperationID string

	// OperationKind is the mutation kind, e.g. "resize_instance".
	OperationKind string

	// ResourceID identifies the target resource.
	ResourceID string

	// ResourceType is the service family used for rate limiting and
	// circuit breaking, e.g. "compute".
	ResourceType string

	// Metadata describes the target resource.
	Metadata ResourceMetadata

	// PreApproved indicates an approval workflow already cleared this
	// operation.
	PreApproved bool
}

// ValidationResult is the structured outcome of ValidateOperation.
type ValidationResult struct {
	Status         ValidationStatus   `json:"status"`
	Risk           RiskAssessment     `json:"risk"`
	Capability     RollbackCapability `json:"capability"`
	RollbackPlanID string             `json:"rollback_plan_id,omitempty"`
	Message        string             `json:"message,omitempty"`
	Err            error              `json:"-"`
}

// RollbackResult is the structured outcome of ExecuteRollback.
type RollbackResult struct {
	PlanID         string `json:"plan_id"`
	Success        bool   `json:"success"`
	StepsCompleted int    `json:"steps_completed"`
	FailedStep     int    `json:"failed_step"` // -1 when no step failed
	Message        string `json:"message,omitempty"`
}

// Engine is the safety and rollback engine. It risk-scores mutating
// operations, gates the dangerous ones behind approval, registers rollback
// plans before mutations run, and replays those plans on demand. Every
// validated operation lands in the append-only audit log.
type Engine struct {
	assessor *Assessor
	recovery *resilience.RecoveryManager
	store    stores.Store
	logger   zerolog.Logger
}

// NewEngine creates a safety engine.
func NewEngine(assessor *Assessor, recovery *resilience.RecoveryManager, store stores.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		assessor: assessor,
		recovery: recovery,
		store:    store,
		logger:   logger.With().Str("component", "safety-engine").Logger(),
	}
}

// RequiresApproval reports whether a risk level demands an approval
// workflow before execution.
func RequiresApproval(level RiskLevel) bool {
	return level.AtLeast(RiskHigh)
}

// AssessRisk exposes the engine's risk scoring.
func (e *Engine) AssessRisk(operationKind string, meta ResourceMetadata) RiskAssessment {
	return e.assessor.AssessRisk(operationKind, meta)
}

// ValidateOperation runs the full safety flow for one operation: risk
// scoring, the approval gate, rollback plan registration, and finally the
// mutation itself through the resilience layer. A HIGH or CRITICAL risk
// without pre-approval returns a REQUIRES_APPROVAL result without
// executing. The returned error is reserved for infrastructure faults;
// expected outcomes are reported through the result status.
func (e *Engine) ValidateOperation(ctx context.Context, req ValidationRequest, fn MutatingFunc) (*ValidationResult, error) {
	risk := e.assessor.AssessRisk(req.OperationKind, req.Metadata)
	capability := CapabilityFor(req.OperationKind)

	result := &ValidationResult{
		Risk:       risk,
		Capability: capability,
	}

	if RequiresApproval(risk.Level) && !req.PreApproved {
		result.Status = StatusRequiresApproval
		result.Message = fmt.Sprintf("operation %s on %s is %s risk and requires approval", req.OperationKind, req.ResourceID, risk.Level)

		e.audit(ctx, "operation.gated", req, risk, "", string(StatusRequiresApproval))
		return result, nil
	}

	if capability != RollbackNone {
		plan := SynthesizePlan(req.OperationID, req.ResourceID, req.OperationKind, req.Metadata)
		if err := e.RegisterPlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("failed to register rollback plan: %w", err)
		}
		result.RollbackPlanID = plan.ID
	}

	err := e.recovery.Execute(ctx, req.ResourceType, operationName(req), fn)
	if err != nil {
		result.Status = StatusFailed
		result.Message = err.Error()
		result.Err = err

		e.audit(ctx, "operation.failed", req, risk, result.RollbackPlanID, string(StatusFailed))
		return result, nil
	}

	result.Status = StatusExecuted

	e.audit(ctx, "operation.executed", req, risk, result.RollbackPlanID, string(StatusExecuted))
	return result, nil
}

// RegisterPlan persists a rollback plan before its mutation runs.
func (e *Engine) RegisterPlan(ctx context.Context, plan *RollbackPlan) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal rollback steps: %w", err)
	}

	row := &stores.RollbackPlanRow{
		ID:          plan.ID,
		ExecutionID: plan.ExecutionID,
		ResourceID:  plan.ResourceID,
		PlanType:    string(plan.Capability),
		Steps:       string(stepsJSON),
		Status:      stores.RollbackStatusRegistered,
		CreatedAt:   plan.CreatedAt,
	}

	if err := e.store.CreateRollbackPlan(ctx, row); err != nil {
		return err
	}

	e.logger.Info().
		Str("plan_id", plan.ID).
		Str("resource_id", plan.ResourceID).
		Str("capability", string(plan.Capability)).
		Int("steps", len(plan.Steps)).
		Msg("Rollback plan registered")

	return nil
}

// GetPlan loads a registered rollback plan.
func (e *Engine) GetPlan(ctx context.Context, planID string) (*RollbackPlan, error) {
	row, err := e.store.GetRollbackPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	var steps []RollbackStep
	if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rollback steps: %w", err)
	}

	return &RollbackPlan{
		ID:          row.ID,
		ExecutionID: row.ExecutionID,
		ResourceID:  row.ResourceID,
		Capability:  RollbackCapability(row.PlanType),
		Steps:       steps,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// ExecuteRollback replays a registered plan's steps in order. The plan is
// pre-ordered as the logical reverse of the original mutation. The first
// failing step halts the replay and marks the plan FAILED; a failed
// rollback is terminal and must be escalated to an operator, never
// auto-retried.
func (e *Engine) ExecuteRollback(ctx context.Context, planID string, invoker RollbackInvoker) (*RollbackResult, error) {
	plan, err := e.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	result := &RollbackResult{
		PlanID:     planID,
		FailedStep: -1,
	}

	for i, step := range plan.Steps {
		stepCopy := step
		err := e.recovery.Execute(ctx, "rollback", fmt.Sprintf("rollback:%s:%d", planID, i), func(ctx context.Context) error {
			return invoker(ctx, stepCopy)
		})
		if err != nil {
			result.Success = false
			result.FailedStep = i
			result.Message = fmt.Sprintf("rollback step %d (%s) failed: %v", i, step.Operation, err)

			msg := result.Message
			if updateErr := e.store.UpdateRollbackPlanStatus(ctx, planID, stores.RollbackStatusFailed, &msg); updateErr != nil {
				e.logger.Error().Err(updateErr).Str("plan_id", planID).Msg("Failed to record rollback failure")
			}

			e.logger.Error().
				Str("plan_id", planID).
				Int("failed_step", i).
				Str("operation", step.Operation).
				Msg("Rollback halted; operator escalation required")

			return result, nil
		}
		result.StepsCompleted++
	}

	result.Success = true
	if err := e.store.UpdateRollbackPlanStatus(ctx, planID, stores.RollbackStatusExecuted, nil); err != nil {
		e.logger.Error().Err(err).Str("plan_id", planID).Msg("Failed to record rollback success")
	}

	e.logger.Info().
		Str("plan_id", planID).
		Int("steps", result.StepsCompleted).
		Msg("Rollback executed")

	return result, nil
}

// ExportAudit returns the audit trail joined with the operation history
// and rollback plans as a structured document for downstream reporting.
// limit bounds both the audit entries and the executions included.
func (e *Engine) ExportAudit(ctx context.Context, limit int) (map[string]interface{}, error) {
	if limit <= 0 {
		limit = 1000
	}

	entries, err := e.store.ListAuditEntries(ctx, nil, nil, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	executions, err := e.store.ListExecutions(ctx, nil, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	history := make([]map[string]interface{}, 0, len(executions))
	for _, row := range executions {
		plans, err := e.store.ListRollbackPlans(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list rollback plans for execution %s: %w", row.ID, err)
		}
		history = append(history, map[string]interface{}{
			"execution":      row,
			"rollback_plans": plans,
		})
	}

	return map[string]interface{}{
		"generated_at": time.Now().UTC(),
		"entries":      entries,
		"executions":   history,
	}, nil
}

// operationName builds the recovery-state key for an operation.
func operationName(req ValidationRequest) string {
	return fmt.Sprintf("%s:%s", req.OperationKind, req.ResourceID)
}

// audit appends one entry to the append-only audit log. Audit failures are
// logged but never fail the operation they describe.
func (e *Engine) audit(ctx context.Context, action string, req ValidationRequest, risk RiskAssessment, planID, status string) {
	details, _ := json.Marshal(map[string]interface{}{
		"operation_kind":   req.OperationKind,
		"resource_id":      req.ResourceID,
		"risk_level":       risk.Level,
		"risk_factors":     risk.Factors,
		"rollback_plan_id": planID,
		"status":           status,
	})
	detailsStr := string(details)
	target := req.OperationID

	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     "safety-engine",
		TargetID:  &target,
		Details:   &detailsStr,
		Timestamp: time.Now().UTC(),
	}

	if err := e.store.CreateAuditEntry(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}
