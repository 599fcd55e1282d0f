package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
	"github.com/costwarden/costwarden/pkg/telemetry"
)

// MaxAutoEscalations caps how many times the timeout sweep may raise a
// workflow's authority before letting it expire. Inherited behavior; the
// cap is configurable in spirit but has always been two.
const MaxAutoEscalations = 2

// autoEscalationSavingsFloor is the estimated savings above which a
// timed-out workflow is worth escalating instead of expiring.
const autoEscalationSavingsFloor = 5000

// ManagerConfig tunes the approval workflow manager.
type ManagerConfig struct {
	// Routing holds the risk-to-authority routing rules.
	Routing RoutingConfig

	// EscalationExtension is the fixed timeout increment added on every
	// escalation.
	EscalationExtension time.Duration

	// SweepInterval is how often Run checks for timed-out workflows.
	SweepInterval time.Duration

	// Recipients receive workflow lifecycle notifications.
	Recipients []string
}

// DefaultManagerConfig returns the stock manager settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Routing:             DefaultRoutingConfig(),
		EscalationExtension: 24 * time.Hour,
		SweepInterval:       5 * time.Minute,
	}
}

// Manager is the approval workflow state machine. Workflows are persisted
// in the store; the in-memory view is rehydrated per call so concurrent
// batch workers never share mutable workflow structs.
type Manager struct {
	cfg      ManagerConfig
	store    stores.Store
	assessor *safety.Assessor
	notifier Notifier
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
	logger   zerolog.Logger

	// now is swapped in tests to drive timeout behavior.
	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewManager creates an approval workflow manager. A nil notifier falls
// back to the log-backed sink; metrics and events may be nil.
func NewManager(cfg ManagerConfig, store stores.Store, assessor *safety.Assessor, notifier Notifier, metrics *telemetry.Metrics, events *telemetry.EventPublisher, logger zerolog.Logger) *Manager {
	def := DefaultManagerConfig()
	if cfg.EscalationExtension <= 0 {
		cfg.EscalationExtension = def.EscalationExtension
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Routing.SavingsThresholds == nil {
		cfg.Routing = DefaultRoutingConfig()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		assessor: assessor,
		notifier: notifier,
		metrics:  metrics,
		events:   events,
		logger:   logger.With().Str("component", "approval-manager").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// CreateWorkflow routes an action through risk assessment and requirement
// derivation, builds the approval steps, and persists the new workflow.
// Auto-approval-eligible actions transition straight to APPROVED.
func (m *Manager) CreateWorkflow(ctx context.Context, action Action, requester string) (*Workflow, error) {
	risk := m.assessor.AssessRisk(action.OperationKind, action.Metadata)
	req := DeriveRequirement(m.cfg.Routing, risk, action)

	now := m.now().UTC()
	expires := now.Add(req.Timeout)

	wf := &Workflow{
		ID:          uuid.New().String(),
		ActionID:    action.ID,
		Action:      action,
		State:       stores.WorkflowStateCreated,
		Risk:        risk,
		Requirement: req,
		Requester:   requester,
		ExpiresAt:   &expires,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.AutoApprovalEligible {
		decided := now
		wf.Steps = []WorkflowStep{{
			Name:      "auto-approval",
			Authority: AuthoritySystem,
			Status:    StepApproved,
			Approver:  "system",
			DecidedAt: &decided,
		}}
		wf.State = stores.WorkflowStateApproved
		wf.AutoApproved = true
	} else {
		wf.Steps = []WorkflowStep{{
			Name:      fmt.Sprintf("%s approval", wf.Requirement.Authority),
			Authority: wf.Requirement.Authority,
			Status:    StepPending,
		}}
		if req.RequiresRollbackReview {
			wf.Steps = append(wf.Steps, WorkflowStep{
				Name:      "rollback plan review",
				Authority: AuthorityEngineer,
				Status:    StepPending,
			})
		}
		wf.State = stores.WorkflowStateAwaitingApproval
	}

	row, err := toRow(wf)
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateWorkflow(ctx, row); err != nil {
		return nil, err
	}

	if req.RequiresNotification {
		m.notifier.Notify(ctx, wf.ID, NotifyCreated, m.cfg.Recipients)
	}
	m.observe(ctx, wf, telemetry.EventTypeWorkflowCreated,
		fmt.Sprintf("created for action %s at %s authority", action.ID, req.Authority))
	if wf.AutoApproved {
		m.notifier.Notify(ctx, wf.ID, NotifyApproved, m.cfg.Recipients)
		m.observe(ctx, wf, telemetry.EventTypeWorkflowApproved, "auto-approved")
	}

	m.logger.Info().
		Str("workflow_id", wf.ID).
		Str("action_id", action.ID).
		Str("risk_level", string(risk.Level)).
		Str("authority", string(req.Authority)).
		Bool("auto_approved", wf.AutoApproved).
		Msg("Workflow created")

	return wf, nil
}

// GetWorkflow loads a workflow and opportunistically applies timeout
// handling, so a status read never reports a stale pending state.
func (m *Manager) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	wf, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	if wf.Pending() && wf.Expired(m.now().UTC()) {
		if err := m.handleTimeout(ctx, wf); err != nil {
			return nil, err
		}
	}

	return wf, nil
}

// ListWorkflows lists workflows, optionally filtered by state.
func (m *Manager) ListWorkflows(ctx context.Context, state *stores.WorkflowState, includeArchived bool, limit, offset int) ([]*Workflow, error) {
	rows, err := m.store.ListWorkflows(ctx, state, includeArchived, limit, offset)
	if err != nil {
		return nil, err
	}

	workflows := make([]*Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// SubmitApproval records an approver's decision on the workflow's pending
// step. Expected control-flow failures (unknown workflow, invalid
// decision, expired or non-pending workflow) come back as an unsuccessful
// DecisionResult; the error is reserved for store faults.
func (m *Manager) SubmitApproval(ctx context.Context, workflowID, approver string, decision Decision, comments string) (*DecisionResult, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return &DecisionResult{Success: false, Message: fmt.Sprintf("invalid decision: %s", decision)}, nil
	}

	row, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return &DecisionResult{Success: false, Message: fmt.Sprintf("workflow not found: %s", workflowID)}, nil
	}
	wf, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	if !wf.Pending() {
		return &DecisionResult{Success: false, Message: fmt.Sprintf("workflow is %s and no longer accepts decisions", wf.State), State: wf.State}, nil
	}

	now := m.now().UTC()
	if wf.Expired(now) {
		if err := m.handleTimeout(ctx, wf); err != nil {
			return nil, err
		}
		// The timeout sweep may have escalated the workflow rather than
		// expired it; tell the approver what actually happened.
		if wf.Pending() {
			return &DecisionResult{
				Success: false,
				Message: fmt.Sprintf("workflow timed out and was escalated to %s; resubmit under the new authority", wf.Requirement.Authority),
				State:   wf.State,
			}, nil
		}
		return &DecisionResult{Success: false, Message: "workflow has expired", State: wf.State}, nil
	}

	idx := wf.pendingStep()
	if idx < 0 {
		return &DecisionResult{Success: false, Message: "workflow has no pending step", State: wf.State}, nil
	}

	step := &wf.Steps[idx]
	step.Approver = approver
	step.Comments = comments
	step.DecidedAt = &now

	switch decision {
	case DecisionApprove:
		step.Status = StepApproved
		if wf.pendingStep() < 0 {
			wf.State = stores.WorkflowStateApproved
		} else {
			wf.State = stores.WorkflowStateAwaitingApproval
		}
	case DecisionReject:
		step.Status = StepRejected
		wf.State = stores.WorkflowStateRejected
		wf.Archived = true
	}
	wf.UpdatedAt = now

	if err := m.persist(ctx, wf); err != nil {
		return nil, err
	}
	if wf.Archived {
		if err := m.store.ArchiveWorkflow(ctx, wf.ID); err != nil {
			return nil, err
		}
	}

	switch wf.State {
	case stores.WorkflowStateApproved:
		m.notifier.Notify(ctx, wf.ID, NotifyApproved, m.cfg.Recipients)
		m.observe(ctx, wf, telemetry.EventTypeWorkflowApproved, fmt.Sprintf("approved by %s", approver))
	case stores.WorkflowStateRejected:
		m.notifier.Notify(ctx, wf.ID, NotifyRejected, m.cfg.Recipients)
		m.observe(ctx, wf, telemetry.EventTypeWorkflowRejected, fmt.Sprintf("rejected by %s", approver))
	}

	m.logger.Info().
		Str("workflow_id", wf.ID).
		Str("approver", approver).
		Str("decision", string(decision)).
		Str("state", string(wf.State)).
		Msg("Approval decision recorded")

	return &DecisionResult{Success: true, State: wf.State}, nil
}

// EscalateWorkflow raises the pending workflow's authority one rung and
// extends its deadline. A workflow already at EXECUTIVE, or one that is no
// longer pending, fails with a structured result.
func (m *Manager) EscalateWorkflow(ctx context.Context, workflowID, reason, escalatedBy string) (*EscalationResult, error) {
	row, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return &EscalationResult{Success: false, Message: fmt.Sprintf("workflow not found: %s", workflowID)}, nil
	}
	wf, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	if !wf.Pending() {
		return &EscalationResult{Success: false, Message: fmt.Sprintf("workflow is %s and cannot be escalated", wf.State)}, nil
	}

	next, ok := NextAuthority(wf.Requirement.Authority)
	if !ok {
		return &EscalationResult{Success: false, Message: "workflow is already at EXECUTIVE authority"}, nil
	}

	now := m.now().UTC()
	previous := wf.Requirement.Authority
	wf.Requirement.Authority = next

	// The deadline always moves strictly forward.
	extended := now.Add(m.cfg.EscalationExtension)
	if wf.ExpiresAt != nil && wf.ExpiresAt.After(now) {
		extended = wf.ExpiresAt.Add(m.cfg.EscalationExtension)
	}
	wf.ExpiresAt = &extended

	if idx := wf.pendingStep(); idx >= 0 {
		wf.Steps[idx].Name = fmt.Sprintf("%s approval (escalated)", next)
		wf.Steps[idx].Authority = next
	}

	wf.History = append(wf.History, EscalationEntry{
		From:        previous,
		To:          next,
		Reason:      reason,
		EscalatedBy: escalatedBy,
		At:          now,
	})
	wf.UpdatedAt = now

	if err := m.persist(ctx, wf); err != nil {
		return nil, err
	}

	m.notifier.Notify(ctx, wf.ID, NotifyEscalated, m.cfg.Recipients)
	m.observe(ctx, wf, telemetry.EventTypeWorkflowEscalated,
		fmt.Sprintf("escalated from %s to %s", previous, next))

	m.logger.Info().
		Str("workflow_id", wf.ID).
		Str("from", string(previous)).
		Str("to", string(next)).
		Str("reason", reason).
		Time("expires_at", extended).
		Msg("Workflow escalated")

	return &EscalationResult{Success: true, Authority: next, ExpiresAt: &extended}, nil
}

// CancelWorkflow moves a non-terminal workflow to CANCELLED.
func (m *Manager) CancelWorkflow(ctx context.Context, workflowID, reason string) (*DecisionResult, error) {
	row, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return &DecisionResult{Success: false, Message: fmt.Sprintf("workflow not found: %s", workflowID)}, nil
	}
	wf, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	switch wf.State {
	case stores.WorkflowStateCompleted, stores.WorkflowStateRejected, stores.WorkflowStateExpired, stores.WorkflowStateCancelled:
		return &DecisionResult{Success: false, Message: fmt.Sprintf("workflow is %s and cannot be cancelled", wf.State), State: wf.State}, nil
	}

	wf.State = stores.WorkflowStateCancelled
	wf.Archived = true
	wf.UpdatedAt = m.now().UTC()

	if err := m.persist(ctx, wf); err != nil {
		return nil, err
	}
	if err := m.store.ArchiveWorkflow(ctx, wf.ID); err != nil {
		return nil, err
	}

	m.observe(ctx, wf, telemetry.EventTypeWorkflowCancelled, reason)
	m.logger.Info().Str("workflow_id", wf.ID).Str("reason", reason).Msg("Workflow cancelled")
	return &DecisionResult{Success: true, State: wf.State}, nil
}

// MarkExecuted transitions an APPROVED workflow to EXECUTED.
func (m *Manager) MarkExecuted(ctx context.Context, workflowID string) error {
	return m.transition(ctx, workflowID, stores.WorkflowStateApproved, stores.WorkflowStateExecuted)
}

// MarkCompleted transitions an EXECUTED workflow to COMPLETED and archives
// it.
func (m *Manager) MarkCompleted(ctx context.Context, workflowID string) error {
	if err := m.transition(ctx, workflowID, stores.WorkflowStateExecuted, stores.WorkflowStateCompleted); err != nil {
		return err
	}
	return m.store.ArchiveWorkflow(ctx, workflowID)
}

// transition moves a workflow from one expected state to another.
func (m *Manager) transition(ctx context.Context, workflowID string, from, to stores.WorkflowState) error {
	row, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	wf, err := fromRow(row)
	if err != nil {
		return err
	}

	if wf.State != from {
		return fmt.Errorf("workflow %s is %s, expected %s", workflowID, wf.State, from)
	}

	wf.State = to
	wf.UpdatedAt = m.now().UTC()
	if err := m.persist(ctx, wf); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordWorkflowTransition(string(to))
	}
	return nil
}

// CheckTimeouts sweeps pending workflows whose deadline has passed. A
// timed-out workflow is auto-escalated when it still has escalations left,
// a higher authority exists, and either the risk or the savings justify
// keeping it alive; otherwise it expires.
func (m *Manager) CheckTimeouts(ctx context.Context) (*SweepResult, error) {
	now := m.now().UTC()
	rows, err := m.store.ListExpirableWorkflows(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Checked: len(rows)}
	for _, row := range rows {
		wf, err := fromRow(row)
		if err != nil {
			m.logger.Error().Err(err).Str("workflow_id", row.ID).Msg("Skipping undecodable workflow")
			continue
		}

		escalated, err := m.timeoutDisposition(ctx, wf)
		if err != nil {
			return nil, err
		}
		if escalated {
			result.Escalated++
		} else {
			result.Expired++
		}
	}

	if result.Checked > 0 {
		m.logger.Info().
			Int("checked", result.Checked).
			Int("escalated", result.Escalated).
			Int("expired", result.Expired).
			Msg("Timeout sweep complete")
	}

	return result, nil
}

// handleTimeout applies the sweep disposition to one workflow in place.
func (m *Manager) handleTimeout(ctx context.Context, wf *Workflow) error {
	_, err := m.timeoutDisposition(ctx, wf)
	return err
}

// timeoutDisposition escalates or expires one timed-out workflow and
// reports whether it escalated. wf is updated in place.
func (m *Manager) timeoutDisposition(ctx context.Context, wf *Workflow) (bool, error) {
	if m.shouldAutoEscalate(wf) {
		result, err := m.EscalateWorkflow(ctx, wf.ID, "approval timeout", "system")
		if err != nil {
			return false, err
		}
		if result.Success {
			if row, loadErr := m.store.GetWorkflow(ctx, wf.ID); loadErr == nil {
				if fresh, decodeErr := fromRow(row); decodeErr == nil {
					*wf = *fresh
				}
			}
			return true, nil
		}
	}

	wf.State = stores.WorkflowStateExpired
	wf.Archived = true
	wf.UpdatedAt = m.now().UTC()

	if err := m.persist(ctx, wf); err != nil {
		return false, err
	}
	if err := m.store.ArchiveWorkflow(ctx, wf.ID); err != nil {
		return false, err
	}

	m.notifier.Notify(ctx, wf.ID, NotifyExpired, m.cfg.Recipients)
	m.observe(ctx, wf, telemetry.EventTypeWorkflowExpired, "approval deadline passed")
	m.logger.Info().Str("workflow_id", wf.ID).Msg("Workflow expired")
	return false, nil
}

// shouldAutoEscalate decides whether a timed-out workflow earns another
// round at a higher authority instead of expiring.
func (m *Manager) shouldAutoEscalate(wf *Workflow) bool {
	if wf.Escalations() >= MaxAutoEscalations {
		return false
	}
	if _, ok := NextAuthority(wf.Requirement.Authority); !ok {
		return false
	}
	return wf.Risk.Level.AtLeast(safety.RiskHigh) || wf.Action.EstimatedSavings >= autoEscalationSavingsFloor
}

// Run drives the periodic timeout sweep until Stop is called or the
// context ends.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := m.CheckTimeouts(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Timeout sweep failed")
			}
		}
	}
}

// Stop halts the periodic sweep and waits for it to wind down. Run must
// have been started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// persist writes the workflow's current state back to the store.
func (m *Manager) persist(ctx context.Context, wf *Workflow) error {
	row, err := toRow(wf)
	if err != nil {
		return err
	}
	return m.store.UpdateWorkflow(ctx, row)
}

// observe records a workflow state transition on the metrics and event
// surfaces.
func (m *Manager) observe(ctx context.Context, wf *Workflow, eventType, detail string) {
	if m.metrics != nil {
		m.metrics.RecordWorkflowTransition(string(wf.State))
	}
	if m.events != nil {
		m.events.PublishWorkflowTransition(wf.ID, eventType, detail)
	}
	m.refreshActiveGauge(ctx)
}

// refreshActiveGauge updates the pending-workflow gauge. Best effort; a
// failed count never fails the transition it follows.
func (m *Manager) refreshActiveGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	state := stores.WorkflowStateAwaitingApproval
	rows, err := m.store.ListWorkflows(ctx, &state, false, 10000, 0)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to count pending workflows")
		return
	}
	m.metrics.SetActiveWorkflows(float64(len(rows)))
}

// ApprovedWorkflowForAction finds the non-archived APPROVED workflow for
// an action, if one exists. A re-run of an action that was approved out
// of band consumes that grant instead of opening a second workflow.
func (m *Manager) ApprovedWorkflowForAction(ctx context.Context, actionID string) (*Workflow, error) {
	if actionID == "" {
		return nil, nil
	}
	row, err := m.store.GetWorkflowByAction(ctx, actionID, stores.WorkflowStateApproved)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return fromRow(row)
}

// workflowDetail is the JSON document stored alongside the workflow row's
// indexed columns.
type workflowDetail struct {
	Steps       []WorkflowStep        `json:"steps"`
	History     []EscalationEntry     `json:"history,omitempty"`
	Requirement ApprovalRequirement   `json:"requirement"`
	Requester   string                `json:"requester"`
	Risk        safety.RiskAssessment `json:"risk"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
}

// toRow serializes a workflow for persistence.
func toRow(wf *Workflow) (*stores.WorkflowRow, error) {
	detail, err := json.Marshal(workflowDetail{
		Steps:       wf.Steps,
		History:     wf.History,
		Requirement: wf.Requirement,
		Requester:   wf.Requester,
		Risk:        wf.Risk,
		ExpiresAt:   wf.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow detail: %w", err)
	}

	action, err := json.Marshal(wf.Action)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow action: %w", err)
	}

	return &stores.WorkflowRow{
		ID:                wf.ID,
		ActionID:          wf.ActionID,
		State:             wf.State,
		RiskLevel:         string(wf.Risk.Level),
		RequiredAuthority: string(wf.Requirement.Authority),
		AutoApproved:      wf.AutoApproved,
		Escalations:       len(wf.History),
		Steps:             string(detail),
		Action:            string(action),
		ExpiresAt:         wf.ExpiresAt,
		Archived:          wf.Archived,
		CreatedAt:         wf.CreatedAt,
		UpdatedAt:         wf.UpdatedAt,
	}, nil
}

// fromRow rehydrates a workflow from its persisted form.
func fromRow(row *stores.WorkflowRow) (*Workflow, error) {
	var detail workflowDetail
	if err := json.Unmarshal([]byte(row.Steps), &detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow detail: %w", err)
	}

	var action Action
	if err := json.Unmarshal([]byte(row.Action), &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow action: %w", err)
	}

	return &Workflow{
		ID:           row.ID,
		ActionID:     row.ActionID,
		Action:       action,
		State:        row.State,
		Risk:         detail.Risk,
		Requirement:  detail.Requirement,
		Requester:    detail.Requester,
		AutoApproved: row.AutoApproved,
		Steps:        detail.Steps,
		History:      detail.History,
		ExpiresAt:    row.ExpiresAt,
		Archived:     row.Archived,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
