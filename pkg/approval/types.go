package approval

import (
	"time"

	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
)

// Authority is the role required to approve an action. The ladder is
// strictly ordered: SYSTEM < ENGINEER < MANAGER < DIRECTOR < EXECUTIVE.
type Authority string

const (
	AuthoritySystem    Authority = "SYSTEM"
	AuthorityEngineer  Authority = "ENGINEER"
	AuthorityManager   Authority = "MANAGER"
	AuthorityDirector  Authority = "DIRECTOR"
	AuthorityExecutive Authority = "EXECUTIVE"
)

// authorityRank orders the ladder for comparisons.
func authorityRank(a Authority) int {
	switch a {
	case AuthoritySystem:
		return 0
	case AuthorityEngineer:
		return 1
	case AuthorityManager:
		return 2
	case AuthorityDirector:
		return 3
	case AuthorityExecutive:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether a sits at or above threshold on the ladder.
func (a Authority) AtLeast(threshold Authority) bool {
	return authorityRank(a) >= authorityRank(threshold)
}

// NextAuthority returns the next rung up the ladder, or false when already
// at EXECUTIVE.
func NextAuthority(a Authority) (Authority, bool) {
	switch a {
	case AuthoritySystem:
		return AuthorityEngineer, true
	case AuthorityEngineer:
		return AuthorityManager, true
	case AuthorityManager:
		return AuthorityDirector, true
	case AuthorityDirector:
		return AuthorityExecutive, true
	default:
		return a, false
	}
}

// maxAuthority returns the higher of two rungs.
func maxAuthority(a, b Authority) Authority {
	if authorityRank(b) > authorityRank(a) {
		return b
	}
	return a
}

// Decision is an approver's verdict on a pending step.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// StepStatus tracks one workflow step's outcome.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

// WorkflowStep is one approval gate inside a workflow.
type WorkflowStep struct {
	Name      string     `json:"name"`
	Authority Authority  `json:"authority"`
	Status    StepStatus `json:"status"`
	Approver  string     `json:"approver,omitempty"`
	Comments  string     `json:"comments,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// EscalationEntry records one authority raise in a workflow's history.
type EscalationEntry struct {
	From        Authority `json:"from"`
	To          Authority `json:"to"`
	Reason      string    `json:"reason"`
	EscalatedBy string    `json:"escalated_by"`
	At          time.Time `json:"at"`
}

// ApprovalRequirement is the routing outcome for one action: who must
// approve, how long they have, and what the approval must include.
type ApprovalRequirement struct {
	Authority              Authority     `json:"authority"`
	Timeout                time.Duration `json:"timeout"`
	RequiresJustification  bool          `json:"requires_justification"`
	RequiresRollbackReview bool          `json:"requires_rollback_review"`
	RequiresNotification   bool          `json:"requires_notification"`
	AutoApprovalEligible   bool          `json:"auto_approval_eligible"`
	AutoApprovalCeiling    float64       `json:"auto_approval_ceiling"`
}

// Action is the optimization action submitted for approval routing.
type Action struct {
	ID               string                  `json:"id"`
	ResourceID       string                  `json:"resource_id"`
	ResourceType     string                  `json:"resource_type"`
	OperationKind    string                  `json:"operation_kind"`
	CurrentCost      float64                 `json:"current_cost"`
	EstimatedSavings float64                 `json:"estimated_savings"`
	Metadata         safety.ResourceMetadata `json:"metadata"`
}

// Workflow is the in-memory view of one approval workflow.
type Workflow struct {
	ID           string                `json:"id"`
	ActionID     string                `json:"action_id"`
	Action       Action                `json:"action"`
	State        stores.WorkflowState  `json:"state"`
	Risk         safety.RiskAssessment `json:"risk"`
	Requirement  ApprovalRequirement   `json:"requirement"`
	Requester    string                `json:"requester"`
	AutoApproved bool                  `json:"auto_approved"`
	Steps        []WorkflowStep        `json:"steps"`
	History      []EscalationEntry     `json:"history,omitempty"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	Archived     bool                  `json:"archived"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Escalations returns the number of authority raises so far.
func (w *Workflow) Escalations() int {
	return len(w.History)
}

// Pending reports whether the workflow still awaits a decision.
func (w *Workflow) Pending() bool {
	switch w.State {
	case stores.WorkflowStateCreated, stores.WorkflowStateUnderReview, stores.WorkflowStateAwaitingApproval:
		return true
	default:
		return false
	}
}

// Expired reports whether the workflow's deadline has passed as of now.
func (w *Workflow) Expired(now time.Time) bool {
	return w.ExpiresAt != nil && !now.Before(*w.ExpiresAt)
}

// pendingStep returns the first undecided step, or -1.
func (w *Workflow) pendingStep() int {
	for i := range w.Steps {
		if w.Steps[i].Status == StepPending {
			return i
		}
	}
	return -1
}

// DecisionResult is the structured outcome of SubmitApproval. Expected
// control-flow failures (unknown workflow, invalid decision, expired
// workflow) land here rather than in an error.
type DecisionResult struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	State   stores.WorkflowState `json:"state,omitempty"`
}

// EscalationResult is the structured outcome of EscalateWorkflow.
type EscalationResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Authority Authority  `json:"authority,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SweepResult summarizes one timeout sweep.
type SweepResult struct {
	Checked   int `json:"checked"`
	Escalated int `json:"escalated"`
	Expired   int `json:"expired"`
}
