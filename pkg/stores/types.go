package stores

import (
	"context"
	"time"
)

// ExecutionStatus represents the status of an execution record
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "PENDING"
	ExecutionStatusScheduled  ExecutionStatus = "SCHEDULED"
	ExecutionStatusExecuting  ExecutionStatus = "EXECUTING"
	ExecutionStatusCompleted  ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed     ExecutionStatus = "FAILED"
	ExecutionStatusRolledBack ExecutionStatus = "ROLLED_BACK"
	ExecutionStatusCancelled  ExecutionStatus = "CANCELLED"
)

// WorkflowState represents the state of an approval workflow
type WorkflowState string

const (
	WorkflowStateCreated          WorkflowState = "CREATED"
	WorkflowStateUnderReview      WorkflowState = "UNDER_REVIEW"
	WorkflowStateAwaitingApproval WorkflowState = "AWAITING_APPROVAL"
	WorkflowStateApproved         WorkflowState = "APPROVED"
	WorkflowStateRejected         WorkflowState = "REJECTED"
	WorkflowStateExecuted         WorkflowState = "EXECUTED"
	WorkflowStateCompleted        WorkflowState = "COMPLETED"
	WorkflowStateCancelled        WorkflowState = "CANCELLED"
	WorkflowStateExpired          WorkflowState = "EXPIRED"
)

// RollbackStatus represents the status of a rollback plan
type RollbackStatus string

const (
	RollbackStatusRegistered RollbackStatus = "REGISTERED"
	RollbackStatusExecuted   RollbackStatus = "EXECUTED"
	RollbackStatusFailed     RollbackStatus = "FAILED"
)

// ExecutionRow represents a persisted execution record
type ExecutionRow struct {
	ID               string          `json:"id"`
	ActionID         string          `json:"action_id"`
	ResourceID       string          `json:"resource_id"`
	ResourceType     string          `json:"resource_type"`
	Operation        string          `json:"operation"`
	Mode             string          `json:"mode"` // DRY_RUN or LIVE
	Status           ExecutionStatus `json:"status"`
	WorkflowID       *string         `json:"workflow_id,omitempty"`
	RollbackPlanID   *string         `json:"rollback_plan_id,omitempty"`
	Attempts         int             `json:"attempts"`
	EstimatedSavings float64         `json:"estimated_savings"`
	ActualSavings    *float64        `json:"actual_savings,omitempty"`
	Result           *string         `json:"result,omitempty"` // JSON blob
	Error            *string         `json:"error,omitempty"`
	ScheduledAt      *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// WorkflowRow represents a persisted approval workflow
type WorkflowRow struct {
	ID                string        `json:"id"`
	ActionID          string        `json:"action_id"`
	State             WorkflowState `json:"state"`
	RiskLevel         string        `json:"risk_level"`
	RequiredAuthority string        `json:"required_authority"`
	AutoApproved      bool          `json:"auto_approved"`
	Escalations       int           `json:"escalations"`
	Steps             string        `json:"steps"`  // JSON array of approval steps
	Action            string        `json:"action"` // JSON blob of the optimization action
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	Archived          bool          `json:"archived"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// RollbackPlanRow represents a persisted rollback plan
type RollbackPlanRow struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	ResourceID  string         `json:"resource_id"`
	PlanType    string         `json:"plan_type"` // FULL, PARTIAL, NONE
	Steps       string         `json:"steps"`     // JSON array of rollback steps
	Status      RollbackStatus `json:"status"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExecutedAt  *time.Time     `json:"executed_at,omitempty"`
}

// AuditEntry represents an append-only audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"` // e.g., "execution.started", "workflow.approved"
	Actor     string    `json:"actor"`  // user or system identifier
	TargetID  *string   `json:"target_id,omitempty"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Execution operations
	CreateExecution(ctx context.Context, row *ExecutionRow) error
	GetExecution(ctx context.Context, id string) (*ExecutionRow, error)
	UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus, err *string) error
	UpdateExecutionResult(ctx context.Context, id string, status ExecutionStatus, actualSavings *float64, result *string) error
	ListExecutions(ctx context.Context, status *ExecutionStatus, limit, offset int) ([]*ExecutionRow, error)
	ListExecutionsByResource(ctx context.Context, resourceID string) ([]*ExecutionRow, error)
	IncrementExecutionAttempts(ctx context.Context, id string) error

	// Workflow operations
	CreateWorkflow(ctx context.Context, row *WorkflowRow) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRow, error)
	GetWorkflowByAction(ctx context.Context, actionID string, state WorkflowState) (*WorkflowRow, error)
	UpdateWorkflow(ctx context.Context, row *WorkflowRow) error
	ListWorkflows(ctx context.Context, state *WorkflowState, includeArchived bool, limit, offset int) ([]*WorkflowRow, error)
	ListExpirableWorkflows(ctx context.Context, asOf time.Time) ([]*WorkflowRow, error)
	ArchiveWorkflow(ctx context.Context, id string) error

	// Rollback plan operations
	CreateRollbackPlan(ctx context.Context, row *RollbackPlanRow) error
	GetRollbackPlan(ctx context.Context, id string) (*RollbackPlanRow, error)
	ListRollbackPlans(ctx context.Context, executionID string) ([]*RollbackPlanRow, error)
	UpdateRollbackPlanStatus(ctx context.Context, id string, status RollbackStatus, err *string) error

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Recovery checkpoint operations
	SaveCheckpoint(ctx context.Context, id, phase string, data []byte) error
	LoadCheckpoint(ctx context.Context, id, phase string) ([]byte, bool, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
