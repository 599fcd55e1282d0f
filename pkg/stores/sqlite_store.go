package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateExecution creates a new execution record
func (s *SQLiteStore) CreateExecution(ctx context.Context, row *ExecutionRow) error {
	query := `
		INSERT INTO executions (
			id, action_id, resource_id, resource_type, operation, mode, status,
			workflow_id, rollback_plan_id, attempts, estimated_savings, actual_savings,
			result, error, scheduled_at, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		row.ActionID,
		row.ResourceID,
		row.ResourceType,
		row.Operation,
		row.Mode,
		row.Status,
		row.WorkflowID,
		row.RollbackPlanID,
		row.Attempts,
		row.EstimatedSavings,
		row.ActualSavings,
		row.Result,
		row.Error,
		row.ScheduledAt,
		row.StartedAt,
		row.CompletedAt,
		row.CreatedAt,
		row.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution record by ID
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*ExecutionRow, error) {
	query := `
		SELECT id, action_id, resource_id, resource_type, operation, mode, status,
			   workflow_id, rollback_plan_id, attempts, estimated_savings, actual_savings,
			   result, error, scheduled_at, started_at, completed_at, created_at, updated_at
		FROM executions
		WHERE id = ?
	`

	row := &ExecutionRow{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.ActionID,
		&row.ResourceID,
		&row.ResourceType,
		&row.Operation,
		&row.Mode,
		&row.Status,
		&row.WorkflowID,
		&row.RollbackPlanID,
		&row.Attempts,
		&row.EstimatedSavings,
		&row.ActualSavings,
		&row.Result,
		&row.Error,
		&row.ScheduledAt,
		&row.StartedAt,
		&row.CompletedAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return row, nil
}

// UpdateExecutionStatus updates the status of an execution record
func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus, errMsg *string) error {
	query := `
		UPDATE executions
		SET status = ?, error = ?,
			started_at = CASE WHEN started_at IS NULL AND ? = 'EXECUTING' THEN CURRENT_TIMESTAMP ELSE started_at END,
			completed_at = CASE WHEN ? IN ('COMPLETED', 'FAILED', 'ROLLED_BACK', 'CANCELLED') THEN CURRENT_TIMESTAMP ELSE completed_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, status, status, id)
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}

	return nil
}

// UpdateExecutionResult records the final outcome of an execution
func (s *SQLiteStore) UpdateExecutionResult(ctx context.Context, id string, status ExecutionStatus, actualSavings *float64, resultJSON *string) error {
	query := `
		UPDATE executions
		SET status = ?, actual_savings = ?, result = ?,
			completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, actualSavings, resultJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update execution result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}

	return nil
}

// ListExecutions lists execution records with optional status filter and pagination
func (s *SQLiteStore) ListExecutions(ctx context.Context, status *ExecutionStatus, limit, offset int) ([]*ExecutionRow, error) {
	query := `
		SELECT id, action_id, resource_id, resource_type, operation, mode, status,
			   workflow_id, rollback_plan_id, attempts, estimated_savings, actual_savings,
			   result, error, scheduled_at, started_at, completed_at, created_at, updated_at
		FROM executions
		WHERE (? IS NULL OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ListExecutionsByResource lists execution records for a resource, newest first
func (s *SQLiteStore) ListExecutionsByResource(ctx context.Context, resourceID string) ([]*ExecutionRow, error) {
	query := `
		SELECT id, action_id, resource_id, resource_type, operation, mode, status,
			   workflow_id, rollback_plan_id, attempts, estimated_savings, actual_savings,
			   result, error, scheduled_at, started_at, completed_at, created_at, updated_at
		FROM executions
		WHERE resource_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions by resource: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

func scanExecutions(rows *sql.Rows) ([]*ExecutionRow, error) {
	executions := []*ExecutionRow{}
	for rows.Next() {
		row := &ExecutionRow{}
		err := rows.Scan(
			&row.ID,
			&row.ActionID,
			&row.ResourceID,
			&row.ResourceType,
			&row.Operation,
			&row.Mode,
			&row.Status,
			&row.WorkflowID,
			&row.RollbackPlanID,
			&row.Attempts,
			&row.EstimatedSavings,
			&row.ActualSavings,
			&row.Result,
			&row.Error,
			&row.ScheduledAt,
			&row.StartedAt,
			&row.CompletedAt,
			&row.CreatedAt,
			&row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// IncrementExecutionAttempts increments the attempt counter for an execution
func (s *SQLiteStore) IncrementExecutionAttempts(ctx context.Context, id string) error {
	query := `UPDATE executions SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}

	return nil
}

// CreateWorkflow creates a new workflow record
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, row *WorkflowRow) error {
	query := `
		INSERT INTO workflows (
			id, action_id, state, risk_level, required_authority, auto_approved,
			escalations, steps, action, expires_at, archived, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		row.ActionID,
		row.State,
		row.RiskLevel,
		row.RequiredAuthority,
		row.AutoApproved,
		row.Escalations,
		row.Steps,
		row.Action,
		row.ExpiresAt,
		row.Archived,
		row.CreatedAt,
		row.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRow, error) {
	query := `
		SELECT id, action_id, state, risk_level, required_authority, auto_approved,
			   escalations, steps, action, expires_at, archived, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`

	row := &WorkflowRow{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.ActionID,
		&row.State,
		&row.RiskLevel,
		&row.RequiredAuthority,
		&row.AutoApproved,
		&row.Escalations,
		&row.Steps,
		&row.Action,
		&row.ExpiresAt,
		&row.Archived,
		&row.CreatedAt,
		&row.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return row, nil
}

// GetWorkflowByAction retrieves the newest non-archived workflow for an
// action in the given state. Returns nil without error when none exists.
func (s *SQLiteStore) GetWorkflowByAction(ctx context.Context, actionID string, state WorkflowState) (*WorkflowRow, error) {
	query := `
		SELECT id, action_id, state, risk_level, required_authority, auto_approved,
			   escalations, steps, action, expires_at, archived, created_at, updated_at
		FROM workflows
		WHERE action_id = ? AND state = ? AND archived = 0
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := &WorkflowRow{}
	err := s.db.QueryRowContext(ctx, query, actionID, state).Scan(
		&row.ID,
		&row.ActionID,
		&row.State,
		&row.RiskLevel,
		&row.RequiredAuthority,
		&row.AutoApproved,
		&row.Escalations,
		&row.Steps,
		&row.Action,
		&row.ExpiresAt,
		&row.Archived,
		&row.CreatedAt,
		&row.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow by action: %w", err)
	}

	return row, nil
}

// UpdateWorkflow replaces the mutable fields of a workflow record
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, row *WorkflowRow) error {
	query := `
		UPDATE workflows
		SET state = ?, required_authority = ?, auto_approved = ?, escalations = ?,
			steps = ?, expires_at = ?, archived = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		row.State,
		row.RequiredAuthority,
		row.AutoApproved,
		row.Escalations,
		row.Steps,
		row.ExpiresAt,
		row.Archived,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", row.ID)
	}

	return nil
}

// ListWorkflows lists workflows with optional state filter and pagination
func (s *SQLiteStore) ListWorkflows(ctx context.Context, state *WorkflowState, includeArchived bool, limit, offset int) ([]*WorkflowRow, error) {
	query := `
		SELECT id, action_id, state, risk_level, required_authority, auto_approved,
			   escalations, steps, action, expires_at, archived, created_at, updated_at
		FROM workflows
		WHERE (? IS NULL OR state = ?)
		  AND (? OR archived = 0)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, state, state, includeArchived, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// ListExpirableWorkflows lists non-terminal workflows whose deadline has passed
func (s *SQLiteStore) ListExpirableWorkflows(ctx context.Context, asOf time.Time) ([]*WorkflowRow, error) {
	query := `
		SELECT id, action_id, state, risk_level, required_authority, auto_approved,
			   escalations, steps, action, expires_at, archived, created_at, updated_at
		FROM workflows
		WHERE state IN ('CREATED', 'UNDER_REVIEW', 'AWAITING_APPROVAL')
		  AND expires_at IS NOT NULL
		  AND expires_at <= ?
		ORDER BY expires_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

func scanWorkflows(rows *sql.Rows) ([]*WorkflowRow, error) {
	workflows := []*WorkflowRow{}
	for rows.Next() {
		row := &WorkflowRow{}
		err := rows.Scan(
			&row.ID,
			&row.ActionID,
			&row.State,
			&row.RiskLevel,
			&row.RequiredAuthority,
			&row.AutoApproved,
			&row.Escalations,
			&row.Steps,
			&row.Action,
			&row.ExpiresAt,
			&row.Archived,
			&row.CreatedAt,
			&row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// ArchiveWorkflow marks a workflow as archived
func (s *SQLiteStore) ArchiveWorkflow(ctx context.Context, id string) error {
	query := `UPDATE workflows SET archived = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", id)
	}

	return nil
}

// CreateRollbackPlan creates a new rollback plan record
func (s *SQLiteStore) CreateRollbackPlan(ctx context.Context, row *RollbackPlanRow) error {
	query := `
		INSERT INTO rollback_plans (id, execution_id, resource_id, plan_type, steps, status, error, created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		row.ExecutionID,
		row.ResourceID,
		row.PlanType,
		row.Steps,
		row.Status,
		row.Error,
		row.CreatedAt,
		row.ExecutedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create rollback plan: %w", err)
	}

	return nil
}

// GetRollbackPlan retrieves a rollback plan by ID
func (s *SQLiteStore) GetRollbackPlan(ctx context.Context, id string) (*RollbackPlanRow, error) {
	query := `
		SELECT id, execution_id, resource_id, plan_type, steps, status, error, created_at, executed_at
		FROM rollback_plans
		WHERE id = ?
	`

	row := &RollbackPlanRow{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.ExecutionID,
		&row.ResourceID,
		&row.PlanType,
		&row.Steps,
		&row.Status,
		&row.Error,
		&row.CreatedAt,
		&row.ExecutedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rollback plan not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollback plan: %w", err)
	}

	return row, nil
}

// ListRollbackPlans retrieves all rollback plans for an execution
func (s *SQLiteStore) ListRollbackPlans(ctx context.Context, executionID string) ([]*RollbackPlanRow, error) {
	query := `
		SELECT id, execution_id, resource_id, plan_type, steps, status, error, created_at, executed_at
		FROM rollback_plans
		WHERE execution_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback plans: %w", err)
	}
	defer rows.Close()

	var plans []*RollbackPlanRow
	for rows.Next() {
		row := &RollbackPlanRow{}
		if err := rows.Scan(
			&row.ID,
			&row.ExecutionID,
			&row.ResourceID,
			&row.PlanType,
			&row.Steps,
			&row.Status,
			&row.Error,
			&row.CreatedAt,
			&row.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rollback plan: %w", err)
		}
		plans = append(plans, row)
	}

	return plans, rows.Err()
}

// UpdateRollbackPlanStatus updates the status of a rollback plan
func (s *SQLiteStore) UpdateRollbackPlanStatus(ctx context.Context, id string, status RollbackStatus, errMsg *string) error {
	query := `
		UPDATE rollback_plans
		SET status = ?, error = ?,
			executed_at = CASE WHEN ? IN ('EXECUTED', 'FAILED') THEN CURRENT_TIMESTAMP ELSE executed_at END
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, status, id)
	if err != nil {
		return fmt.Errorf("failed to update rollback plan status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("rollback plan not found: %s", id)
	}

	return nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// SaveCheckpoint inserts or replaces a recovery checkpoint
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, id, phase string, data []byte) error {
	query := `
		INSERT INTO checkpoints (id, phase, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id, phase) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query, id, phase, data)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint retrieves a recovery checkpoint. The second return value
// reports whether a checkpoint exists.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, id, phase string) ([]byte, bool, error) {
	query := `SELECT data FROM checkpoints WHERE id = ? AND phase = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, id, phase).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return data, true, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
