// Package stores provides the persistence layer for CostWarden.
// It includes SQLite-based storage with WAL mode, connection pooling,
// embedded migrations, and CRUD operations for executions, approval
// workflows, rollback plans, audit logs, and recovery checkpoints.
package stores
