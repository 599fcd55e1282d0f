// Package safety implements the safety and rollback engine for mutating
// cloud operations.
//
// Every operation is risk-scored against its kind and the target
// resource's metadata (production and protection tags, monthly cost,
// instance size). HIGH and CRITICAL operations are gated behind an
// approval workflow. Before any reversible mutation runs, the engine
// synthesizes and persists a rollback plan capturing the pre-mutation
// state, so a failed or regretted change can be replayed in reverse.
// Rollback failures are terminal and escalate to an operator rather than
// retrying automatically.
package safety
