// Package engine orchestrates risk-gated optimization execution.
//
// One action flows through approval routing, guardrail evaluation,
// pre-execution validation, a rollback-protected mutation behind the
// resilience layer, and post-execution validation. Batches run in
// sequential, parallel, or grouped modes on a bounded worker pool, and a
// persistent priority queue defers actions to a scheduled time. Every
// attempt finalizes an ExecutionRecord in the store.
package engine
