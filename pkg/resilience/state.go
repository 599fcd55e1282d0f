package resilience

import (
	"context"
	"encoding/json"
	"time"
)

// recoveryStateSchemaVersion is bumped whenever the persisted RecoveryState
// shape changes, so stale checkpoints are discarded instead of misread.
const recoveryStateSchemaVersion = 1

// maxErrorHistory bounds the per-operation error history.
const maxErrorHistory = 10

// ErrorRecord is one entry in an operation's bounded error history.
type ErrorRecord struct {
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// RecoveryState is the retry bookkeeping for one operation name. It is
// persisted as schema-tagged JSON so recovery survives process restarts.
type RecoveryState struct {
	// SchemaVersion guards deserialization across redeploys.
	SchemaVersion int `json:"schema_version"`

	// Operation is the operation name this state belongs to.
	Operation string `json:"operation"`

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastFailure is when the most recent failure occurred.
	LastFailure time.Time `json:"last_failure,omitzero"`

	// History is the bounded record of recent failures, newest last.
	History []ErrorRecord `json:"history,omitempty"`
}

// CheckpointStore persists per-operation recovery state and workflow phase
// data across process restarts. Implementations must be safe for
// concurrent use.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, id, phase string, data []byte) error
	LoadCheckpoint(ctx context.Context, id, phase string) ([]byte, bool, error)
}

// checkpointPhase is the phase key recovery state is stored under.
const checkpointPhase = "recovery"

func (s *RecoveryState) recordFailure(category ErrorCategory, msg string, at time.Time) {
	s.ConsecutiveFailures++
	s.LastFailure = at
	s.History = append(s.History, ErrorRecord{
		Category:  category,
		Message:   msg,
		Timestamp: at,
	})
	if len(s.History) > maxErrorHistory {
		s.History = s.History[len(s.History)-maxErrorHistory:]
	}
}

func (s *RecoveryState) reset() {
	s.ConsecutiveFailures = 0
	s.History = nil
}

func marshalRecoveryState(s *RecoveryState) ([]byte, error) {
	s.SchemaVersion = recoveryStateSchemaVersion
	return json.Marshal(s)
}

func unmarshalRecoveryState(data []byte) (*RecoveryState, bool) {
	var s RecoveryState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false
	}
	if s.SchemaVersion != recoveryStateSchemaVersion {
		return nil, false
	}
	return &s, true
}
