package approval

import (
	"context"

	"github.com/rs/zerolog"
)

// NotificationType is one of the workflow lifecycle events stakeholders
// are told about.
type NotificationType string

const (
	NotifyCreated   NotificationType = "created"
	NotifyApproved  NotificationType = "approved"
	NotifyRejected  NotificationType = "rejected"
	NotifyExpired   NotificationType = "expired"
	NotifyEscalated NotificationType = "escalated"
)

// NotificationResult reports delivery per recipient.
type NotificationResult struct {
	Sent   int      `json:"sent"`
	Failed []string `json:"failed,omitempty"`
}

// Notifier delivers workflow lifecycle notifications to stakeholders.
// Delivery failures are reported in the result, never as an error, so a
// broken notification channel cannot stall the workflow itself.
type Notifier interface {
	Notify(ctx context.Context, workflowID string, event NotificationType, recipients []string) NotificationResult
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no external channel is wired up.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notification sink.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, workflowID string, event NotificationType, recipients []string) NotificationResult {
	n.logger.Info().
		Str("workflow_id", workflowID).
		Str("event", string(event)).
		Strs("recipients", recipients).
		Msg("Workflow notification")

	return NotificationResult{Sent: len(recipients)}
}
