package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a pipeline lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ExecutionID is the associated execution record ID, if applicable.
	ExecutionID string `json:"execution_id,omitempty"`

	// WorkflowID is the associated approval workflow ID, if applicable.
	WorkflowID string `json:"workflow_id,omitempty"`

	// ResourceID is the associated resource ID, if applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeExecutionStarted    = "execution.started"
	EventTypeExecutionCompleted  = "execution.completed"
	EventTypeExecutionFailed     = "execution.failed"
	EventTypeExecutionRolledBack = "execution.rolled_back"
	EventTypeWorkflowCreated     = "workflow.created"
	EventTypeWorkflowApproved    = "workflow.approved"
	EventTypeWorkflowRejected    = "workflow.rejected"
	EventTypeWorkflowEscalated   = "workflow.escalated"
	EventTypeWorkflowExpired     = "workflow.expired"
	EventTypeWorkflowCancelled   = "workflow.cancelled"
	EventTypeRollbackStarted     = "rollback.started"
	EventTypeRollbackFailed      = "rollback.failed"
	EventTypeBreakerOpened       = "breaker.opened"
	EventTypeGuardrailViolation  = "guardrail.violation"
	EventTypeError               = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishExecutionStarted publishes an execution started event.
func (ep *EventPublisher) PublishExecutionStarted(executionID, resourceID, operation string) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionStarted,
		Source:      "engine",
		ExecutionID: executionID,
		ResourceID:  resourceID,
		Message:     fmt.Sprintf("Execution %s started: %s on resource %s", executionID, operation, resourceID),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// PublishExecutionCompleted publishes an execution completed event.
func (ep *EventPublisher) PublishExecutionCompleted(executionID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionCompleted,
		Source:      "engine",
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Execution %s finalized with status: %s", executionID, status),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishExecutionFailed publishes an execution failed event.
func (ep *EventPublisher) PublishExecutionFailed(executionID, resourceID, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionFailed,
		Source:      "engine",
		ExecutionID: executionID,
		ResourceID:  resourceID,
		Message:     fmt.Sprintf("Execution %s failed: %s", executionID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishExecutionRolledBack publishes a rolled-back execution event.
func (ep *EventPublisher) PublishExecutionRolledBack(executionID, resourceID, planID string) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionRolledBack,
		Source:      "engine",
		ExecutionID: executionID,
		ResourceID:  resourceID,
		Message:     fmt.Sprintf("Execution %s rolled back via plan %s", executionID, planID),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"rollback_plan_id": planID,
		},
	})
}

// PublishWorkflowTransition publishes a workflow state-change event.
func (ep *EventPublisher) PublishWorkflowTransition(workflowID, eventType, detail string) error {
	level := EventLevelInfo
	if eventType == EventTypeWorkflowRejected || eventType == EventTypeWorkflowExpired {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:       eventType,
		Source:     "approval",
		WorkflowID: workflowID,
		Message:    fmt.Sprintf("Workflow %s: %s", workflowID, detail),
		Level:      level,
	})
}

// PublishRollbackFailed publishes a rollback failure event. Rollback
// failures always require operator attention.
func (ep *EventPublisher) PublishRollbackFailed(executionID, planID, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeRollbackFailed,
		Source:      "safety",
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Rollback plan %s failed: %s", planID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"rollback_plan_id": planID,
			"reason":           reason,
		},
	})
}

// PublishBreakerOpened publishes a circuit-breaker opened event.
func (ep *EventPublisher) PublishBreakerOpened(target string, failures int) error {
	return ep.Publish(Event{
		Type:    EventTypeBreakerOpened,
		Source:  "resilience",
		Message: fmt.Sprintf("Circuit breaker opened for target %s after %d consecutive failures", target, failures),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"target":   target,
			"failures": failures,
		},
	})
}

// PublishGuardrailViolation publishes a guardrail policy violation event.
func (ep *EventPublisher) PublishGuardrailViolation(resourceID, policyName, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeGuardrailViolation,
		Source:     "policy",
		ResourceID: resourceID,
		Message:    fmt.Sprintf("Guardrail violation on resource %s: %s - %s", resourceID, policyName, reason),
		Level:      EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain remaining events before shutting down
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Async mode calls subscribers in goroutines to avoid blocking
		// the delivery loop; sync mode delivers inline.
		if ep.config.EnableAsync {
			go entry.subscriber(event)
		} else {
			entry.subscriber(event)
		}
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific
// level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByExecutionID creates a filter that only allows events for a
// specific execution.
func FilterByExecutionID(executionID string) EventFilter {
	return func(event Event) bool {
		return event.ExecutionID == executionID
	}
}

// FilterByResourceID creates a filter that only allows events for a
// specific resource.
func FilterByResourceID(resourceID string) EventFilter {
	return func(event Event) bool {
		return event.ResourceID == resourceID
	}
}
