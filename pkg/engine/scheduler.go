package engine

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/stores"
	"github.com/costwarden/costwarden/pkg/telemetry"
)

// ScheduledItem is one queued optimization.
type ScheduledItem struct {
	ID          string             `json:"id"`
	Action      OptimizationAction `json:"action"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Priority    int                `json:"priority"`
	Force       bool               `json:"force"`
}

// itemQueue is a min-heap ordered by (scheduledTime, priority). Earlier
// times pop first; within the same time, higher priority wins.
type itemQueue []*ScheduledItem

func (q itemQueue) Len() int { return len(q) }

func (q itemQueue) Less(i, j int) bool {
	if !q[i].ScheduledAt.Equal(q[j].ScheduledAt) {
		return q[i].ScheduledAt.Before(q[j].ScheduledAt)
	}
	return q[i].Priority > q[j].Priority
}

func (q itemQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *itemQueue) Push(x interface{}) {
	*q = append(*q, x.(*ScheduledItem))
}

func (q *itemQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Scheduler queues optimizations for future execution and drains due
// items through the executor. Queue state is persisted as SCHEDULED
// execution rows, so a restart rehydrates the queue.
type Scheduler struct {
	executor *Executor
	store    stores.Store
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	queue itemQueue

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler draining into the executor.
func NewScheduler(executor *Executor, store stores.Store, metrics *telemetry.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		executor: executor,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Schedule queues an action for execution at the given time.
func (s *Scheduler) Schedule(ctx context.Context, action OptimizationAction, when time.Time, priority int, force bool) (*ScheduledItem, error) {
	item := &ScheduledItem{
		ID:          uuid.New().String(),
		Action:      action,
		ScheduledAt: when.UTC(),
		Priority:    priority,
		Force:       force,
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scheduled item: %w", err)
	}
	result := string(payload)

	row := &stores.ExecutionRow{
		ID:               item.ID,
		ActionID:         action.ID,
		ResourceID:       action.ResourceID,
		ResourceType:     action.ResourceType,
		Operation:        action.OperationKind,
		Mode:             string(ModeLive),
		Status:           stores.ExecutionStatusScheduled,
		EstimatedSavings: action.EstimatedSavings,
		Result:           &result,
		ScheduledAt:      &item.ScheduledAt,
		CreatedAt:        s.now().UTC(),
		UpdatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateExecution(ctx, row); err != nil {
		return nil, err
	}

	s.mu.Lock()
	heap.Push(&s.queue, item)
	depth := s.queue.Len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetScheduledQueueDepth(float64(depth))
	}

	s.logger.Info().
		Str("scheduled_id", item.ID).
		Str("resource_id", action.ResourceID).
		Time("scheduled_at", item.ScheduledAt).
		Int("priority", priority).
		Msg("Optimization scheduled")

	return item, nil
}

// Restore rehydrates the in-memory queue from persisted SCHEDULED rows.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	status := stores.ExecutionStatusScheduled
	rows, err := s.store.ListExecutions(ctx, &status, 10000, 0)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, row := range rows {
		if row.Result == nil {
			continue
		}
		var item ScheduledItem
		if err := json.Unmarshal([]byte(*row.Result), &item); err != nil {
			s.logger.Error().Err(err).Str("scheduled_id", row.ID).Msg("Skipping undecodable scheduled item")
			continue
		}
		heap.Push(&s.queue, &item)
		restored++
	}

	if s.metrics != nil {
		s.metrics.SetScheduledQueueDepth(float64(s.queue.Len()))
	}

	return restored, nil
}

// CancelScheduled removes a not-yet-due item from the queue.
func (s *Scheduler) CancelScheduled(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	found := false
	for i, item := range s.queue {
		if item.ID == id {
			heap.Remove(&s.queue, i)
			found = true
			break
		}
	}
	depth := s.queue.Len()
	s.mu.Unlock()

	if !found {
		return false, nil
	}

	if err := s.store.UpdateExecutionStatus(ctx, id, stores.ExecutionStatusCancelled, nil); err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.SetScheduledQueueDepth(float64(depth))
	}

	s.logger.Info().Str("scheduled_id", id).Msg("Scheduled optimization cancelled")
	return true, nil
}

// Pending returns the queued items in pop order without draining them.
func (s *Scheduler) Pending() []*ScheduledItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*ScheduledItem, len(s.queue))
	copy(items, s.queue)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledAt.Equal(items[j].ScheduledAt) {
			return items[i].ScheduledAt.Before(items[j].ScheduledAt)
		}
		return items[i].Priority > items[j].Priority
	})
	return items
}

// ProcessDue pops every due item and executes it through the pipeline.
func (s *Scheduler) ProcessDue(ctx context.Context) (*BatchSummary, error) {
	now := s.now().UTC()

	var due []*ScheduledItem
	s.mu.Lock()
	for s.queue.Len() > 0 && !s.queue[0].ScheduledAt.After(now) {
		due = append(due, heap.Pop(&s.queue).(*ScheduledItem))
	}
	depth := s.queue.Len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetScheduledQueueDepth(float64(depth))
	}

	summary := &BatchSummary{Mode: BatchSequential}
	if len(due) == 0 {
		return summary, nil
	}

	for _, item := range due {
		// The scheduled placeholder row hands its slot to the pipeline's
		// own execution record.
		if err := s.store.UpdateExecutionStatus(ctx, item.ID, stores.ExecutionStatusCancelled, nil); err != nil {
			s.logger.Error().Err(err).Str("scheduled_id", item.ID).Msg("Failed to retire scheduled row")
		}

		record, err := s.executor.ExecuteOptimization(ctx, item.Action, item.Force)
		if err != nil {
			return nil, err
		}
		summary.Records = append(summary.Records, record)
	}

	*summary = *summarize(BatchSequential, summary.Records)
	summary.Mode = BatchSequential

	s.logger.Info().
		Int("processed", summary.Total).
		Int("completed", summary.Completed).
		Msg("Processed due optimizations")

	return summary, nil
}

// Run drives the periodic due-item processor until Stop is called or the
// context ends.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.executor.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled processing failed")
			}
		}
	}
}

// Stop halts the periodic processor. Run must have been started.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
