package resilience

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/telemetry"
)

// RetryConfig holds the backoff tuning knobs.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
	}
}

// RecoveryManager executes operations with classified retry, coordinating
// the rate limiter, circuit breaker, and classifier. Per-operation
// RecoveryState is checkpointed so a restarted process resumes with its
// failure history intact. Retries for a given operation name are strictly
// sequential; the per-operation lock guarantees no two retries race.
type RecoveryManager struct {
	cfg        RetryConfig
	classifier *Classifier
	breaker    *CircuitBreaker
	limiter    *RateLimiter
	checkpoint CheckpointStore
	metrics    *telemetry.Metrics
	events     *telemetry.EventPublisher
	logger     zerolog.Logger

	mu     sync.Mutex
	states map[string]*RecoveryState
	opLock map[string]*sync.Mutex

	// sleep and jitter are injection points for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewRecoveryManager wires the resilience primitives together. checkpoint
// may be nil, in which case recovery state is process-local only; metrics
// and events may be nil.
func NewRecoveryManager(
	cfg RetryConfig,
	classifier *Classifier,
	breaker *CircuitBreaker,
	limiter *RateLimiter,
	checkpoint CheckpointStore,
	metrics *telemetry.Metrics,
	events *telemetry.EventPublisher,
	logger zerolog.Logger,
) *RecoveryManager {
	def := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	return &RecoveryManager{
		cfg:        cfg,
		classifier: classifier,
		breaker:    breaker,
		limiter:    limiter,
		checkpoint: checkpoint,
		metrics:    metrics,
		events:     events,
		logger:     logger.With().Str("component", "recovery-manager").Logger(),
		states:     make(map[string]*RecoveryState),
		opLock:     make(map[string]*sync.Mutex),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		jitter: rand.Float64,
	}
}

// Execute runs fn under the full resilience stack: rate limiting, circuit
// breaking, and classified retry with backoff. target names the provider
// endpoint for limiter/breaker bookkeeping; operation names the logical
// call for recovery-state bookkeeping. The original error from the final
// attempt is returned; Execute never swallows a final failure.
func (m *RecoveryManager) Execute(
	ctx context.Context,
	target, operation string,
	fn func(ctx context.Context) error,
) error {
	lock := m.operationLock(operation)
	lock.Lock()
	defer lock.Unlock()

	state := m.loadState(ctx, operation)

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if !m.breaker.Allow(target) {
			if lastErr != nil {
				return lastErr
			}
			return NewError(CategoryTransient, "call rejected", ErrCircuitOpen).
				WithTarget(target).
				WithOperation(operation)
		}

		if m.limiter != nil {
			waitStart := time.Now()
			if err := m.limiter.Acquire(ctx, target); err != nil {
				return err
			}
			// An Acquire that had to sleep counts as a limiter wait.
			if m.metrics != nil && time.Since(waitStart) >= time.Millisecond {
				m.metrics.RecordRateLimitWait(target)
			}
		}

		err := fn(ctx)
		if err == nil {
			m.breaker.OnSuccess(target)
			if m.breaker.State(target) == BreakerHalfOpen {
				m.breaker.Reset(target)
			}
			if m.metrics != nil {
				m.metrics.SetBreakerState(target, string(m.breaker.State(target)))
			}
			m.mu.Lock()
			state.reset()
			m.mu.Unlock()
			m.saveState(ctx, operation, state)
			return nil
		}

		lastErr = err
		category := m.classifier.Classify(err)
		before := m.breaker.State(target)
		m.breaker.OnFailure(target)
		after := m.breaker.State(target)
		if m.metrics != nil {
			m.metrics.RecordError(string(category), errorCode(err))
			m.metrics.SetBreakerState(target, string(after))
		}
		if m.events != nil && after == BreakerOpen && before != BreakerOpen {
			m.events.PublishBreakerOpened(target, m.breaker.Failures(target))
		}
		m.mu.Lock()
		state.recordFailure(category, err.Error(), time.Now())
		failures := state.ConsecutiveFailures
		m.mu.Unlock()
		m.saveState(ctx, operation, state)

		strategy := category.Strategy()
		m.logger.Warn().
			Str("operation", operation).
			Str("target", target).
			Str("category", string(category)).
			Int("attempt", attempt+1).
			Int("consecutive_failures", failures).
			Err(err).
			Msg("Operation attempt failed")

		if strategy == StrategyNoRetry || attempt >= m.cfg.MaxRetries {
			return lastErr
		}

		if m.metrics != nil {
			m.metrics.RecordRetry(operation, string(category))
		}
		delay := m.delayFor(strategy, category, attempt)
		if err := m.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// delayFor computes the backoff before retry number attempt+1, including
// jitter and the throttling penalty.
func (m *RecoveryManager) delayFor(strategy RecoveryStrategy, category ErrorCategory, attempt int) time.Duration {
	var delay time.Duration
	switch strategy {
	case StrategyLinearBackoff:
		delay = m.cfg.InitialDelay * time.Duration(attempt+1)
	default:
		delay = m.cfg.InitialDelay
		for i := 0; i < attempt; i++ {
			delay = time.Duration(float64(delay) * m.cfg.Multiplier)
			if delay >= m.cfg.MaxDelay {
				break
			}
		}
	}
	if delay > m.cfg.MaxDelay {
		delay = m.cfg.MaxDelay
	}

	// ±10% jitter so synchronized callers spread out.
	jitter := (m.jitter()*2 - 1) * 0.1
	delay = time.Duration(float64(delay) * (1 + jitter))

	// Throttled targets get double the computed delay.
	if category == CategoryThrottling {
		delay *= 2
	}
	return delay
}

// errorCode extracts the provider error code, when the error carries one.
func errorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// State returns a copy of the recovery state for an operation, if any.
func (m *RecoveryManager) State(operation string) (RecoveryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[operation]
	if !ok {
		return RecoveryState{}, false
	}
	out := *s
	out.History = append([]ErrorRecord(nil), s.History...)
	return out, true
}

func (m *RecoveryManager) operationLock(operation string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.opLock[operation]
	if !ok {
		l = &sync.Mutex{}
		m.opLock[operation] = l
	}
	return l
}

// loadState returns the in-memory state for operation, hydrating from the
// checkpoint store on first use.
func (m *RecoveryManager) loadState(ctx context.Context, operation string) *RecoveryState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.states[operation]; ok {
		return s
	}

	s := &RecoveryState{Operation: operation}
	if m.checkpoint != nil {
		if data, found, err := m.checkpoint.LoadCheckpoint(ctx, operation, checkpointPhase); err == nil && found {
			if restored, ok := unmarshalRecoveryState(data); ok {
				s = restored
			}
		}
	}
	m.states[operation] = s
	return s
}

func (m *RecoveryManager) saveState(ctx context.Context, operation string, s *RecoveryState) {
	if m.checkpoint == nil {
		return
	}
	m.mu.Lock()
	snapshot := *s
	snapshot.History = append([]ErrorRecord(nil), s.History...)
	m.mu.Unlock()
	data, err := marshalRecoveryState(&snapshot)
	if err != nil {
		return
	}
	if err := m.checkpoint.SaveCheckpoint(ctx, operation, checkpointPhase, data); err != nil {
		m.logger.Warn().Err(err).Str("operation", operation).Msg("Failed to checkpoint recovery state")
	}
}
