package resilience

import (
	"sync"
	"time"
)

// BreakerState is the health state of one call target.
type BreakerState string

const (
	// BreakerClosed allows all calls.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen rejects all calls until the recovery timeout elapses.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen allows trial calls while the target proves itself.
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig holds the circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count observed while
	// half-open that closes the circuit.
	SuccessThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before
	// moving to half-open.
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
	}
}

type breakerEntry struct {
	state        BreakerState
	failures     int
	successes    int
	lastFailure  time.Time
}

// CircuitBreaker tracks per-target call health and gates outbound calls.
// State transitions follow the classic pattern: closed opens after
// FailureThreshold consecutive failures; open moves to half-open once
// RecoveryTimeout elapses; half-open closes after SuccessThreshold
// consecutive successes and reopens on any failure.
type CircuitBreaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	targets map[string]*breakerEntry
	now     func() time.Time
}

// NewCircuitBreaker creates a breaker. Zero-valued config fields fall back
// to defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	return &CircuitBreaker{
		cfg:     cfg,
		targets: make(map[string]*breakerEntry),
		now:     time.Now,
	}
}

// Allow reports whether a call to target may proceed. An open circuit whose
// recovery timeout has elapsed transitions to half-open and admits the
// call as a trial.
func (b *CircuitBreaker) Allow(target string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(target)
	switch e.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Sub(e.lastFailure) >= b.cfg.RecoveryTimeout {
			e.state = BreakerHalfOpen
			e.successes = 0
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess records a successful call outcome for target.
func (b *CircuitBreaker) OnSuccess(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(target)
	switch e.state {
	case BreakerClosed:
		if e.failures > 0 {
			e.failures--
		}
	case BreakerHalfOpen:
		e.successes++
		if e.successes >= b.cfg.SuccessThreshold {
			e.state = BreakerClosed
			e.failures = 0
			e.successes = 0
		}
	case BreakerOpen:
		// A success while open means the caller bypassed Allow; ignore.
	}
}

// OnFailure records a failed call outcome for target.
func (b *CircuitBreaker) OnFailure(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(target)
	e.lastFailure = b.now()
	switch e.state {
	case BreakerClosed:
		e.failures++
		if e.failures >= b.cfg.FailureThreshold {
			e.state = BreakerOpen
		}
	case BreakerHalfOpen:
		e.state = BreakerOpen
		e.successes = 0
		e.failures = b.cfg.FailureThreshold
	case BreakerOpen:
	}
}

// State returns the current state for target.
func (b *CircuitBreaker) State(target string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(target)
	if e.state == BreakerOpen && b.now().Sub(e.lastFailure) >= b.cfg.RecoveryTimeout {
		e.state = BreakerHalfOpen
		e.successes = 0
	}
	return e.state
}

// Failures returns the consecutive-failure count for target.
func (b *CircuitBreaker) Failures(target string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(target).failures
}

// Reset forces a target back to closed. Used when recovery state is reset
// after a successful retried operation.
func (b *CircuitBreaker) Reset(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(target)
	e.state = BreakerClosed
	e.failures = 0
	e.successes = 0
}

func (b *CircuitBreaker) entry(target string) *breakerEntry {
	e, ok := b.targets[target]
	if !ok {
		e = &breakerEntry{state: BreakerClosed}
		b.targets[target] = e
	}
	return e
}
