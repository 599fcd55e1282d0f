// Package resilience provides the primitives that wrap every outbound
// provider call: per-target rate limiting, circuit breaking, error
// classification, and classified retry with backoff. Nothing above this
// package retries; callers see either a final result or a final error.
package resilience

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a provider failure for retry and recovery logic.
type ErrorCategory string

const (
	// CategoryTransient indicates a temporary failure that may succeed on retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryThrottling indicates rate limiting or quota exhaustion.
	CategoryThrottling ErrorCategory = "throttling"

	// CategoryAuthentication indicates invalid or expired credentials.
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryAuthorization indicates the caller lacks permission.
	CategoryAuthorization ErrorCategory = "authorization"

	// CategoryClient indicates a malformed or invalid request.
	CategoryClient ErrorCategory = "client_error"

	// CategoryServer indicates a provider-side failure.
	CategoryServer ErrorCategory = "server_error"

	// CategoryNetwork indicates a connectivity failure.
	CategoryNetwork ErrorCategory = "network_error"

	// CategoryTimeout indicates the call exceeded its deadline.
	CategoryTimeout ErrorCategory = "timeout_error"

	// CategoryResource indicates the target resource is missing or in
	// a state that cannot satisfy the request.
	CategoryResource ErrorCategory = "resource_error"

	// CategoryUnknown is the fallback for unclassifiable failures.
	CategoryUnknown ErrorCategory = "unknown"
)

// RecoveryStrategy is the retry behavior assigned to an error category.
type RecoveryStrategy string

const (
	// StrategyNoRetry fails fast; retrying cannot succeed.
	StrategyNoRetry RecoveryStrategy = "no_retry"

	// StrategyExponentialBackoff retries with geometrically growing delays.
	StrategyExponentialBackoff RecoveryStrategy = "exponential_backoff"

	// StrategyLinearBackoff retries with linearly growing delays.
	StrategyLinearBackoff RecoveryStrategy = "linear_backoff"
)

// Strategy returns the fixed recovery strategy for a category.
func (c ErrorCategory) Strategy() RecoveryStrategy {
	switch c {
	case CategoryAuthentication, CategoryAuthorization, CategoryClient, CategoryResource:
		return StrategyNoRetry
	case CategoryThrottling, CategoryTransient, CategoryServer, CategoryNetwork, CategoryUnknown:
		return StrategyExponentialBackoff
	case CategoryTimeout:
		return StrategyLinearBackoff
	default:
		return StrategyNoRetry
	}
}

// Error is a classified error with call context.
type Error struct {
	// Category is the error classification for retry logic.
	Category ErrorCategory `json:"category"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional provider error code.
	Code string `json:"code,omitempty"`

	// Target is the call target that failed, if applicable.
	Target string `json:"target,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Target != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (target=%s, operation=%s): %s",
			e.Category, e.Message, e.Target, e.Operation, e.unwrapMessage())
	}
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target=%s): %s",
			e.Category, e.Message, e.Target, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// NewError creates a classified error.
func NewError(category ErrorCategory, message string, err error) *Error {
	return &Error{
		Category: category,
		Message:  message,
		Err:      err,
	}
}

// WithTarget adds target context to an error.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds a provider error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// CategoryOf returns the category of a classified error, or CategoryUnknown
// for errors that never passed through a Classifier.
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryUnknown
}

// IsRetryable returns true if the error's category maps to a retrying
// strategy.
func IsRetryable(err error) bool {
	return CategoryOf(err).Strategy() != StrategyNoRetry
}

// ErrCircuitOpen is returned when a call is rejected because the target's
// circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")
