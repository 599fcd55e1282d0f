package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeCodedError struct{ code string }

func (e *fakeCodedError) Error() string     { return "provider error: " + e.code }
func (e *fakeCodedError) ErrorCode() string { return e.code }

type fakeHTTPError struct{ status int }

func (e *fakeHTTPError) Error() string   { return fmt.Sprintf("http %d", e.status) }
func (e *fakeHTTPError) StatusCode() int { return e.status }

func TestClassifyProviderCodes(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		code string
		want ErrorCategory
	}{
		{"Throttling", CategoryThrottling},
		{"RequestLimitExceeded", CategoryThrottling},
		{"AuthFailure", CategoryAuthentication},
		{"ExpiredToken", CategoryAuthentication},
		{"UnauthorizedOperation", CategoryAuthorization},
		{"AccessDenied", CategoryAuthorization},
		{"ValidationError", CategoryClient},
		{"InvalidParameterValue", CategoryClient},
		{"InvalidInstanceID.NotFound", CategoryResource},
		{"IncorrectInstanceState", CategoryResource},
		{"InternalError", CategoryServer},
		{"ServiceUnavailable", CategoryTransient},
		{"RequestTimeout", CategoryTimeout},
	}

	for _, tt := range tests {
		if got := c.Classify(&fakeCodedError{code: tt.code}); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		status int
		want   ErrorCategory
	}{
		{401, CategoryAuthentication},
		{403, CategoryAuthorization},
		{404, CategoryResource},
		{408, CategoryTimeout},
		{429, CategoryThrottling},
		{400, CategoryClient},
		{422, CategoryClient},
		{500, CategoryServer},
		{503, CategoryTransient},
	}

	for _, tt := range tests {
		if got := c.Classify(&fakeHTTPError{status: tt.status}); got != tt.want {
			t.Errorf("Classify(http %d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestClassifyGoErrors(t *testing.T) {
	c := NewClassifier()

	if got := c.Classify(context.DeadlineExceeded); got != CategoryTimeout {
		t.Errorf("Classify(DeadlineExceeded) = %s, want timeout_error", got)
	}
	if got := c.Classify(errors.New("dial tcp: connection refused")); got != CategoryNetwork {
		t.Errorf("Classify(connection refused) = %s, want network_error", got)
	}
	if got := c.Classify(errors.New("something inexplicable")); got != CategoryUnknown {
		t.Errorf("Classify(unknown) = %s, want unknown", got)
	}
}

func TestClassifyPreservesClassifiedErrors(t *testing.T) {
	c := NewClassifier()
	err := NewError(CategoryResource, "instance gone", nil)
	if got := c.Classify(fmt.Errorf("wrapped: %w", err)); got != CategoryResource {
		t.Errorf("Classify(wrapped classified) = %s, want resource_error", got)
	}
}

func TestStrategyTable(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     RecoveryStrategy
	}{
		{CategoryAuthentication, StrategyNoRetry},
		{CategoryAuthorization, StrategyNoRetry},
		{CategoryClient, StrategyNoRetry},
		{CategoryResource, StrategyNoRetry},
		{CategoryThrottling, StrategyExponentialBackoff},
		{CategoryTransient, StrategyExponentialBackoff},
		{CategoryServer, StrategyExponentialBackoff},
		{CategoryNetwork, StrategyExponentialBackoff},
		{CategoryUnknown, StrategyExponentialBackoff},
		{CategoryTimeout, StrategyLinearBackoff},
	}

	for _, tt := range tests {
		if got := tt.category.Strategy(); got != tt.want {
			t.Errorf("%s.Strategy() = %s, want %s", tt.category, got, tt.want)
		}
	}
}

func TestWrapAddsOperationContext(t *testing.T) {
	c := NewClassifier()
	wrapped := c.Wrap(&fakeCodedError{code: "Throttling"}, "stop-instance")

	var classified *Error
	if !errors.As(wrapped, &classified) {
		t.Fatal("Wrap did not produce a classified error")
	}
	if classified.Category != CategoryThrottling {
		t.Errorf("category = %s, want throttling", classified.Category)
	}
	if classified.Operation != "stop-instance" {
		t.Errorf("operation = %q, want stop-instance", classified.Operation)
	}
}
