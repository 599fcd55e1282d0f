package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
)

// HTTPError is implemented by errors that carry an HTTP status code.
// Provider SDK errors typically satisfy this.
type HTTPError interface {
	error
	StatusCode() int
}

// CodedError is implemented by errors that carry a provider error code
// (e.g. "Throttling", "UnauthorizedOperation").
type CodedError interface {
	error
	ErrorCode() string
}

// Classifier maps raw provider errors to an ErrorCategory. Classification
// order: already-classified errors, provider codes, HTTP status, Go error
// types, then message heuristics.
type Classifier struct {
	codes map[string]ErrorCategory
}

// NewClassifier creates a classifier seeded with the default provider
// code table.
func NewClassifier() *Classifier {
	return &Classifier{codes: defaultCodeTable()}
}

// RegisterCode adds or overrides a provider code mapping.
func (c *Classifier) RegisterCode(code string, category ErrorCategory) {
	c.codes[code] = category
}

// Classify returns the category for an error. A nil error has no category
// and returns CategoryUnknown.
func (c *Classifier) Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Category
	}

	var coded CodedError
	if errors.As(err, &coded) {
		if cat, ok := c.codes[coded.ErrorCode()]; ok {
			return cat
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryNetwork
	}

	return classifyMessage(err.Error())
}

// Wrap classifies err and wraps it in a *Error carrying the operation
// context. Already-classified errors are returned unchanged.
func (c *Classifier) Wrap(err error, operation string) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return NewError(c.Classify(err), "call failed", err).WithOperation(operation)
}

func classifyStatus(status int) ErrorCategory {
	switch {
	case status == 401:
		return CategoryAuthentication
	case status == 403:
		return CategoryAuthorization
	case status == 404 || status == 409 || status == 410:
		return CategoryResource
	case status == 408:
		return CategoryTimeout
	case status == 429:
		return CategoryThrottling
	case status >= 400 && status < 500:
		return CategoryClient
	case status == 503:
		return CategoryTransient
	case status >= 500:
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

// classifyMessage is the last-resort heuristic over the error text.
func classifyMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "throttl"), strings.Contains(lower, "rate exceeded"),
		strings.Contains(lower, "too many requests"):
		return CategoryThrottling
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"),
		strings.Contains(lower, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"), strings.Contains(lower, "broken pipe"):
		return CategoryNetwork
	case strings.Contains(lower, "access denied"), strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "forbidden"):
		return CategoryAuthorization
	case strings.Contains(lower, "expired token"), strings.Contains(lower, "invalid credential"),
		strings.Contains(lower, "auth failure"):
		return CategoryAuthentication
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return CategoryResource
	case strings.Contains(lower, "service unavailable"), strings.Contains(lower, "internal error"),
		strings.Contains(lower, "internal failure"):
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

// defaultCodeTable covers the provider error codes the executor most often
// sees from fleet mutation calls.
func defaultCodeTable() map[string]ErrorCategory {
	return map[string]ErrorCategory{
		// Throttling
		"Throttling":                CategoryThrottling,
		"ThrottlingException":       CategoryThrottling,
		"RequestLimitExceeded":      CategoryThrottling,
		"TooManyRequestsException":  CategoryThrottling,
		"SlowDown":                  CategoryThrottling,
		"ProvisionedThroughputExceededException": CategoryThrottling,

		// Authentication
		"AuthFailure":            CategoryAuthentication,
		"InvalidClientTokenId":   CategoryAuthentication,
		"ExpiredToken":           CategoryAuthentication,
		"ExpiredTokenException":  CategoryAuthentication,
		"SignatureDoesNotMatch":  CategoryAuthentication,

		// Authorization
		"UnauthorizedOperation": CategoryAuthorization,
		"AccessDenied":          CategoryAuthorization,
		"AccessDeniedException": CategoryAuthorization,

		// Client
		"ValidationError":        CategoryClient,
		"ValidationException":    CategoryClient,
		"InvalidParameterValue":  CategoryClient,
		"InvalidParameterCombination": CategoryClient,
		"MalformedQueryString":   CategoryClient,
		"MissingParameter":       CategoryClient,

		// Resource
		"ResourceNotFound":             CategoryResource,
		"ResourceNotFoundException":    CategoryResource,
		"InvalidInstanceID.NotFound":   CategoryResource,
		"InvalidVolume.NotFound":       CategoryResource,
		"DBInstanceNotFound":           CategoryResource,
		"NoSuchEntity":                 CategoryResource,
		"IncorrectInstanceState":       CategoryResource,
		"IncorrectState":               CategoryResource,

		// Server
		"InternalError":       CategoryServer,
		"InternalFailure":     CategoryServer,
		"ServiceUnavailable":  CategoryTransient,
		"ServiceFailure":      CategoryServer,
		"Unavailable":         CategoryTransient,

		// Timeout
		"RequestTimeout":          CategoryTimeout,
		"RequestTimeoutException": CategoryTimeout,
		"RequestExpired":          CategoryTimeout,
	}
}
