package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrPanicked is returned when an operation panics inside a goroutine
	// owned by this package.
	ErrPanicked = errors.New("resilience: operation panicked")

	// ErrInvalidPolicy is returned when a retry policy fails validation.
	ErrInvalidPolicy = errors.New("resilience: invalid retry policy")
)

// Synthetic orchestration codes. They share the code space with Category.
const (
	CodeCircuitOpen             = "CIRCUIT_BREAKER_OPEN"
	CodeWorkflowNotFound        = "WORKFLOW_NOT_FOUND"
	CodeWorkflowConditionNotMet = "WORKFLOW_CONDITION_NOT_MET"
	CodeStepExecutionFailed     = "STEP_EXECUTION_FAILED"
	CodeWorkflowNotCancelable   = "WORKFLOW_NOT_CANCELABLE"
)

// Error is a classified failure carrying a stable code.
//
// Code is either a Category or one of the synthetic Code* constants.
// Category is what the classifier reports for the error, so a synthetic
// error can still participate in retry and breaker decisions.
type Error struct {
	Code      string
	Category  Category
	Message   string
	Retryable bool
	Details   map[string]any
	Err       error
}

// NewError creates an Error for the given category.
func NewError(category Category, message string, cause error) *Error {
	return &Error{
		Code:     string(category),
		Category: category,
		Message:  message,
		Err:      cause,
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCategory reports the classified category. It satisfies Categorized.
func (e *Error) ErrorCategory() Category {
	if e.Category == "" {
		return CategoryUnknown
	}
	return e.Category
}

// WithDetails returns a copy of e with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// CircuitOpenError builds the synthetic rejection for an open breaker.
// It is never retryable.
func CircuitOpenError(service string) *Error {
	return &Error{
		Code:     CodeCircuitOpen,
		Category: CategoryServiceUnavailable,
		Message:  fmt.Sprintf("circuit breaker open for service %q", service),
		Details:  map[string]any{"service": service},
		Err:      ErrCircuitOpen,
	}
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// CodeOf returns the stable code for err: the Code of an *Error in the chain,
// otherwise the classified category.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return string(Classify(err))
}
