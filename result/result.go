package result

import (
	"errors"
	"time"

	"github.com/jonwraymond/flowops/resilience"
)

// Result is the envelope returned by every orchestrator operation.
type Result struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorInfo describes a failure in caller-facing terms.
type ErrorInfo struct {
	// Code is a category or a synthetic orchestration code.
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Metadata correlates a result with its request.
type Metadata struct {
	RequestID      string        `json:"requestId,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	ProcessingTime time.Duration `json:"processingTime"`
	Region         string        `json:"region,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any, md Metadata) Result {
	return Result{Success: true, Data: data, Metadata: md}
}

// Fail wraps err using the default retry policy for Retryable.
func Fail(err error, md Metadata) Result {
	return FailWith(err, md, resilience.DefaultRetryPolicy())
}

// FailWith wraps err; Retryable reflects policy, or the error's own flag.
func FailWith(err error, md Metadata, policy resilience.RetryPolicy) Result {
	return Result{Error: Info(err, md.Timestamp, policy), Metadata: md}
}

// Info builds the ErrorInfo for err. A nil err yields nil.
func Info(err error, ts time.Time, policy resilience.RetryPolicy) *ErrorInfo {
	if err == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	info := &ErrorInfo{
		Code:      resilience.CodeOf(err),
		Message:   err.Error(),
		Retryable: policy.Retryable(err),
		Timestamp: ts,
	}

	var e *resilience.Error
	if errors.As(err, &e) {
		if e.Message != "" {
			info.Message = e.Message
		}
		info.Retryable = info.Retryable || e.Retryable
		info.Details = e.Details
	}
	return info
}
