package resilience

import (
	"context"
	"errors"
	"strings"
)

// Category is the failure taxonomy used for retry and breaker decisions.
type Category string

const (
	CategoryNetwork            Category = "NETWORK"
	CategoryAuthentication     Category = "AUTHENTICATION"
	CategoryAuthorization      Category = "AUTHORIZATION"
	CategoryValidation         Category = "VALIDATION"
	CategoryRateLimit          Category = "RATE_LIMIT"
	CategoryQuotaExceeded      Category = "QUOTA_EXCEEDED"
	CategoryServiceUnavailable Category = "SERVICE_UNAVAILABLE"
	CategoryTimeout            Category = "TIMEOUT"
	CategoryResourceExhausted  Category = "RESOURCE_EXHAUSTED"
	CategoryUnknown            Category = "UNKNOWN"
)

// Categories lists every category in classifier priority order, followed by UNKNOWN.
var Categories = []Category{
	CategoryRateLimit,
	CategoryQuotaExceeded,
	CategoryTimeout,
	CategoryNetwork,
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryValidation,
	CategoryServiceUnavailable,
	CategoryResourceExhausted,
	CategoryUnknown,
}

// ParseCategory converts a string into a Category. Matching is case-insensitive.
func ParseCategory(s string) (Category, bool) {
	upper := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range Categories {
		if c == upper {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// Severity ranks how serious a category is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Categorized is implemented by errors that already know their category.
type Categorized interface {
	ErrorCategory() Category
}

// Coded is implemented by errors that expose a machine-readable code,
// such as an HTTP status or provider error code.
type Coded interface {
	Code() string
}

type rule struct {
	category Category
	patterns []string
	codes    []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{CategoryRateLimit, []string{"rate limit", "ratelimit", "too many requests", "429"}, []string{"429"}},
	{CategoryQuotaExceeded, []string{"quota"}, nil},
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}, []string{"408", "504"}},
	{CategoryNetwork, []string{"network", "connection", "econnrefused", "econnreset", "enotfound", "dns", "socket"}, nil},
	{CategoryAuthentication, []string{"authentication", "unauthenticated", "unauthorized", "invalid api key", "401"}, []string{"401"}},
	{CategoryAuthorization, []string{"authorization", "forbidden", "permission denied", "access denied"}, []string{"403"}},
	{CategoryValidation, []string{"validation", "invalid", "bad request", "malformed"}, []string{"400", "422"}},
	{CategoryServiceUnavailable, []string{"service unavailable", "unavailable", "bad gateway"}, []string{"502", "503"}},
	{CategoryResourceExhausted, []string{"resource exhausted", "exhausted", "out of memory", "capacity"}, nil},
}

// Classify maps err to a Category.
//
// Errors that carry a category (see Categorized) are trusted as-is. Anything
// else is classified by case-insensitive substring matching over the message
// and, when present, the Coded code.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var categorized Categorized
	if errors.As(err, &categorized) {
		if c := categorized.ErrorCategory(); c != "" {
			return c
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	code := ""
	var coded Coded
	if errors.As(err, &coded) {
		code = strings.ToLower(strings.TrimSpace(coded.Code()))
	}

	return classifyText(strings.ToLower(err.Error()), code)
}

// ClassifyMessage classifies a raw message and optional code.
func ClassifyMessage(message, code string) Category {
	return classifyText(strings.ToLower(message), strings.ToLower(strings.TrimSpace(code)))
}

func classifyText(msg, code string) Category {
	for _, r := range rules {
		for _, c := range r.codes {
			if code == c {
				return r.category
			}
		}
		for _, p := range r.patterns {
			if strings.Contains(msg, p) || (code != "" && strings.Contains(code, p)) {
				return r.category
			}
		}
	}
	return CategoryUnknown
}

// SeverityOf returns the static severity for a category.
func SeverityOf(c Category) Severity {
	switch c {
	case CategoryAuthentication, CategoryAuthorization, CategoryServiceUnavailable:
		return SeverityHigh
	case CategoryRateLimit, CategoryQuotaExceeded:
		return SeverityMedium
	case CategoryNetwork, CategoryTimeout:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// IsFailureClass reports whether c counts toward tripping a circuit breaker.
func IsFailureClass(c Category) bool {
	switch c {
	case CategoryNetwork, CategoryServiceUnavailable, CategoryTimeout:
		return true
	}
	return false
}
