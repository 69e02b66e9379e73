package cache

import (
	"strings"
	"time"
)

// UnsafeOperations are operation name prefixes that have side effects and are never cached.
var UnsafeOperations = []string{"write", "delete", "cancel", "update", "mutate"}

// Policy configures caching behavior.
type Policy struct {
	// DefaultTTL is the TTL to use when none is specified.
	// If zero, caching is disabled by default.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// SkipOperations lists operation name prefixes that bypass the cache.
	// Matching is case-insensitive.
	SkipOperations []string
}

// DefaultPolicy returns the default caching policy.
// DefaultTTL: 5 minutes, MaxTTL: 1 hour, SkipOperations: UnsafeOperations
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL:     5 * time.Minute,
		MaxTTL:         time.Hour,
		SkipOperations: UnsafeOperations,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache reports whether responses of operation may be cached under an
// effective TTL derived from override.
func (p Policy) ShouldCache(operation string, override time.Duration) bool {
	if p.EffectiveTTL(override) <= 0 {
		return false
	}
	op := strings.ToLower(operation)
	for _, prefix := range p.SkipOperations {
		if strings.HasPrefix(op, strings.ToLower(prefix)) {
			return false
		}
	}
	return true
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
