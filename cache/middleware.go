package cache

import (
	"context"
	"time"
)

// LoadFunc produces a response on a cache miss.
type LoadFunc func(ctx context.Context) (any, error)

// Middleware wraps downstream calls with read-through caching.
type Middleware struct {
	cache  Cache
	keyer  Keyer
	policy Policy
}

// NewMiddleware creates a cache middleware. A nil keyer uses DefaultKeyer.
func NewMiddleware(cache Cache, keyer Keyer, policy Policy) *Middleware {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &Middleware{
		cache:  cache,
		keyer:  keyer,
		policy: policy,
	}
}

// Policy returns the middleware policy.
func (m *Middleware) Policy() Policy {
	return m.policy
}

// Execute returns the cached response for (serviceType, operation, request)
// or calls load and caches its result for ttl (see Policy.EffectiveTTL).
// hit reports whether the response came from the cache. Errors are never cached,
// and a key that cannot be derived bypasses the cache.
func (m *Middleware) Execute(
	ctx context.Context,
	serviceType, operation string,
	request any,
	ttl time.Duration,
	load LoadFunc,
) (result any, hit bool, err error) {
	if m == nil || m.cache == nil || !m.policy.ShouldCache(operation, ttl) {
		result, err = load(ctx)
		return result, false, err
	}

	key, err := m.keyer.Key(serviceType, operation, request)
	if err != nil {
		result, err = load(ctx)
		return result, false, err
	}

	if cached, ok := m.cache.Get(ctx, key); ok {
		return cached, true, nil
	}

	result, err = load(ctx)
	if err != nil {
		return result, false, err
	}

	_ = m.cache.Set(ctx, key, result, m.policy.EffectiveTTL(ttl))
	return result, false, nil
}
