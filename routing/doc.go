// Package routing selects a service instance for each request and calls it
// through the resilience pipeline.
//
// A Router holds the configured instances in order. For a request it filters
// the enabled instances of the requested service type, lets a Strategy pick
// one, rejects unhealthy picks, and then runs the downstream Invoker under the
// instance's circuit breaker, retry policy, rate limiter, bulkhead and
// timeout. Idempotent requests can be served from a response cache.
//
// Strategies:
//
//   - round_robin: cyclic over the candidates, starting at the first
//   - priority: lowest Priority value, ties broken by configured order
//   - load_based: fewest in-flight calls
//   - adaptive: highest health weight among instances that are not unhealthy
//
// Weights start at 1.0 and move with health notifications: an instance that
// turns unhealthy keeps 80% of its weight (never below 0.1); one that turns
// healthy gains 20% (never above 1.0).
package routing
