// Package cache provides read-through caching for idempotent downstream calls.
//
// Store is a Cache backed by ristretto with per-entry TTLs. DefaultKeyer
// derives keys from the service type, operation and a canonical JSON form of
// the request hashed with murmur3. Middleware combines both under a Policy
// that sets default and maximum TTLs and skips operations with side effects.
package cache
