package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxItems is the maximum number of cached responses.
	// Default: 10000
	MaxItems int64

	// BufferItems is the ristretto Get buffer size per shard.
	// Default: 64
	BufferItems int64
}

// Store is a Cache backed by ristretto. Every entry costs 1.
type Store struct {
	cache *ristretto.Cache
}

var _ Cache = (*Store)(nil)

// NewStore creates a ristretto-backed cache.
func NewStore(config StoreConfig) (*Store, error) {
	if config.MaxItems <= 0 {
		config.MaxItems = 10000
	}
	if config.BufferItems <= 0 {
		config.BufferItems = 64
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * config.MaxItems,
		MaxCost:     config.MaxItems,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create store: %w", err)
	}
	return &Store{cache: c}, nil
}

// Get retrieves a value. Expired entries are never returned.
func (s *Store) Get(_ context.Context, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

// Set stores a value with the given TTL. TTL<=0 is a no-op.
// Writes are buffered; a value may not be visible to Get until Wait returns.
func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if s == nil {
		return ErrNilCache
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	s.cache.SetWithTTL(key, value, 1, ttl)
	return nil
}

// Delete removes a value. Idempotent.
func (s *Store) Delete(_ context.Context, key string) error {
	if s == nil {
		return ErrNilCache
	}
	s.cache.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (s *Store) Wait() {
	s.cache.Wait()
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.cache.Clear()
}

// Close stops the store's background goroutines.
func (s *Store) Close() {
	s.cache.Close()
}
