package services

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryCacheStore is a process-local cache store used when Redis is not
// configured or unreachable. Expired entries are never returned; the janitor
// sweeps them every cleanupInterval.
type MemoryCacheStore struct {
	cache *cache.Cache
}

// NewMemoryCacheStore creates an in-memory cache store
func NewMemoryCacheStore(defaultTTL, cleanupInterval time.Duration) *MemoryCacheStore {
	c := cache.New(defaultTTL, cleanupInterval)
	log.Printf("📦 [CACHE] Using in-memory cache store (default TTL %v)", defaultTTL)
	return &MemoryCacheStore{cache: c}
}

// Get retrieves a raw value, returning ErrCacheMiss when absent or expired
func (m *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	value, found := m.cache.Get(key)
	if !found {
		return nil, ErrCacheMiss
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Set stores a copy of value for ttl
func (m *MemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	data := make([]byte, len(value))
	copy(data, value)
	m.cache.Set(key, data, ttl)
	return nil
}

// Delete removes a key
func (m *MemoryCacheStore) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Exists checks whether an unexpired key is present
func (m *MemoryCacheStore) Exists(_ context.Context, key string) (bool, error) {
	_, found := m.cache.Get(key)
	return found, nil
}

// Ping always succeeds for the in-memory store
func (m *MemoryCacheStore) Ping(context.Context) error {
	return nil
}

// ItemCount returns the number of stored entries, including expired ones not yet swept
func (m *MemoryCacheStore) ItemCount() int {
	return m.cache.ItemCount()
}
