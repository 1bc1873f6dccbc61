package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by a CacheStore when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is a raw key/value store with per-entry expiry
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

const defaultCacheOpTimeout = 2 * time.Second

// CacheService is the application cache. Every operation degrades to a miss or
// false when the store is absent or failing; callers must treat a miss as
// "recompute", never as "value does not exist".
type CacheService struct {
	store      CacheStore
	defaultTTL time.Duration
	opTimeout  time.Duration
	group      singleflight.Group
}

// NewCacheService creates a cache over store. A nil store disables caching.
func NewCacheService(store CacheStore, defaultTTL time.Duration) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &CacheService{
		store:      store,
		defaultTTL: defaultTTL,
		opTimeout:  defaultCacheOpTimeout,
	}
}

// Connected reports whether a backing store is configured
func (c *CacheService) Connected() bool {
	return c != nil && c.store != nil
}

// Ping checks the backing store
func (c *CacheService) Ping(ctx context.Context) error {
	if !c.Connected() {
		return errors.New("cache store not configured")
	}
	return c.store.Ping(ctx)
}

// DefaultTTL returns the TTL applied when a caller passes zero
func (c *CacheService) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get decodes the cached value for key into dest and reports a hit
func (c *CacheService) Get(ctx context.Context, key string, dest any) bool {
	if !c.Connected() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("⚠️  [CACHE] Get error for key %s: %v", key, err)
		}
		recordCacheLookup(false)
		return false
	}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		recordCacheLookup(false)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("⚠️  [CACHE] Corrupt value for key %s: %v", key, err)
		recordCacheLookup(false)
		return false
	}

	recordCacheLookup(true)
	return true
}

// Set stores value under key for ttl (zero means the default TTL)
func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Connected() {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("⚠️  [CACHE] Cannot serialize value for key %s: %v", key, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		log.Printf("⚠️  [CACHE] Set error for key %s: %v", key, err)
		return false
	}
	return true
}

// Delete removes key
func (c *CacheService) Delete(ctx context.Context, key string) bool {
	if !c.Connected() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Delete(ctx, key); err != nil {
		log.Printf("⚠️  [CACHE] Delete error for key %s: %v", key, err)
		return false
	}
	return true
}

// Exists reports whether an unexpired entry is stored under key
func (c *CacheService) Exists(ctx context.Context, key string) bool {
	if !c.Connected() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	found, err := c.store.Exists(ctx, key)
	if err != nil {
		log.Printf("⚠️  [CACHE] Exists check error for key %s: %v", key, err)
		return false
	}
	return found
}

func recordCacheLookup(hit bool) {
	if m := GetMetrics(); m != nil {
		m.RecordCacheLookup(hit)
	}
}
