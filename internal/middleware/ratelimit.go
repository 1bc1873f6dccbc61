package middleware

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"restaurantrec/internal/config"
	"restaurantrec/internal/services"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP) for every /api route
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Chat turns call the LLM and fan out to several upstreams
	ChatMax        int
	ChatExpiration time.Duration

	// Storage shares counters across instances. Nil keeps them in process memory.
	Storage fiber.Storage
}

// NewRateLimitConfig derives limits from configuration. Development mode relaxes them.
func NewRateLimitConfig(cfg *config.Config) *RateLimitConfig {
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	rl := &RateLimitConfig{
		GlobalAPIMax:        perMinute,
		GlobalAPIExpiration: time.Minute,
		ChatMax:             max(perMinute/3, 1),
		ChatExpiration:      time.Minute,
	}

	if cfg.Environment == "development" {
		rl.GlobalAPIMax *= 10
		rl.ChatMax *= 10
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return rl
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// ChatRateLimiter limits conversation turns per IP
func ChatRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ChatMax,
		Expiration: config.ChatExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "chat:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Chat limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many chat requests. Please wait before trying again.",
				"retry_after": int(config.ChatExpiration.Seconds()),
			})
		},
	})
}

const storageOpTimeout = 2 * time.Second

// CacheStorage adapts a services.CacheStore to fiber.Storage so limiter
// counters can live in Redis
type CacheStorage struct {
	store  services.CacheStore
	prefix string
}

// NewCacheStorage creates limiter storage over store with keys under prefix
func NewCacheStorage(store services.CacheStore, prefix string) *CacheStorage {
	return &CacheStorage{store: store, prefix: prefix}
}

func (s *CacheStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storageOpTimeout)
	defer cancel()

	val, err := s.store.Get(ctx, s.prefix+key)
	if errors.Is(err, services.ErrCacheMiss) {
		return nil, nil
	}
	return val, err
}

func (s *CacheStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageOpTimeout)
	defer cancel()
	return s.store.Set(ctx, s.prefix+key, val, exp)
}

func (s *CacheStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageOpTimeout)
	defer cancel()
	return s.store.Delete(ctx, s.prefix+key)
}

// Reset is a no-op; limiter entries expire on their own
func (s *CacheStorage) Reset() error { return nil }

// Close is a no-op; the store is owned by the caller
func (s *CacheStorage) Close() error { return nil }
