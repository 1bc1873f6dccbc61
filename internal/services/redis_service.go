package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides the shared Redis-backed cache store
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to Redis and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")

	return NewRedisServiceFromClient(client), nil
}

// NewRedisServiceFromClient wraps an existing client without pinging it
func NewRedisServiceFromClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		log.Println("Redis connection closed")
		return err
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	client := r.Client()
	if client == nil {
		return errors.New("redis client closed")
	}
	return client.Ping(ctx).Err()
}

// Get retrieves a raw value by key, returning ErrCacheMiss when absent or expired
func (r *RedisService) Get(ctx context.Context, key string) ([]byte, error) {
	client := r.Client()
	if client == nil {
		return nil, errors.New("redis client closed")
	}
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Set stores a raw value with expiration (SETEX semantics)
func (r *RedisService) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	client := r.Client()
	if client == nil {
		return errors.New("redis client closed")
	}
	return client.Set(ctx, key, value, expiration).Err()
}

// Delete removes a key
func (r *RedisService) Delete(ctx context.Context, key string) error {
	client := r.Client()
	if client == nil {
		return errors.New("redis client closed")
	}
	return client.Del(ctx, key).Err()
}

// Exists checks if a key exists in Redis
func (r *RedisService) Exists(ctx context.Context, key string) (bool, error) {
	client := r.Client()
	if client == nil {
		return false, errors.New("redis client closed")
	}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
