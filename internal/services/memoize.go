package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheKey derives a deterministic key from a function identity and its arguments.
// Positional args are order-sensitive; kwargs are encoded with sorted keys so
// only their content matters.
func CacheKey(prefix, name string, args []any, kwargs map[string]any) string {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	pos, err := json.Marshal(args)
	if err != nil {
		pos = []byte(fmt.Sprintf("%v", args))
	}
	kw, err := json.Marshal(kwargs)
	if err != nil {
		kw = []byte(fmt.Sprintf("%v", kwargs))
	}

	return fmt.Sprintf("%s%s:%s:%s", prefix, name, pos, kw)
}

// flightTimeout bounds a shared producer run, which outlives the caller that
// started it.
const flightTimeout = 30 * time.Second

// Memoize is a cache-aside read: on a hit it returns the cached value without
// calling produce; on a miss it calls produce, stores the result for ttl and
// returns it. Concurrent misses for the same key share a single produce call.
// Producer errors are returned and never cached; store failures are logged
// and swallowed.
//
// The shared call is detached from any one caller's cancellation, and each
// caller stops waiting only when its own ctx is done. Callers that shared a
// call each get their own copy of the result.
func Memoize[T any](ctx context.Context, c *CacheService, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	var zero T
	if !c.Connected() {
		return produce(ctx)
	}

	var cached T
	if c.Get(ctx, key, &cached) {
		log.Printf("🎯 [CACHE] Hit for %s", key)
		return cached, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		result, err := produce(flightCtx)
		if err != nil {
			return result, err
		}
		if c.Set(flightCtx, key, result, ttl) {
			log.Printf("💾 [CACHE] Cached result for %s", key)
		}
		return result, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	result, ok := res.Val.(T)
	if !ok {
		return zero, fmt.Errorf("memoized value for %s has unexpected type %T", key, res.Val)
	}
	if !res.Shared {
		return result, nil
	}
	return cloneValue(result)
}

// cloneValue deep-copies v through its JSON form, the same form cache hits
// are decoded from.
func cloneValue[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("failed to copy memoized value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to copy memoized value: %w", err)
	}
	return out, nil
}
