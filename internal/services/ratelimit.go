package services

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// UpstreamRateLimiter throttles outbound calls with a global tier and a
// per-upstream tier so one busy API cannot starve the others.
type UpstreamRateLimiter struct {
	globalLimiter *rate.Limiter
	perUpstream   *sync.Map // map[string]*rate.Limiter
	defaultRate   float64
	mu            sync.Mutex
}

// NewUpstreamRateLimiter creates a limiter allowing globalRate requests/second overall
// and defaultRate requests/second to each upstream that has no explicit limit.
// A non-positive rate is unlimited.
func NewUpstreamRateLimiter(globalRate, defaultRate float64) *UpstreamRateLimiter {
	return &UpstreamRateLimiter{
		globalLimiter: rate.NewLimiter(limitFor(globalRate), burstFor(globalRate)),
		perUpstream:   &sync.Map{},
		defaultRate:   defaultRate,
	}
}

// SetLimit sets the rate for a single upstream
func (rl *UpstreamRateLimiter) SetLimit(upstream string, perSecond float64) {
	rl.perUpstream.Store(upstream, rate.NewLimiter(limitFor(perSecond), burstFor(perSecond)))
}

// Wait blocks until both tiers admit a call to upstream or ctx ends
func (rl *UpstreamRateLimiter) Wait(ctx context.Context, upstream string) error {
	if rl == nil {
		return nil
	}
	if err := rl.globalLimiter.Wait(ctx); err != nil {
		return err
	}
	return rl.getOrCreate(upstream).Wait(ctx)
}

func (rl *UpstreamRateLimiter) getOrCreate(upstream string) *rate.Limiter {
	if limiter, ok := rl.perUpstream.Load(upstream); ok {
		return limiter.(*rate.Limiter)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.perUpstream.Load(upstream); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(limitFor(rl.defaultRate), burstFor(rl.defaultRate))
	rl.perUpstream.Store(upstream, limiter)
	return limiter
}

func burstFor(perSecond float64) int {
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return burst
}

func limitFor(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
