package jobs

import (
	"context"
	"log"
	"time"

	"restaurantrec/internal/health"
)

// UpstreamHealthChecker periodically probes every upstream registered with a check strategy
type UpstreamHealthChecker struct {
	healthService *health.Service
	interval      time.Duration
	lastRun       time.Time
}

// NewUpstreamHealthChecker creates a new upstream health checker job
func NewUpstreamHealthChecker(healthService *health.Service, interval time.Duration) *UpstreamHealthChecker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &UpstreamHealthChecker{
		healthService: healthService,
		interval:      interval,
	}
}

func (u *UpstreamHealthChecker) Name() string            { return "upstream-health" }
func (u *UpstreamHealthChecker) Interval() time.Duration { return u.interval }

// Run executes the registered probes and logs a summary
func (u *UpstreamHealthChecker) Run(ctx context.Context) error {
	log.Println("[HEALTH-JOB] Starting upstream health checks...")
	u.lastRun = time.Now()

	failures := u.healthService.CheckAll(ctx)
	if err := ctx.Err(); err != nil {
		log.Println("[HEALTH-JOB] Cancelled")
		return err
	}

	for key, err := range failures {
		log.Printf("[HEALTH-JOB] %s: FAILED (%v)", key, err)
	}

	checked := len(u.healthService.GetAll())
	log.Printf("[HEALTH-JOB] Health checks complete: %d upstreams, %d failed, overall %s",
		checked, len(failures), u.healthService.Overall())
	return nil
}

// LastRun reports when the job last started
func (u *UpstreamHealthChecker) LastRun() time.Time {
	return u.lastRun
}
