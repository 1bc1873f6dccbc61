package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"restaurantrec/internal/health"
)

type countingJob struct {
	name     string
	interval time.Duration
	runs     int32
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) Run(context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return nil
}

func TestJobScheduler_RegisterAndRunNow(t *testing.T) {
	s, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer s.Stop()

	job := &countingJob{name: "count", interval: time.Hour}
	if err := s.Register(job); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := s.RunNow("count"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if atomic.LoadInt32(&job.runs) != 1 {
		t.Errorf("expected one run, got %d", job.runs)
	}

	if err := s.RunNow("missing"); err == nil {
		t.Error("unknown job should fail")
	}

	status := s.GetStatus()
	st, ok := status["count"]
	if !ok || !st.Registered || st.Interval != "1h0m0s" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestJobScheduler_RunsOnInterval(t *testing.T) {
	s, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}

	job := &countingJob{name: "fast", interval: 50 * time.Millisecond}
	if err := s.Register(job); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&job.runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if atomic.LoadInt32(&job.runs) == 0 {
		t.Error("job should have run at least once")
	}
}

func TestUpstreamHealthChecker(t *testing.T) {
	svc := health.NewService(1, time.Minute)
	svc.RegisterStrategy(health.NewPingCheck(health.CapabilityCache, "redis", time.Second, func(context.Context) error {
		return nil
	}))
	svc.RegisterStrategy(health.NewPingCheck(health.CapabilityVector, "qdrant", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	}))

	checker := NewUpstreamHealthChecker(svc, 0)
	if checker.Interval() != 5*time.Minute {
		t.Errorf("default interval = %v", checker.Interval())
	}
	if err := checker.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if checker.LastRun().IsZero() {
		t.Error("last run should be recorded")
	}
	if svc.Overall() != "degraded" {
		t.Errorf("failing probe should degrade overall status, got %s", svc.Overall())
	}
	if svc.IsInCooldown(health.CapabilityCache, "redis") {
		t.Error("healthy probe should not be in cooldown")
	}
}
