package health

import (
	"context"
	"time"
)

// CapabilityType identifies which part of the pipeline an upstream serves
type CapabilityType string

const (
	CapabilitySearch     CapabilityType = "search"
	CapabilityGeocode    CapabilityType = "geocode"
	CapabilityReviews    CapabilityType = "reviews"
	CapabilityEmbedding  CapabilityType = "embedding"
	CapabilityGeneration CapabilityType = "generation"
	CapabilityVector     CapabilityType = "vector"
	CapabilityCache      CapabilityType = "cache"
)

// HealthStatus represents the health state of an upstream
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusCooldown  HealthStatus = "cooldown"
	StatusUnknown   HealthStatus = "unknown"
)

// UpstreamHealth tracks the health of a single upstream+capability combination
type UpstreamHealth struct {
	Name          string         `json:"name"`
	Capability    CapabilityType `json:"capability"`
	Status        HealthStatus   `json:"status"`
	LastChecked   time.Time      `json:"last_checked,omitempty"`
	LastSuccessAt time.Time      `json:"last_success_at,omitempty"`
	FailureCount  int            `json:"failure_count"`
	LastError     string         `json:"last_error,omitempty"`
	CooldownUntil time.Time      `json:"cooldown_until,omitempty"`
	LatencyMs     int            `json:"latency_ms"`
}

// HealthCheckStrategy is an active probe for one registered upstream
type HealthCheckStrategy interface {
	// Check performs a lightweight probe.
	// Returns latency in milliseconds and any error encountered.
	Check(ctx context.Context) (latencyMs int, err error)
	Capability() CapabilityType
	Name() string
}
