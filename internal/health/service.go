package health

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldownDuration = 1 * time.Hour
)

// Service tracks health for every registered upstream
type Service struct {
	mu               sync.RWMutex
	healthCache      map[string]*UpstreamHealth // key: "capability:name"
	strategies       map[string]HealthCheckStrategy
	failureThreshold int
	cooldownDuration time.Duration
}

// NewService creates a new health service
func NewService(failureThreshold int, cooldownDuration time.Duration) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldownDuration <= 0 {
		cooldownDuration = defaultCooldownDuration
	}

	return &Service{
		healthCache:      make(map[string]*UpstreamHealth),
		strategies:       make(map[string]HealthCheckStrategy),
		failureThreshold: failureThreshold,
		cooldownDuration: cooldownDuration,
	}
}

func cacheKey(capability CapabilityType, name string) string {
	return fmt.Sprintf("%s:%s", capability, name)
}

// Register adds an upstream to the health cache
func (s *Service) Register(capability CapabilityType, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(capability, name)
}

func (s *Service) registerLocked(capability CapabilityType, name string) {
	key := cacheKey(capability, name)
	if _, exists := s.healthCache[key]; !exists {
		s.healthCache[key] = &UpstreamHealth{
			Name:       name,
			Capability: capability,
			Status:     StatusUnknown,
		}
		log.Printf("[HEALTH] Registered %s upstream %s", capability, name)
	}
}

// RegisterStrategy registers an upstream together with its active probe
func (s *Service) RegisterStrategy(strategy HealthCheckStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(strategy.Capability(), strategy.Name())
	s.strategies[cacheKey(strategy.Capability(), strategy.Name())] = strategy
}

// GetAll returns every registered upstream ordered by capability then name
func (s *Service) GetAll() []UpstreamHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]UpstreamHealth, 0, len(s.healthCache))
	for _, h := range s.healthCache {
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Capability != result[j].Capability {
			return result[i].Capability < result[j].Capability
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// IsAvailable reports whether calls to an upstream should be attempted
func (s *Service) IsAvailable(capability CapabilityType, name string) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.healthCache[cacheKey(capability, name)]
	if !exists {
		return true // unknown upstreams are assumed available
	}

	switch h.Status {
	case StatusCooldown:
		return time.Now().After(h.CooldownUntil)
	default:
		// unhealthy upstreams are still tried so a success can recover them
		return true
	}
}

// MarkHealthy marks an upstream as healthy after a successful request
func (s *Service) MarkHealthy(capability CapabilityType, name string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.healthCache[cacheKey(capability, name)]
	if !exists {
		return
	}

	wasUnhealthy := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = time.Now()
	h.LastChecked = time.Now()
	h.CooldownUntil = time.Time{}

	if wasUnhealthy {
		log.Printf("[HEALTH] %s upstream %s recovered - now healthy", capability, name)
	}
}

// MarkUnhealthy records a failure. Quota errors put the upstream into cooldown
// immediately; other failures mark it unhealthy after reaching the threshold.
func (s *Service) MarkUnhealthy(capability CapabilityType, name string, errMsg string, httpCode int) {
	if s == nil {
		return
	}

	if IsQuotaError(httpCode, errMsg) {
		s.recordFailure(capability, name, errMsg)
		s.SetCooldown(capability, name, ParseCooldownDuration(httpCode, errMsg))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.healthCache[cacheKey(capability, name)]
	if !exists {
		return
	}

	h.FailureCount++
	h.LastError = errMsg
	h.LastChecked = time.Now()

	if h.FailureCount >= s.failureThreshold {
		h.Status = StatusUnhealthy
		log.Printf("[HEALTH] %s upstream %s marked UNHEALTHY after %d failures: %s",
			capability, name, h.FailureCount, truncateStr(errMsg, 200))
	} else {
		log.Printf("[HEALTH] %s upstream %s failure %d/%d: %s",
			capability, name, h.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
	}
}

func (s *Service) recordFailure(capability CapabilityType, name, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, exists := s.healthCache[cacheKey(capability, name)]; exists {
		h.FailureCount++
		h.LastError = errMsg
		h.LastChecked = time.Now()
	}
}

// SetCooldown puts an upstream into cooldown (typically after a quota error).
// A non-positive duration uses the service default.
func (s *Service) SetCooldown(capability CapabilityType, name string, duration time.Duration) {
	if s == nil {
		return
	}
	if duration <= 0 {
		duration = s.cooldownDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.healthCache[cacheKey(capability, name)]
	if !exists {
		return
	}

	h.Status = StatusCooldown
	h.CooldownUntil = time.Now().Add(duration)
	h.LastChecked = time.Now()

	log.Printf("[HEALTH] %s upstream %s in COOLDOWN until %s (reason: %s)",
		capability, name, h.CooldownUntil.Format(time.RFC3339), truncateStr(h.LastError, 100))
}

// IsInCooldown checks if an upstream is currently in cooldown
func (s *Service) IsInCooldown(capability CapabilityType, name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.healthCache[cacheKey(capability, name)]
	if !exists || h.Status != StatusCooldown {
		return false
	}
	return time.Now().Before(h.CooldownUntil)
}

// CheckUpstreamHealth runs the registered probe for one upstream
func (s *Service) CheckUpstreamHealth(ctx context.Context, capability CapabilityType, name string) error {
	key := cacheKey(capability, name)

	s.mu.RLock()
	strategy, hasStrategy := s.strategies[key]
	_, exists := s.healthCache[key]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("upstream not registered: %s", key)
	}
	if !hasStrategy {
		return nil
	}

	latency, err := strategy.Check(ctx)

	s.mu.Lock()
	if h, ok := s.healthCache[key]; ok {
		h.LatencyMs = latency
	}
	s.mu.Unlock()

	if err != nil {
		s.MarkUnhealthy(capability, name, err.Error(), 0)
		return err
	}

	s.MarkHealthy(capability, name)
	return nil
}

// CheckAll probes every upstream that has a strategy and returns the failures by key
func (s *Service) CheckAll(ctx context.Context) map[string]error {
	s.mu.RLock()
	strategies := make([]HealthCheckStrategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		strategies = append(strategies, st)
	}
	s.mu.RUnlock()

	failures := make(map[string]error)
	for _, st := range strategies {
		if err := s.CheckUpstreamHealth(ctx, st.Capability(), st.Name()); err != nil {
			failures[cacheKey(st.Capability(), st.Name())] = err
		}
	}
	return failures
}

// Overall summarises all upstreams as "healthy" or "degraded"
func (s *Service) Overall() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for _, h := range s.healthCache {
		switch h.Status {
		case StatusUnhealthy:
			return "degraded"
		case StatusCooldown:
			if now.Before(h.CooldownUntil) {
				return "degraded"
			}
		}
	}
	return "healthy"
}

// GetStatus returns health status summary across all capabilities
func (s *Service) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	capStats := make(map[string]map[string]int)
	total := 0

	for _, h := range s.healthCache {
		cap := string(h.Capability)
		if capStats[cap] == nil {
			capStats[cap] = map[string]int{"healthy": 0, "unhealthy": 0, "cooldown": 0, "unknown": 0}
		}
		total++

		switch h.Status {
		case StatusHealthy:
			capStats[cap]["healthy"]++
		case StatusUnhealthy:
			capStats[cap]["unhealthy"]++
		case StatusCooldown:
			if time.Now().After(h.CooldownUntil) {
				capStats[cap]["unknown"]++
			} else {
				capStats[cap]["cooldown"]++
			}
		default:
			capStats[cap]["unknown"]++
		}
	}

	return map[string]interface{}{
		"total":        total,
		"capabilities": capStats,
	}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
