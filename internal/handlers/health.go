package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"restaurantrec/internal/health"
	"restaurantrec/internal/models"
)

// Version is reported by the health and root endpoints
const Version = "1.0.0"

// CachePinger reports cache connectivity
type CachePinger interface {
	Connected() bool
	Ping(ctx context.Context) error
}

// VectorStatter reports vector collection statistics
type VectorStatter interface {
	Stats(ctx context.Context) (models.CollectionStats, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	appName     string
	environment string
	cache       CachePinger
	vector      VectorStatter
	upstreams   *health.Service
	timeout     time.Duration
}

// NewHealthHandler creates a new health handler. Any dependency may be nil.
func NewHealthHandler(appName, environment string, cache CachePinger, vector VectorStatter, upstreams *health.Service) *HealthHandler {
	return &HealthHandler{
		appName:     appName,
		environment: environment,
		cache:       cache,
		vector:      vector,
		upstreams:   upstreams,
		timeout:     3 * time.Second,
	}
}

// Handle responds with per-dependency status; any unhealthy dependency makes the whole "degraded"
// GET /api/v1/health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	services := fiber.Map{
		"cache":     h.cacheStatus(ctx),
		"vector_db": h.vectorStatus(ctx),
	}

	status := "healthy"
	for _, s := range services {
		if s != "healthy" {
			status = "degraded"
		}
	}

	resp := fiber.Map{
		"status":      status,
		"version":     Version,
		"environment": h.environment,
		"services":    services,
		"timestamp":   time.Now().Format(time.RFC3339),
	}
	if h.upstreams != nil {
		if h.upstreams.Overall() != "healthy" {
			resp["status"] = "degraded"
		}
		resp["upstreams"] = h.upstreams.GetAll()
	}
	return c.JSON(resp)
}

func (h *HealthHandler) cacheStatus(ctx context.Context) string {
	if h.cache == nil || !h.cache.Connected() {
		return "disconnected"
	}
	if err := h.cache.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) vectorStatus(ctx context.Context) string {
	if h.vector == nil {
		return "not_initialized"
	}
	if _, err := h.vector.Stats(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// Readiness reports whether the server can take traffic
// GET /api/v1/readiness
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if h.vectorStatus(ctx) != "healthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Liveness always succeeds while the process serves requests
// GET /api/v1/liveness
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// Root describes the running service
// GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        h.appName,
		"version":     Version,
		"status":      "running",
		"environment": h.environment,
	})
}
