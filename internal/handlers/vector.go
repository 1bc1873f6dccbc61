package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"restaurantrec/internal/models"
	"restaurantrec/internal/services"
)

// VectorIndex is the read surface of the vector store used by the vector routes
type VectorIndex interface {
	VectorStatter
	services.VectorSearcher
	Collection() string
	Dimension() int
}

// VectorHandler exposes collection stats and raw similarity search
type VectorHandler struct {
	index    VectorIndex
	embedder services.Embedder
	timeout  time.Duration
}

// NewVectorHandler creates a new vector handler
func NewVectorHandler(index VectorIndex, embedder services.Embedder, timeout time.Duration) *VectorHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VectorHandler{index: index, embedder: embedder, timeout: timeout}
}

// Stats reports the collection size and status
// GET /api/v1/vector/stats
func (h *VectorHandler) Stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	stats, err := h.index.Stats(ctx)
	if err != nil {
		log.Printf("❌ [VECTOR-API] Failed to get collection stats: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Vector database unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"collection": h.index.Collection(),
		"dimension":  h.index.Dimension(),
		"stats":      stats,
	})
}

type vectorSearchRequest struct {
	Query   string              `json:"query"`
	TopK    int                 `json:"top_k"`
	Filters models.VectorFilter `json:"filters,omitempty"`
}

// Search embeds a query and returns the nearest stored points
// POST /api/v1/vector/search
func (h *VectorHandler) Search(c *fiber.Ctx) error {
	var req vectorSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}
	if req.TopK <= 0 || req.TopK > 100 {
		req.TopK = 10
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	vector, err := h.embedder.Embed(ctx, req.Query)
	if err != nil {
		log.Printf("❌ [VECTOR-API] Failed to embed query: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to embed query",
		})
	}

	matches, err := h.index.Search(ctx, vector, req.TopK, req.Filters)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrVectorIndexUnavailable) {
			status = fiber.StatusServiceUnavailable
		}
		log.Printf("❌ [VECTOR-API] Search failed: %v", err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Vector search failed",
		})
	}
	if matches == nil {
		matches = []models.VectorMatch{}
	}

	return c.JSON(fiber.Map{
		"matches": matches,
		"total":   len(matches),
	})
}
