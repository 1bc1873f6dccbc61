package preflight

import (
	"context"
	"fmt"
	"log"
	"time"

	"restaurantrec/internal/config"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is anything with a cheap liveness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Initializer prepares a dependency for first use
type Initializer interface {
	EnsureReady(ctx context.Context) error
}

// Checker performs pre-flight checks before server starts.
// Nil dependencies are reported as not configured.
type Checker struct {
	cfg      *config.Config
	cache    Pinger
	vector   Initializer
	sessions Pinger
	timeout  time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config, cache Pinger, vector Initializer, sessions Pinger) *Checker {
	return &Checker{
		cfg:      cfg,
		cache:    cache,
		vector:   vector,
		sessions: sessions,
		timeout:  10 * time.Second,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkConfiguration(),
		c.checkAPIKeys(),
		c.checkCache(ctx),
		c.checkVectorIndex(ctx),
		c.checkSessionStore(ctx),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkConfiguration() CheckResult {
	if c.cfg == nil {
		return CheckResult{Name: "Configuration", Status: "fail", Message: "No configuration loaded"}
	}
	if err := c.cfg.Validate(); err != nil {
		return CheckResult{
			Name:    "Configuration",
			Status:  "fail",
			Message: "Configuration is invalid",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Configuration",
		Status:  "pass",
		Message: fmt.Sprintf("LLM=%s/%s, embeddings=%s/%s (%d dims)", c.cfg.LLMProvider, c.cfg.LLMModel, c.cfg.EmbeddingProvider, c.cfg.EmbeddingModel, c.cfg.EmbeddingDimension),
	}
}

// checkAPIKeys warns about missing upstream credentials. Retrieval still runs
// without them but the affected source always comes back empty.
func (c *Checker) checkAPIKeys() CheckResult {
	if c.cfg == nil {
		return CheckResult{Name: "API Keys", Status: "warning", Message: "No configuration loaded"}
	}

	var missing []string
	if c.cfg.YelpAPIKey == "" {
		missing = append(missing, "YELP_API_KEY")
	}
	if c.cfg.GoogleMapsAPIKey == "" {
		missing = append(missing, "GOOGLE_MAPS_API_KEY")
	}
	if c.cfg.LLMProvider == "openai" || c.cfg.EmbeddingProvider == "openai" {
		if c.cfg.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	}
	if c.cfg.LLMProvider == "anthropic" && c.cfg.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:    "API Keys",
			Status:  "warning",
			Message: fmt.Sprintf("Missing environment variables: %v", missing),
		}
	}
	return CheckResult{Name: "API Keys", Status: "pass", Message: "All upstream credentials set"}
}

// checkCache never fails: a missing or unreachable cache only disables memoization
func (c *Checker) checkCache(ctx context.Context) CheckResult {
	if c.cache == nil {
		return CheckResult{Name: "Cache", Status: "warning", Message: "No cache configured, memoization disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.cache.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Cache",
			Status:  "warning",
			Message: "Cache unreachable, lookups will miss",
			Error:   err,
		}
	}
	return CheckResult{Name: "Cache", Status: "pass", Message: "Cache reachable"}
}

func (c *Checker) checkVectorIndex(ctx context.Context) CheckResult {
	if c.vector == nil {
		return CheckResult{Name: "Vector Index", Status: "fail", Message: "No vector index configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.vector.EnsureReady(ctx); err != nil {
		return CheckResult{
			Name:    "Vector Index",
			Status:  "fail",
			Message: "Vector index could not be initialized",
			Error:   err,
		}
	}
	return CheckResult{Name: "Vector Index", Status: "pass", Message: "Collection ready"}
}

func (c *Checker) checkSessionStore(ctx context.Context) CheckResult {
	if c.sessions == nil {
		return CheckResult{Name: "Session Store", Status: "pass", Message: "Using in-memory sessions"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.sessions.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Session Store",
			Status:  "fail",
			Message: "Cannot reach session database",
			Error:   err,
		}
	}
	return CheckResult{Name: "Session Store", Status: "pass", Message: "Session database reachable"}
}
