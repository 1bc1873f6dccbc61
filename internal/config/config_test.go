package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.QdrantCollection != "restaurants" {
		t.Errorf("Expected collection 'restaurants', got %q", cfg.QdrantCollection)
	}
	if cfg.EmbeddingDimension != 1536 {
		t.Errorf("Expected dimension 1536, got %d", cfg.EmbeddingDimension)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("Expected cache TTL 1h, got %v", cfg.CacheTTL)
	}
	if cfg.DefaultSearchRadius != 5000 || cfg.DefaultSearchLimit != 20 {
		t.Errorf("Unexpected search defaults: radius=%d limit=%d", cfg.DefaultSearchRadius, cfg.DefaultSearchLimit)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_TTL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("Expected cache TTL 2m, got %v", cfg.CacheTTL)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Errorf("Expected provider 'anthropic', got %q", cfg.LLMProvider)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Errorf("Expected upstream timeout 5s, got %v", cfg.UpstreamTimeout)
	}
	if cfg.SessionTTL != 0 {
		t.Errorf("SESSION_TTL=0s should disable expiry, got %v", cfg.SessionTTL)
	}
	expectedURL := "redis://:secret@cache.internal:6379/2"
	if cfg.RedisURL != expectedURL {
		t.Errorf("Expected redis URL %q, got %q", expectedURL, cfg.RedisURL)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "qdrant_collection: eateries\ndefault_search_limit: 35\nllm_timeout: 45s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DEFAULT_SEARCH_LIMIT", "40")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.QdrantCollection != "eateries" {
		t.Errorf("Expected collection from file, got %q", cfg.QdrantCollection)
	}
	if cfg.DefaultSearchLimit != 40 {
		t.Errorf("Expected env to win over file, got %d", cfg.DefaultSearchLimit)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Errorf("Expected llm timeout 45s, got %v", cfg.LLMTimeout)
	}
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err != nil {
		t.Fatalf("Expected missing config file to be ignored, got %v", err)
	}
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLMProvider = "palm"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unsupported LLM provider")
	}

	cfg = Default()
	cfg.EmbeddingDimension = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero embedding dimension")
	}
}
