package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	AppName     string `yaml:"app_name"`
	Environment string `yaml:"environment"` // development, staging, production
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	FrontendURL string `yaml:"frontend_url"`

	// Upstream API keys
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GoogleMapsAPIKey string `yaml:"-"`
	YelpAPIKey       string `yaml:"-"`

	// Upstream base URLs (overridable for self-hosted gateways)
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	OllamaHost       string `yaml:"ollama_host"`
	GoogleBaseURL    string `yaml:"google_base_url"`
	YelpBaseURL      string `yaml:"yelp_base_url"`

	// Generation
	LLMProvider    string  `yaml:"llm_provider"` // openai, anthropic, ollama
	LLMModel       string  `yaml:"llm_model"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`

	// Embeddings
	EmbeddingProvider  string `yaml:"embedding_provider"` // openai, ollama
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// Vector database
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"` // gRPC port
	QdrantAPIKey     string `yaml:"-"`
	QdrantUseTLS     bool   `yaml:"qdrant_use_tls"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// Cache
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Durable session storage (optional)
	MongoDBURI string        `yaml:"-"`
	SessionTTL time.Duration `yaml:"session_ttl"` // idle sessions expire after this; 0 keeps them forever

	// Rate limiting
	YelpRequestsPerSecond float64 `yaml:"yelp_requests_per_second"`
	RateLimitPerMinute    int     `yaml:"rate_limit_per_minute"`

	// Search defaults
	DefaultSearchRadius int `yaml:"default_search_radius"` // meters
	DefaultSearchLimit  int `yaml:"default_search_limit"`

	// Timeouts
	UpstreamTimeout     time.Duration `yaml:"upstream_timeout"`
	EmbeddingTimeout    time.Duration `yaml:"embedding_timeout"`
	LLMTimeout          time.Duration `yaml:"llm_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		AppName:     "Restaurant-Recommendation-System",
		Environment: "development",
		Debug:       true,
		LogLevel:    "INFO",
		Host:        "0.0.0.0",
		Port:        "8000",
		FrontendURL: "http://localhost:3000",

		OpenAIBaseURL:    "https://api.openai.com/v1",
		AnthropicBaseURL: "https://api.anthropic.com/v1",
		OllamaHost:       "http://localhost:11434",
		GoogleBaseURL:    "https://maps.googleapis.com/maps/api",
		YelpBaseURL:      "https://api.yelp.com/v3",

		LLMProvider:    "openai",
		LLMModel:       "gpt-4-turbo-preview",
		LLMTemperature: 0.7,
		LLMMaxTokens:   1000,

		EmbeddingProvider:  "openai",
		EmbeddingModel:     "text-embedding-3-large",
		EmbeddingDimension: 1536,

		QdrantHost:       "localhost",
		QdrantPort:       6334,
		QdrantCollection: "restaurants",

		CacheTTL:   time.Hour,
		SessionTTL: 7 * 24 * time.Hour,

		YelpRequestsPerSecond: 5,
		RateLimitPerMinute:    60,

		DefaultSearchRadius: 5000,
		DefaultSearchLimit:  20,

		UpstreamTimeout:     30 * time.Second,
		EmbeddingTimeout:    30 * time.Second,
		LLMTimeout:          120 * time.Second,
		HealthCheckInterval: 5 * time.Minute,
	}
}

// Load builds configuration from defaults, an optional YAML file (CONFIG_FILE) and
// environment variables, in increasing order of precedence
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", getEnv("APP_ENV", cfg.Environment)))
	cfg.Debug = getBoolEnv("DEBUG", cfg.Debug)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Host = getEnv("BACKEND_HOST", cfg.Host)
	cfg.Port = getEnv("PORT", getEnv("BACKEND_PORT", cfg.Port))
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.GoogleMapsAPIKey = getEnv("GOOGLE_MAPS_API_KEY", cfg.GoogleMapsAPIKey)
	cfg.YelpAPIKey = getEnv("YELP_API_KEY", cfg.YelpAPIKey)

	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.AnthropicBaseURL = getEnv("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.GoogleBaseURL = getEnv("GOOGLE_BASE_URL", cfg.GoogleBaseURL)
	cfg.YelpBaseURL = getEnv("YELP_BASE_URL", cfg.YelpBaseURL)

	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.LLMTemperature = getFloatEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMMaxTokens = getIntEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)

	cfg.EmbeddingProvider = strings.ToLower(getEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider))
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimension = getIntEnv("EMBEDDING_DIMENSION", cfg.EmbeddingDimension)

	cfg.QdrantHost = getEnv("QDRANT_HOST", cfg.QdrantHost)
	cfg.QdrantPort = getIntEnv("QDRANT_PORT", cfg.QdrantPort)
	cfg.QdrantAPIKey = getEnv("QDRANT_API_KEY", cfg.QdrantAPIKey)
	cfg.QdrantUseTLS = getBoolEnv("QDRANT_USE_TLS", cfg.QdrantUseTLS)
	cfg.QdrantCollection = getEnv("QDRANT_COLLECTION", cfg.QdrantCollection)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	if cfg.RedisURL == "" && os.Getenv("REDIS_HOST") != "" {
		cfg.RedisURL = buildRedisURL(
			os.Getenv("REDIS_HOST"),
			getEnv("REDIS_PORT", "6379"),
			os.Getenv("REDIS_PASSWORD"),
			getEnv("REDIS_DB", "0"),
		)
	}
	cfg.CacheTTL = getSecondsEnv("CACHE_TTL", cfg.CacheTTL)

	cfg.MongoDBURI = getEnv("MONGODB_URI", cfg.MongoDBURI)
	cfg.SessionTTL = getDurationEnv("SESSION_TTL", cfg.SessionTTL)

	cfg.YelpRequestsPerSecond = getFloatEnv("YELP_REQUESTS_PER_SECOND", cfg.YelpRequestsPerSecond)
	cfg.RateLimitPerMinute = getIntEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)

	cfg.DefaultSearchRadius = getIntEnv("DEFAULT_SEARCH_RADIUS", cfg.DefaultSearchRadius)
	cfg.DefaultSearchLimit = getIntEnv("DEFAULT_SEARCH_LIMIT", cfg.DefaultSearchLimit)

	cfg.UpstreamTimeout = getDurationEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.EmbeddingTimeout = getDurationEnv("EMBEDDING_TIMEOUT", cfg.EmbeddingTimeout)
	cfg.LLMTimeout = getDurationEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.HealthCheckInterval = getDurationEnv("HEALTH_CHECK_INTERVAL", cfg.HealthCheckInterval)
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.EmbeddingProvider)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if c.QdrantCollection == "" {
		return errors.New("qdrant collection name is required")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func buildRedisURL(host, port, password, db string) string {
	if password != "" {
		return fmt.Sprintf("redis://:%s@%s:%s/%s", password, host, port, db)
	}
	return fmt.Sprintf("redis://%s:%s/%s", host, port, db)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getSecondsEnv accepts either a plain number of seconds or a Go duration string
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return getDurationEnv(key, defaultValue)
}
