package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"restaurantrec/internal/config"
	"restaurantrec/internal/database"
	"restaurantrec/internal/handlers"
	"restaurantrec/internal/health"
	"restaurantrec/internal/jobs"
	"restaurantrec/internal/logging"
	"restaurantrec/internal/middleware"
	"restaurantrec/internal/preflight"
	"restaurantrec/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// Structured logging (JSON in production, text in dev)
	logging.Init(cfg.Environment, cfg.LogLevel)

	log.Printf("🚀 Starting %s (env: %s, port: %s)", cfg.AppName, cfg.Environment, cfg.Port)

	services.InitMetrics()

	// Cache: Redis when reachable, in-process otherwise
	var redisService *services.RedisService
	var cacheStore services.CacheStore
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, falling back to in-memory cache: %v", err)
			redisService = nil
		} else {
			cacheStore = redisService
		}
	}
	if cacheStore == nil {
		cacheStore = services.NewMemoryCacheStore(cfg.CacheTTL, 10*time.Minute)
		log.Println("📦 Using in-memory cache")
	}
	cacheService := services.NewCacheService(cacheStore, cfg.CacheTTL)

	// Upstream clients
	upstreamLimiter := services.NewUpstreamRateLimiter(50, 10)
	upstreamLimiter.SetLimit("yelp", cfg.YelpRequestsPerSecond)

	yelpService := services.NewYelpService(cfg.YelpBaseURL, cfg.YelpAPIKey, cfg.UpstreamTimeout, upstreamLimiter, cacheService)

	var googleService *services.GoogleMapsService
	if cfg.GoogleMapsAPIKey != "" {
		googleService = services.NewGoogleMapsService(cfg.GoogleBaseURL, cfg.GoogleMapsAPIKey, cfg.UpstreamTimeout, upstreamLimiter, cacheService)
	} else {
		log.Println("⚠️  GOOGLE_MAPS_API_KEY not set - geocoding disabled")
	}

	embedder, err := services.NewEmbedder(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize embedder: %v", err)
	}

	generator, err := services.NewGenerator(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize %s generator: %v", cfg.LLMProvider, err)
	}

	qdrantBackend, err := services.NewQdrantBackend(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create Qdrant client: %v", err)
	}
	vectorStore := services.NewVectorStore(qdrantBackend, cfg.QdrantCollection, cfg.EmbeddingDimension)
	defer vectorStore.Close()

	// Sessions: MongoDB when configured, in-process otherwise
	var sessionStore services.SessionStore
	var sessionPinger preflight.Pinger
	var mongoDB *database.MongoDB
	if cfg.MongoDBURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err = database.NewMongoDB(cfg.MongoDBURI)
		if err != nil {
			log.Printf("⚠️  Failed to connect to MongoDB: %v (sessions kept in memory)", err)
			mongoDB = nil
		} else {
			defer mongoDB.Close(context.Background())
			if err := mongoDB.Initialize(context.Background(), cfg.SessionTTL); err != nil {
				log.Printf("⚠️  Failed to initialize MongoDB indexes: %v", err)
			}
			sessionStore = services.NewMongoSessionStore(mongoDB.Collection(database.CollectionChatSessions))
			sessionPinger = mongoDB
			log.Println("✅ Chat sessions persisted to MongoDB")
		}
	}
	if sessionStore == nil {
		sessionStore = services.NewMemorySessionStore()
		log.Println("⚠️  MONGODB_URI not set or unreachable - chat sessions kept in memory")
	}

	// Run preflight checks
	checker := preflight.NewChecker(cfg, cacheService, vectorStore, sessionPinger)
	preflightCtx, cancelPreflight := context.WithTimeout(context.Background(), 30*time.Second)
	results := checker.RunAll(preflightCtx)
	cancelPreflight()

	if preflight.HasFailures(results) {
		log.Println("\n❌ Pre-flight checks failed. Please fix the issues above before starting the server.")
		os.Exit(1)
	}
	log.Println("✅ All pre-flight checks passed")

	// Upstream health tracking
	healthService := health.NewService(3, 5*time.Minute)
	healthService.Register(health.CapabilityReviews, "yelp")
	healthService.Register(health.CapabilityGeneration, cfg.LLMProvider)
	healthService.RegisterStrategy(health.NewHTTPCheck(health.CapabilitySearch, "yelp", cfg.YelpBaseURL, cfg.UpstreamTimeout))
	healthService.RegisterStrategy(health.NewPingCheck(health.CapabilityVector, "qdrant", 5*time.Second, qdrantBackend.HealthCheck))
	healthService.RegisterStrategy(health.NewPingCheck(health.CapabilityCache, "cache", 2*time.Second, cacheService.Ping))
	if googleService != nil {
		healthService.RegisterStrategy(health.NewHTTPCheck(health.CapabilityGeocode, "google", cfg.GoogleBaseURL+"/geocode/json", cfg.UpstreamTimeout))
	}
	switch cfg.EmbeddingProvider {
	case "ollama":
		healthService.RegisterStrategy(health.NewHTTPCheck(health.CapabilityEmbedding, "embedder", cfg.OllamaHost, cfg.EmbeddingTimeout))
	default:
		healthService.RegisterStrategy(health.NewHTTPCheck(health.CapabilityEmbedding, "embedder", cfg.OpenAIBaseURL+"/models", cfg.EmbeddingTimeout))
	}

	// Core services
	var geocoder services.Geocoder
	if googleService != nil {
		geocoder = googleService
	}
	ragService := services.NewRAGService(geocoder, yelpService, embedder, vectorStore, healthService, services.RAGOptions{
		SearchLimit:   cfg.DefaultSearchLimit,
		SearchRadius:  cfg.DefaultSearchRadius,
		SourceTimeout: cfg.UpstreamTimeout,
	})
	chatService := services.NewChatService(ragService, generator, sessionStore)
	log.Printf("✅ Chat service initialized (llm: %s/%s, embeddings: %s/%s)",
		cfg.LLMProvider, cfg.LLMModel, cfg.EmbeddingProvider, cfg.EmbeddingModel)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  cfg.LLMTimeout + 30*time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("restaurantrec")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = cfg.FrontendURL
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	// Rate limiting. Counters live in Redis when available so replicas share them.
	rateLimitConfig := middleware.NewRateLimitConfig(cfg)
	if redisService != nil {
		rateLimitConfig.Storage = middleware.NewCacheStorage(redisService, "ratelimit:")
	}
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	log.Printf("🛡️  [RATE-LIMIT] Global=%d/%s, Chat=%d/%s",
		rateLimitConfig.GlobalAPIMax, rateLimitConfig.GlobalAPIExpiration,
		rateLimitConfig.ChatMax, rateLimitConfig.ChatExpiration)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppName, cfg.Environment, cacheService, vectorStore, healthService)
	chatHandler := handlers.NewChatHandler(chatService, cfg.LLMTimeout+cfg.UpstreamTimeout)
	var places handlers.PlacesSearcher
	if googleService != nil {
		places = googleService
	}
	restaurantHandler := handlers.NewRestaurantHandler(yelpService, places, cfg.UpstreamTimeout)
	vectorHandler := handlers.NewVectorHandler(vectorStore, embedder, cfg.EmbeddingTimeout)

	app.Get("/", healthHandler.Root)

	api := app.Group("/api/v1")
	{
		api.Get("/health", healthHandler.Handle)
		api.Get("/readiness", healthHandler.Readiness)
		api.Get("/liveness", healthHandler.Liveness)

		// Chat
		api.Post("/chat", middleware.ChatRateLimiter(rateLimitConfig), chatHandler.Chat)
		api.Get("/chat/session/:id", chatHandler.GetSession)
		api.Delete("/chat/session/:id", chatHandler.DeleteSession)

		// Restaurants (fixed paths before /:id)
		api.Post("/restaurants/search", restaurantHandler.Search)
		api.Get("/restaurants/nearby", restaurantHandler.Nearby)
		api.Get("/restaurants/autocomplete", restaurantHandler.Autocomplete)
		api.Get("/restaurants/places", restaurantHandler.Places)
		api.Get("/restaurants/:id", restaurantHandler.Details)

		// Location
		api.Get("/location/geocode", restaurantHandler.Geocode)
		api.Get("/location/reverse", restaurantHandler.ReverseGeocode)

		// Vector index
		api.Get("/vector/stats", vectorHandler.Stats)
		api.Post("/vector/search", vectorHandler.Search)
	}

	// Initialize background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	healthJob := jobs.NewUpstreamHealthChecker(healthService, cfg.HealthCheckInterval)
	if err := jobScheduler.Register(healthJob); err != nil {
		log.Printf("⚠️  Failed to register %s job: %v", healthJob.Name(), err)
	}
	jobScheduler.Start()
	log.Println("✅ Background job scheduler started")

	// Start server
	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/api/v1/health", cfg.Port)
	log.Printf("💬 Chat endpoint: http://localhost:%s/api/v1/chat", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	addr := cfg.Host + ":" + cfg.Port
	if strings.TrimSpace(cfg.Host) == "" {
		addr = ":" + cfg.Port
	}
	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
