package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/agents"
	"github.com/maya-ai/backend/internal/api/handlers"
	"github.com/maya-ai/backend/internal/cache/redis"
	"github.com/maya-ai/backend/internal/chat"
	"github.com/maya-ai/backend/internal/llm"
	"github.com/maya-ai/backend/internal/metrics"
	"github.com/maya-ai/backend/internal/middleware/ratelimit"
	"github.com/maya-ai/backend/internal/middleware/security"
	"github.com/maya-ai/backend/internal/middleware/validation"
	"github.com/maya-ai/backend/internal/ranking"
	"github.com/maya-ai/backend/internal/search/web"
	"github.com/maya-ai/backend/internal/storage/sqlite"
	"github.com/maya-ai/backend/internal/store/milvus"
	"github.com/maya-ai/backend/pkg/config"
	appLogger "github.com/maya-ai/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MAYA API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// The embedding cache is optional: a missing Redis degrades to direct
	// embedding calls.
	var embeddingCache ranking.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Referer:        cfg.LLM.Referer,
		AppTitle:       cfg.LLM.AppTitle,
	})

	searchKey := cfg.Search.APIKey
	if !cfg.Search.Enabled {
		searchKey = ""
	}
	searchClient := web.NewClient(
		searchKey,
		cfg.Search.MaxResults,
		time.Duration(cfg.Search.TimeoutSec)*time.Second,
	)

	pipeline := ranking.NewPipeline(llmClient, milvusClient, llmClient, embeddingCache, ranking.Config{
		DefaultTopK:   cfg.Agent.DefaultTopK,
		RetrievalPad:  cfg.Agent.RetrievalPad,
		MaxRequestedK: cfg.Agent.MaxRequestedK,
	})

	engine, err := agents.NewEngine(llmClient, pipeline, searchClient)
	if err != nil {
		appLogger.Fatal("Failed to build dispatch graph", zap.Error(err))
	}

	chatService := chat.NewService(engine, sqliteClient, cfg.Agent.HistoryLimit)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: []string{cfg.Server.AllowOrigins},
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()

	chatHandler := handlers.NewChatHandler(chatService, pipeline)
	wsHandler := handlers.NewWebSocketHandler(chatService)

	api := app.Group("/api")
	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	api.Post("/chat/agent", chatHandler.HandleAgent)
	api.Post("/chat/schemes", chatHandler.HandleSchemeSearch)
	api.Get("/history/sessions", chatHandler.GetSessions)
	api.Get("/history/:session_id", chatHandler.GetHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
