package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/agents"
	"github.com/Ammar793/realestate-backend/internal/auth"
	"github.com/Ammar793/realestate-backend/internal/config"
	"github.com/Ammar793/realestate-backend/internal/httpapi"
	"github.com/Ammar793/realestate-backend/internal/kb"
	"github.com/Ammar793/realestate-backend/internal/queue"
	"github.com/Ammar793/realestate-backend/internal/routing"
	"github.com/Ammar793/realestate-backend/internal/session"
	"github.com/Ammar793/realestate-backend/internal/transport"
	"github.com/Ammar793/realestate-backend/internal/workflows"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Redis backs the job queue and session store
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// OAuth token source for the agent gateway
	tokenSource := auth.NewTokenSource(
		cfg.Auth.TokenURL,
		cfg.Auth.ClientID,
		cfg.Auth.ClientSecret,
		cfg.Auth.ExpiryMargin,
		logger,
	)

	// Routing table, optionally loaded from file and hot-reloaded on change
	rules, err := routing.LoadRules(cfg.Routing.RulesPath)
	if err != nil {
		logger.Fatal("Failed to load routing rules", zap.Error(err))
	}
	router := routing.NewRouter(rules)

	stop := make(chan struct{})
	defer close(stop)
	if cfg.Routing.RulesPath != "" {
		err := config.WatchFile(cfg.Routing.RulesPath, logger, stop, func() {
			reloaded, err := routing.LoadRules(cfg.Routing.RulesPath)
			if err != nil {
				logger.Warn("Routing rules reload failed, keeping current table", zap.Error(err))
				return
			}
			router.Reload(reloaded)
		})
		if err != nil {
			logger.Warn("Routing rules watch unavailable", zap.Error(err))
		}
	}

	kbClient := kb.NewClient(kb.Config{
		Endpoint:        cfg.KnowledgeBase.Endpoint,
		KnowledgeBaseID: cfg.KnowledgeBase.KnowledgeBaseID,
		ModelARN:        cfg.KnowledgeBase.ModelARN,
		TopK:            cfg.KnowledgeBase.TopK,
	}, logger)

	gatewayClient := agents.NewGatewayClient(cfg.AgentGateway.URL, tokenSource.AuthHeaders, logger)
	orchestrator := agents.NewOrchestrator(router, gatewayClient, logger)

	// Tool discovery is best effort; the orchestrator degrades to empty
	// tool lists when the gateway is unreachable at boot.
	loadCtx, cancelLoad := context.WithTimeout(ctx, 15*time.Second)
	orchestrator.LoadTools(loadCtx)
	cancelLoad()

	executor := workflows.NewExecutor(orchestrator, logger)

	jobQueue := queue.New(redisClient, cfg.Queue.Stream, cfg.Queue.Group, logger)
	if err := jobQueue.EnsureGroup(ctx); err != nil {
		logger.Fatal("Failed to create consumer group", zap.Error(err))
	}

	sessions := session.NewManager(redisClient, logger)
	registry := transport.NewRegistry(logger)
	registry.OnEvict(func(connectionID string) {
		evictCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sessions.Evict(evictCtx, connectionID)
	})

	mux := http.NewServeMux()
	httpapi.NewQueryHandler(kbClient, orchestrator, executor, logger).RegisterRoutes(mux)
	httpapi.NewWSHandler(registry, jobQueue, cfg.Server.Stage, logger).RegisterRoutes(mux)
	httpapi.NewConnectionsHandler(registry, logger).RegisterRoutes(mux)

	// Metrics on a separate listener
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           httpapi.LogRequests(logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Gateway listening",
			zap.String("addr", srv.Addr),
			zap.Strings("personas", orchestrator.Personas()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown incomplete", zap.Error(err))
	}
}
