package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/agents"
	"github.com/Ammar793/realestate-backend/internal/auth"
	"github.com/Ammar793/realestate-backend/internal/config"
	"github.com/Ammar793/realestate-backend/internal/queue"
	"github.com/Ammar793/realestate-backend/internal/relay"
	"github.com/Ammar793/realestate-backend/internal/routing"
	"github.com/Ammar793/realestate-backend/internal/session"
	"github.com/Ammar793/realestate-backend/internal/streaming"
	"github.com/Ammar793/realestate-backend/internal/transport"
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

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	tokenSource := auth.NewTokenSource(
		cfg.Auth.TokenURL,
		cfg.Auth.ClientID,
		cfg.Auth.ClientSecret,
		cfg.Auth.ExpiryMargin,
		logger,
	)

	rules, err := routing.LoadRules(cfg.Routing.RulesPath)
	if err != nil {
		logger.Fatal("Failed to load routing rules", zap.Error(err))
	}
	router := routing.NewRouter(rules)

	gatewayClient := agents.NewGatewayClient(cfg.AgentGateway.URL, tokenSource.AuthHeaders, logger)
	orchestrator := agents.NewOrchestrator(router, gatewayClient, logger)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 15*time.Second)
	orchestrator.LoadTools(loadCtx)
	cancelLoad()

	sessions := session.NewManager(redisClient, logger)
	pusher := transport.NewHTTPPusher(cfg.Push.Endpoint, nil, logger)
	streamRelay := relay.New(pusher, cfg.Stream.Deadline, logger)

	jobQueue := queue.New(redisClient, cfg.Queue.Stream, cfg.Queue.Group, logger)
	if err := jobQueue.EnsureGroup(ctx); err != nil {
		logger.Fatal("Failed to create consumer group", zap.Error(err))
	}

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

	deadline := cfg.Stream.Deadline
	if deadline <= 0 {
		deadline = relay.DefaultDeadline
	}
	w := &worker{
		orchestrator: orchestrator,
		relay:        streamRelay,
		sessions:     sessions,
		deadline:     deadline,
		logger:       logger,
	}

	hostname, _ := os.Hostname()
	consumer := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	logger.Info("Worker consuming queries",
		zap.String("consumer", consumer),
		zap.String("stream", cfg.Queue.Stream),
	)

	go func() {
		if err := jobQueue.Consume(ctx, consumer, w.handle); err != nil && ctx.Err() == nil {
			logger.Fatal("Queue consumer failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down worker")
	cancel()
}

type worker struct {
	orchestrator *agents.Orchestrator
	relay        *relay.Relay
	sessions     *session.Manager
	deadline     time.Duration
	logger       *zap.Logger
}

// handle processes one queued query: stream the agent response and relay the
// events to the originating connection. The conversation is recorded in the
// connection's session as a side effect.
func (w *worker) handle(ctx context.Context, job queue.Job) error {
	w.logger.Info("Processing query",
		zap.String("job_id", job.ID),
		zap.String("connection_id", job.ConnectionID),
		zap.String("query_type", job.QueryType),
		zap.String("domain", job.Domain),
		zap.String("stage", job.Stage),
	)

	if err := w.sessions.AddMessage(ctx, job.ConnectionID, session.Message{
		Role:    "user",
		Content: job.Question,
	}); err != nil {
		w.logger.Warn("Failed to record user message", zap.Error(err))
	}

	// Generation shares the relay deadline so an abandoned stream cannot
	// outlive the response it belongs to.
	jobCtx, cancel := context.WithTimeout(ctx, w.deadline)
	defer cancel()

	events := w.orchestrator.StreamQuery(jobCtx, job.Question, job.Context, job.QueryType)

	// Tee the stream so the terminal result can be recorded without holding
	// up relay delivery.
	relayed := make(chan streaming.Event, 16)
	resultCh := make(chan *agents.Result, 1)
	go func() {
		defer close(relayed)
		for ev := range events {
			if ev.Type == streaming.EventResult {
				if r, ok := ev.Payload.(*agents.Result); ok {
					select {
					case resultCh <- r:
					default:
					}
				}
			}
			select {
			case relayed <- ev:
			case <-jobCtx.Done():
				return
			}
		}
	}()

	err := w.relay.Run(jobCtx, job.ConnectionID, relayed)
	if errors.Is(err, transport.ErrConnectionGone) {
		// The client disconnected mid-response; its conversation state is
		// dead weight in both the local cache and Redis.
		w.sessions.Evict(ctx, job.ConnectionID)
		return err
	}

	var result *agents.Result
	select {
	case result = <-resultCh:
	default:
	}
	if result != nil && result.Content != "" {
		if serr := w.sessions.AddMessage(ctx, job.ConnectionID, session.Message{
			Role:    "assistant",
			Content: result.Content,
			Agent:   result.Agent,
		}); serr != nil {
			w.logger.Warn("Failed to record assistant message", zap.Error(serr))
		}
	}
	return err
}
