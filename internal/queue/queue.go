// Package queue carries asynchronous query jobs from the WebSocket invoke
// route to the streaming worker over a Redis Stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/metrics"
)

const (
	// DefaultStream is the Redis Stream key for query jobs.
	DefaultStream = "regadvisor:queries"
	// DefaultGroup is the worker consumer group.
	DefaultGroup = "regadvisor-workers"

	bodyField = "job"
	maxLen    = 10000
)

// Job is one queued asynchronous query bound to a client connection.
type Job struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Domain       string `json:"domain"`
	Stage        string `json:"stage"`
	Question     string `json:"question"`
	Context      string `json:"context"`
	QueryType    string `json:"query_type"`
	Timestamp    int64  `json:"timestamp"` // milliseconds
}

// Queue is a Redis Streams producer/consumer for Jobs.
type Queue struct {
	client *redis.Client
	stream string
	group  string
	logger *zap.Logger
}

// New creates a queue over the given Redis client. Empty stream/group use
// the defaults.
func New(client *redis.Client, stream, group string, logger *zap.Logger) *Queue {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	return &Queue{client: client, stream: stream, group: group, logger: logger}
}

// Enqueue appends a job to the stream. A missing job ID is assigned here.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Timestamp == 0 {
		job.Timestamp = time.Now().UnixMilli()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{bodyField: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	metrics.JobsEnqueued.Inc()
	q.logger.Info("Enqueued query job",
		zap.String("job_id", job.ID),
		zap.String("connection_id", job.ConnectionID),
		zap.String("stream_id", id),
	)
	return job.ID, nil
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job Job) error

// Consume reads jobs for this consumer until ctx is canceled. Each job is
// acked after the handler returns; handler errors are logged and the job is
// acked anyway, since streaming jobs are not retryable once the client has
// seen a terminal event.
func (q *Queue) Consume(ctx context.Context, consumer string, h Handler) error {
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}

	for {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue // block timeout, poll again
			}
			q.logger.Warn("Queue read failed, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, h)
			}
		}
	}
}

func (q *Queue) handleMessage(ctx context.Context, msg redis.XMessage, h Handler) {
	defer func() {
		if err := q.client.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
			q.logger.Warn("Failed to ack job", zap.String("stream_id", msg.ID), zap.Error(err))
		}
	}()

	raw, _ := msg.Values[bodyField].(string)
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		metrics.JobsConsumed.WithLabelValues("malformed").Inc()
		q.logger.Warn("Dropping malformed job", zap.String("stream_id", msg.ID), zap.Error(err))
		return
	}

	if err := h(ctx, job); err != nil {
		metrics.JobsConsumed.WithLabelValues("error").Inc()
		q.logger.Error("Job handler failed",
			zap.String("job_id", job.ID),
			zap.String("connection_id", job.ConnectionID),
			zap.Error(err),
		)
		return
	}
	metrics.JobsConsumed.WithLabelValues("ok").Inc()
}
