package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test:queries", "test-workers", zap.NewNop()), mr
}

func TestEnqueueAssignsJobID(t *testing.T) {
	q, mr := testQueue(t)

	id, err := q.Enqueue(context.Background(), Job{
		ConnectionID: "conn-1",
		Question:     "zoning rules?",
		QueryType:    "property",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// The job landed on the stream.
	assert.Equal(t, 1, len(mr.Keys()))
}

func TestEnqueueConsumeRoundtrip(t *testing.T) {
	q, _ := testQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.EnsureGroup(ctx))

	want := Job{
		ConnectionID: "conn-42",
		Question:     "what permits do I need",
		Context:      "single family home",
		QueryType:    "property",
	}
	id, err := q.Enqueue(ctx, want)
	require.NoError(t, err)

	got := make(chan Job, 1)
	go func() {
		_ = q.Consume(ctx, "worker-1", func(_ context.Context, job Job) error {
			got <- job
			return nil
		})
	}()

	select {
	case job := <-got:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, "conn-42", job.ConnectionID)
		assert.Equal(t, "what permits do I need", job.Question)
		assert.Equal(t, "single family home", job.Context)
		assert.Equal(t, "property", job.QueryType)
		assert.NotZero(t, job.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not consumed")
	}
}

func TestEnsureGroupIdempotent(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnsureGroup(ctx))
	require.NoError(t, q.EnsureGroup(ctx))
}

func TestConsumeAcksFailedJobs(t *testing.T) {
	q, _ := testQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.EnsureGroup(ctx))
	_, err := q.Enqueue(ctx, Job{ConnectionID: "conn-1", Question: "q"})
	require.NoError(t, err)

	handled := make(chan struct{}, 1)
	go func() {
		_ = q.Consume(ctx, "worker-1", func(_ context.Context, _ Job) error {
			handled <- struct{}{}
			return assert.AnError
		})
	}()

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not consumed")
	}

	// Give the ack a moment, then verify nothing is left pending for a
	// fresh read.
	time.Sleep(100 * time.Millisecond)
	pending := q.client.XPending(ctx, q.stream, q.group)
	require.NoError(t, pending.Err())
	assert.Zero(t, pending.Val().Count)
}

func TestDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := New(client, "", "", zap.NewNop())
	assert.Equal(t, DefaultStream, q.stream)
	assert.Equal(t, DefaultGroup, q.group)
}
