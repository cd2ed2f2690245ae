package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Values["jobId"].(string))
	return h.err
}

// blockingHandler holds every message until release is closed.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (h *blockingHandler) Handle(_ context.Context, _ redis.XMessage) error {
	h.calls.Add(1)
	h.started <- struct{}{}
	<-h.release
	return nil
}

func newTestConsumer(t *testing.T, handler MessageHandler) (*Consumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return newGroupConsumer(client, "worker-1", time.Minute, handler), client
}

func newGroupConsumer(client *redis.Client, name string, minIdle time.Duration, handler MessageHandler) *Consumer {
	c := NewConsumer(client, Options{
		Stream:        "analysis:tasks",
		Group:         "analysis-workers",
		Consumer:      name,
		ClaimInterval: 10 * time.Millisecond,
		MinIdle:       minIdle,
		Block:         10 * time.Millisecond,
	}, zerolog.Nop(), handler)
	return c
}

func addTask(t *testing.T, client *redis.Client, jobID string) {
	t.Helper()
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "analysis:tasks",
		Values: map[string]any{"type": "analysis", "jobId": jobID},
	}).Err())
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	c, _ := newTestConsumer(t, &recordingHandler{})
	ctx := context.Background()

	require.NoError(t, c.EnsureGroup(ctx))
	require.NoError(t, c.EnsureGroup(ctx))
}

func TestReadHandlesAndAcks(t *testing.T) {
	handler := &recordingHandler{}
	c, client := newTestConsumer(t, handler)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "analysis:tasks",
		Values: map[string]any{"type": "analysis", "jobId": "job-1"},
	}).Err())
	require.NoError(t, c.EnsureGroup(ctx))
	require.NoError(t, c.read(ctx))

	assert.Equal(t, []string{"job-1"}, handler.seen)
	pending, err := client.XPending(ctx, "analysis:tasks", "analysis-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestFailedMessageStaysPending(t *testing.T) {
	handler := &recordingHandler{err: errors.New("analyzer down")}
	c, client := newTestConsumer(t, handler)
	ctx := context.Background()

	require.NoError(t, c.EnsureGroup(ctx))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "analysis:tasks",
		Values: map[string]any{"type": "analysis", "jobId": "job-2"},
	}).Err())
	require.NoError(t, c.read(ctx))

	pending, err := client.XPending(ctx, "analysis:tasks", "analysis-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestStartStopsOnCancel(t *testing.T) {
	c, _ := newTestConsumer(t, &recordingHandler{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInFlightMessageIsNotClaimedByPeer(t *testing.T) {
	slow := newBlockingHandler()
	first, client := newTestConsumer(t, slow)
	peerHandler := &recordingHandler{}
	peer := newGroupConsumer(client, "worker-2", time.Minute, peerHandler)
	ctx := context.Background()

	require.NoError(t, first.EnsureGroup(ctx))
	addTask(t, client, "job-3")

	readDone := make(chan error, 1)
	go func() { readDone <- first.read(ctx) }()
	select {
	case <-slow.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first consumer never picked up the message")
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, peer.claimStalled(ctx))
		time.Sleep(20 * time.Millisecond)
	}
	close(slow.release)
	require.NoError(t, <-readDone)

	peerHandler.mu.Lock()
	assert.Empty(t, peerHandler.seen)
	peerHandler.mu.Unlock()
	assert.Equal(t, int32(1), slow.calls.Load())

	pending, err := client.XPending(ctx, "analysis:tasks", "analysis-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestPeerClaimsMessageAfterMinIdle(t *testing.T) {
	dead := &recordingHandler{err: errors.New("worker crashed")}
	first, client := newTestConsumer(t, dead)
	peerHandler := &recordingHandler{}
	peer := newGroupConsumer(client, "worker-2", 150*time.Millisecond, peerHandler)
	ctx := context.Background()

	require.NoError(t, first.EnsureGroup(ctx))
	addTask(t, client, "job-4")
	require.NoError(t, first.read(ctx))

	require.NoError(t, peer.claimStalled(ctx))
	assert.Empty(t, peerHandler.seen)

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, peer.claimStalled(ctx))
	assert.Equal(t, []string{"job-4"}, peerHandler.seen)

	pending, err := client.XPending(ctx, "analysis:tasks", "analysis-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestNewConsumerDefaultsMinIdle(t *testing.T) {
	c := NewConsumer(nil, Options{Stream: "s", Group: "g", Consumer: "c"}, zerolog.Nop(), &recordingHandler{})
	assert.Equal(t, defaultClaimInterval, c.opts.ClaimInterval)
	assert.Equal(t, defaultMinIdle, c.opts.MinIdle)
	assert.Equal(t, readBlock, c.opts.Block)
}
