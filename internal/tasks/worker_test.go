package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knitkart/internal/jobs"
	"knitkart/internal/models"
	"knitkart/internal/queue"
)

type slowAnalyzer struct {
	delay time.Duration
	calls atomic.Int32
}

func (a *slowAnalyzer) Analyze(ctx context.Context, _ jobs.Input) (models.ProductAnalysis, error) {
	a.calls.Add(1)
	select {
	case <-time.After(a.delay):
		return models.ProductAnalysis{Title: "Fair Isle Mittens"}, nil
	case <-ctx.Done():
		return models.ProductAnalysis{}, ctx.Err()
	}
}

func TestTwoWorkersRunSlowJobOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	const stream = "analysis:tasks"
	timeout := time.Second
	store := jobs.NewRedisStore(client, "", time.Hour)
	analyzer := &slowAnalyzer{delay: 400 * time.Millisecond}
	executor := jobs.NewExecutor(store, analyzer, timeout, zerolog.Nop())
	manager := jobs.NewManager(store, jobs.NewStreamDispatcher(client, stream), jobs.ManagerConfig{StaleAfter: time.Minute, MaxImages: 4}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for _, name := range []string{"worker-1", "worker-2"} {
		consumer := queue.NewConsumer(client, queue.Options{
			Stream:        stream,
			Group:         "analysis-workers",
			Consumer:      name,
			ClaimInterval: 20 * time.Millisecond,
			MinIdle:       timeout + jobs.WriteTimeout + time.Second,
			Block:         20 * time.Millisecond,
		}, zerolog.Nop(), NewProcessor(store, executor, zerolog.Nop()))
		require.NoError(t, consumer.EnsureGroup(ctx))
		go func() { _ = consumer.Start(ctx) }()
	}

	require.NoError(t, manager.Initiate(ctx, "job-1", jobs.Input{Images: []string{"2026/03/14/a.jpg"}}))

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), "job-1")
		return err == nil && job.Status == jobs.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), analyzer.calls.Load())

	pending, err := client.XPending(context.Background(), stream, "analysis-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
