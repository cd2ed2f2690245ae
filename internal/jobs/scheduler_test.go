package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	assert.Error(t, s.Add("not a cron spec", "bad", func(context.Context) error { return nil }))
	assert.NoError(t, s.Add("0 */5 * * * *", "sweep", func(context.Context) error { return nil }))
}

func TestSchedulerRunsTasks(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("* * * * * *", "tick", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled task did not run")
	}
}

func TestSweepTask(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	base := time.Now()
	store.now = func() time.Time { return base }
	_, err := store.Create(context.Background(), pendingJob("job-1", base))
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, SweepTask(store, zerolog.Nop())(context.Background()))

	store.now = func() time.Time { return base }
	_, err = store.Get(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrUnknownJob)
}
