package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const taskTimeout = 30 * time.Second

// Scheduler runs housekeeping tasks on cron schedules (with seconds).
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
	}
}

// Add registers task under spec. The task gets a bounded context.
func (s *Scheduler) Add(spec string, name string, task func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		if err := task(ctx); err != nil {
			s.log.Error().Err(err).Str("task", name).Msg("scheduled task failed")
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

// SweepTask adapts a MemoryStore to a scheduler task.
func SweepTask(store *MemoryStore, log zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		removed, err := store.Sweep(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Debug().Int("removed", removed).Msg("expired analysis jobs swept")
		}
		return nil
	}
}
