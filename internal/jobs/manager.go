package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	MessageFailed      = "analysis failed"
	MessageTimedOut    = "analysis timed out"
	MessageUnscheduled = "analysis could not be scheduled"
)

const maxJobIDLength = 128

type ManagerConfig struct {
	// StaleAfter bounds how long a job may stay pending before a status
	// read fails it, covering executors that died mid-job.
	StaleAfter time.Duration
	MaxImages  int
}

type Manager struct {
	store      Store
	dispatcher Dispatcher
	cfg        ManagerConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewManager(store Store, dispatcher Dispatcher, cfg ManagerConfig, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

func validate(jobID string, input Input, maxImages int) (Input, error) {
	if strings.TrimSpace(jobID) == "" || len(jobID) > maxJobIDLength {
		return Input{}, ErrMissingJobID
	}

	images := make([]string, 0, len(input.Images))
	for _, image := range input.Images {
		if image = strings.TrimSpace(image); image != "" {
			images = append(images, image)
		}
	}
	if len(images) == 0 {
		return Input{}, ErrNoImages
	}
	if maxImages > 0 && len(images) > maxImages {
		return Input{}, ErrTooManyImages
	}
	return Input{Images: images, Hint: strings.TrimSpace(input.Hint)}, nil
}

// Initiate registers jobID as pending and schedules the analysis. A second
// call with an id that is already registered does nothing.
func (m *Manager) Initiate(ctx context.Context, jobID string, input Input) error {
	input, err := validate(jobID, input, m.cfg.MaxImages)
	if err != nil {
		return err
	}

	now := m.now()
	job := Job{
		ID:        jobID,
		Status:    StatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := m.store.Create(ctx, job)
	if err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	if !created {
		m.log.Debug().Str("job_id", jobID).Msg("analysis job already registered")
		return nil
	}

	if err := m.dispatcher.Dispatch(ctx, job); err != nil {
		m.log.Error().Err(err).Str("job_id", jobID).Msg("dispatch analysis job failed")
		if ferr := m.store.Fail(context.WithoutCancel(ctx), jobID, MessageUnscheduled, m.now()); ferr != nil {
			m.log.Error().Err(ferr).Str("job_id", jobID).Msg("mark undispatched job failed")
		}
		return fmt.Errorf("dispatch job: %w", err)
	}

	m.log.Info().Str("job_id", jobID).Int("images", len(input.Images)).Msg("analysis job registered")
	return nil
}

// CheckStatus is a read of the current job state. Pending jobs older than
// StaleAfter are failed here so a poller always reaches a terminal state.
func (m *Manager) CheckStatus(ctx context.Context, jobID string) (Job, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != StatusPending || m.cfg.StaleAfter <= 0 {
		return job, nil
	}
	if m.now().Sub(job.CreatedAt) < m.cfg.StaleAfter {
		return job, nil
	}

	err = m.store.Fail(ctx, jobID, MessageTimedOut, m.now())
	if err != nil && !errors.Is(err, ErrJobFinished) {
		return Job{}, err
	}
	if err == nil {
		m.log.Warn().Str("job_id", jobID).Msg("stale analysis job failed")
	}
	return m.store.Get(ctx, jobID)
}
