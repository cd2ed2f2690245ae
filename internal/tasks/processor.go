package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"knitkart/internal/jobs"
)

type JobSource interface {
	Get(ctx context.Context, id string) (jobs.Job, error)
}

type Runner interface {
	Execute(ctx context.Context, job jobs.Job) error
}

// Processor turns stream messages into analysis executions.
type Processor struct {
	jobs   JobSource
	runner Runner
	logger zerolog.Logger
}

type TaskPayload struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

func NewProcessor(source JobSource, runner Runner, logger zerolog.Logger) *Processor {
	return &Processor{
		jobs:   source,
		runner: runner,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case jobs.TaskTypeAnalysis:
		return p.handleAnalysis(ctx, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleAnalysis(ctx context.Context, payload TaskPayload) error {
	logger := p.logger.With().Str("job_id", payload.JobID).Logger()

	job, err := p.jobs.Get(ctx, payload.JobID)
	if errors.Is(err, jobs.ErrUnknownJob) {
		logger.Warn().Msg("analysis job expired before execution")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", payload.JobID, err)
	}
	if job.Status.Terminal() {
		logger.Debug().Str("status", string(job.Status)).Msg("analysis job already finished")
		return nil
	}

	logger.Info().Int("images", len(job.Input.Images)).Msg("analysis task received")
	// A started job runs to its own deadline even when the worker is
	// stopping, so the message is acked with a terminal state recorded.
	return p.runner.Execute(context.WithoutCancel(ctx), job)
}
