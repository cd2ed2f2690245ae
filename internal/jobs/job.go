// Package jobs runs product image analysis out of band. Clients register a
// job under an id they choose and poll it until it reaches a terminal state.
package jobs

import (
	"context"
	"errors"
	"time"

	"knitkart/internal/models"
)

var (
	ErrUnknownJob    = errors.New("unknown job")
	ErrJobFinished   = errors.New("job already finished")
	ErrNoImages      = errors.New("at least one image is required")
	ErrTooManyImages = errors.New("too many images")
	ErrMissingJobID  = errors.New("job id is required")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Input references previously uploaded images plus an optional hint from
// the seller.
type Input struct {
	Images []string `json:"images"`
	Hint   string   `json:"hint,omitempty"`
}

// Job is a tagged record: Result is set only when Status is completed and
// Error only when Status is error.
type Job struct {
	ID        string
	Status    Status
	Input     Input
	Result    *models.ProductAnalysis
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store holds job records. Create is first-writer-wins and the terminal
// transitions only succeed from pending, so a status never reverts.
type Store interface {
	Create(ctx context.Context, job Job) (bool, error)
	Get(ctx context.Context, id string) (Job, error)
	Complete(ctx context.Context, id string, result models.ProductAnalysis, at time.Time) error
	Fail(ctx context.Context, id string, message string, at time.Time) error
}

// Analyzer performs the slow external analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, input Input) (models.ProductAnalysis, error)
}

// Dispatcher schedules a registered job for execution without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}
