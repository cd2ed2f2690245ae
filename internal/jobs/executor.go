package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"knitkart/internal/models"
)

// WriteTimeout bounds the terminal state write once the analyzer has returned.
const WriteTimeout = 5 * time.Second

type outcome struct {
	result models.ProductAnalysis
	err    error
}

// Executor runs the analysis for one job and records the terminal state.
type Executor struct {
	store    Store
	analyzer Analyzer
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewExecutor(store Store, analyzer Analyzer, timeout time.Duration, log zerolog.Logger) *Executor {
	return &Executor{
		store:    store,
		analyzer: analyzer,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// Execute never leaves the job pending: analyzer errors and timeouts become
// an error state with a generic message. An analyzer that ignores its
// context is abandoned at the deadline.
func (e *Executor) Execute(ctx context.Context, job Job) error {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	done := make(chan outcome, 1)
	go func() {
		result, err := e.analyzer.Analyze(runCtx, job.Input)
		done <- outcome{result: result, err: err}
	}()

	var (
		result models.ProductAnalysis
		err    error
	)
	select {
	case out := <-done:
		result, err = out.result, out.err
	case <-runCtx.Done():
		err = runCtx.Err()
	}
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
	defer cancelWrite()

	logger := e.log.With().Str("job_id", job.ID).Logger()
	switch {
	case err == nil:
		err = e.store.Complete(writeCtx, job.ID, result, e.now())
	case timedOut:
		logger.Warn().Err(err).Dur("timeout", e.timeout).Msg("analysis timed out")
		err = e.store.Fail(writeCtx, job.ID, MessageTimedOut, e.now())
	default:
		logger.Error().Err(err).Msg("analysis failed")
		err = e.store.Fail(writeCtx, job.ID, MessageFailed, e.now())
	}

	if errors.Is(err, ErrJobFinished) || errors.Is(err, ErrUnknownJob) {
		logger.Debug().Err(err).Msg("analysis result discarded")
		return nil
	}
	return err
}

// LocalDispatcher runs jobs on goroutines of the current process.
type LocalDispatcher struct {
	executor *Executor
	log      zerolog.Logger
	wg       sync.WaitGroup
}

func NewLocalDispatcher(executor *Executor, log zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{executor: executor, log: log}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job Job) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.executor.Execute(context.WithoutCancel(ctx), job); err != nil {
			d.log.Error().Err(err).Str("job_id", job.ID).Msg("record analysis outcome failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
