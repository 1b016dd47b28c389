// Package worker runs the named-queue worker pools: one pool per
// queue, each pool a fixed number of goroutines polling
// internal/queue for its next eligible job and dispatching it to a
// registered Handler.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/telemetry"
)

// Handler processes one claimed job and returns its result payload, or
// an error that Fail records against the job for retry/DLQ purposes.
type Handler func(ctx context.Context, job *queue.Job) (result any, err error)

// Pool configures one named queue's concurrency and handler.
type Pool struct {
	Queue       string
	Concurrency int
	Handler     Handler
}

// Runtime drives every registered Pool against the shared Queue until
// its context is cancelled.
type Runtime struct {
	Queue *queue.Queue
	Pools []Pool

	// PollInterval is how long an idle worker goroutine sleeps after
	// finding no eligible job before asking again; zero uses a 2s
	// default.
	PollInterval time.Duration

	// WorkerIDPrefix identifies this process's claims in locked_by;
	// zero uses "worker".
	WorkerIDPrefix string
}

// Run blocks, running every pool's goroutines, until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	prefix := r.WorkerIDPrefix
	if prefix == "" {
		prefix = "worker"
	}

	var wg sync.WaitGroup
	for _, pool := range r.Pools {
		pool := pool
		concurrency := pool.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		for i := 0; i < concurrency; i++ {
			workerID := prefix + "-" + pool.Queue + "-" + strconv.Itoa(i)
			wg.Add(1)
			go func(p Pool, id string) {
				defer wg.Done()
				r.runWorker(ctx, p, id, interval)
			}(pool, workerID)
		}
	}
	wg.Wait()
}

func (r *Runtime) runWorker(ctx context.Context, pool Pool, workerID string, interval time.Duration) {
	logger := log.WithComponent("worker").With().Str("queue", pool.Queue).Str("worker_id", workerID).Logger()
	logger.Info().Msg("worker: pool goroutine started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.Queue.GetNext(ctx, pool.Queue, workerID)
		if err != nil {
			if err == queue.ErrNoJob {
				if !sleepOrDone(ctx, ticker) {
					return
				}
				continue
			}
			logger.Warn().Err(err).Msg("worker: claim failed")
			if !sleepOrDone(ctx, ticker) {
				return
			}
			continue
		}

		r.execute(ctx, pool, job, logger)
	}
}

func sleepOrDone(ctx context.Context, ticker *time.Ticker) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
		return true
	}
}

// execute runs one job's handler with panic recovery, so one bad unit
// of work never takes down its pool's goroutine, and records the
// outcome against the queue.
func (r *Runtime) execute(ctx context.Context, pool Pool, job *queue.Job, logger zerolog.Logger) {
	ctx, span := telemetry.StartJob(ctx, pool.Queue, job.ID)
	defer span.End()

	result, err := r.runHandler(ctx, pool.Handler, job)
	// The outcome is recorded even if ctx was cancelled while the
	// handler ran.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
		if failErr := r.Queue.Fail(recordCtx, job.ID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Str("job_id", job.ID).Msg("worker: failed to record job failure")
		}
		return
	}
	if completeErr := r.Queue.Complete(recordCtx, job.ID, result); completeErr != nil {
		logger.Error().Err(completeErr).Str("job_id", job.ID).Msg("worker: failed to record job completion")
	}
}

func (r *Runtime) runHandler(ctx context.Context, h Handler, job *queue.Job) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("worker: handler panicked: %v", p)
		}
	}()
	return h(ctx, job)
}
