package worker_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/worker"
)

func TestRuntime_Run_NoGoroutineLeak(t *testing.T) {
	db := openTestDB(t)
	q := queue.New(db)

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())

	rt := &worker.Runtime{
		Queue:        q,
		PollInterval: 10 * time.Millisecond,
		Pools: []worker.Pool{
			{Queue: "bagit", Concurrency: 2, Handler: func(ctx context.Context, job *queue.Job) (any, error) {
				return nil, nil
			}},
			{Queue: "thumbnail", Concurrency: 2, Handler: func(ctx context.Context, job *queue.Job) (any, error) {
				return nil, nil
			}},
		},
	}

	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker runtime did not stop after cancel")
	}
}
