// Package processing runs transcription jobs on an in-process goroutine pool
// for the single-binary deployment. Goroutines + channels power the
// implementation.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Schedule when the buffer has no room.
var ErrQueueFull = errors.New("processing queue full")

// Handler runs one job to completion.
type Handler func(ctx context.Context, jobID string) error

// Pool consumes job ids and hands them to a Handler.
type Pool struct {
	queue   chan string
	workers int
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

// New builds a Pool with queue capacity tied to worker count.
func New(workers int, log logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		// A buffered channel holds pending ids without blocking Submit.
		queue:   make(chan string, workers*16),
		workers: workers,
		log:     log,
	}
}

// Start launches worker goroutines. Each worker exits when ctx is cancelled.
func (p *Pool) Start(ctx context.Context, handle Handler) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, handle)
	}
}

// Schedule queues a job without blocking. A full queue is reported to the
// caller, which records the failure on the job.
func (p *Pool) Schedule(ctx context.Context, jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		p.log.WithField("job_id", jobID).Warn("processing queue full")
		return ErrQueueFull
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, handle Handler) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			if err := handle(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				p.log.WithField("job_id", jobID).WithError(err).Error("process job")
			}
		}
	}
}
