package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"recorte/internal/models"
)

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job *models.Job) error

// Queue is the job store the worker polls.
type Queue interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, errorMsg string) error
}

// Worker processes jobs from the queue with a fixed number of loops.
// Failed jobs are not retried; the caller resubmits.
type Worker struct {
	queue       Queue
	handler     JobHandler
	concurrency int
	interval    time.Duration
	logger      hclog.Logger
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewWorker creates a new worker
func NewWorker(queue Queue, handler JobHandler, logger hclog.Logger) *Worker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		concurrency: 1,
		interval:    1 * time.Second,
		logger:      logger.Named("worker"),
		stop:        make(chan struct{}),
	}
}

// SetInterval sets the polling interval
func (w *Worker) SetInterval(interval time.Duration) {
	if interval > 0 {
		w.interval = interval
	}
}

// SetConcurrency sets how many jobs may run at once
func (w *Worker) SetConcurrency(n int) {
	if n > 0 {
		w.concurrency = n
	}
}

// Start begins processing jobs
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
	w.logger.Info("worker started", "concurrency", w.concurrency, "interval", w.interval)
}

// Stop gracefully stops the worker and waits for running jobs
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context, slot int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for w.ProcessNext(ctx) {
				select {
				case <-w.stop:
					return
				default:
				}
			}
		}
	}
}

// ProcessNext claims and runs one job. It reports whether a job was found.
func (w *Worker) ProcessNext(ctx context.Context) bool {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		w.logger.Error("error claiming next job", "err", err)
		return false
	}
	if job == nil {
		return false
	}

	log := w.logger.With("job", job.ID)
	log.Info("processing job", "url", job.URL, "start", job.Start, "end", job.End)

	if err := w.execute(ctx, job); err != nil {
		if ctx.Err() != nil {
			// Left running; requeued by recovery on next start.
			log.Warn("job interrupted by shutdown", "err", err)
			return false
		}
		log.Warn("job failed", "err", err)
		if ferr := w.queue.Fail(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			log.Error("error failing job", "err", ferr)
		}
		return true
	}

	if err := w.queue.Complete(context.WithoutCancel(ctx), job.ID); err != nil {
		log.Error("error completing job", "err", err)
		return true
	}

	log.Info("job completed")
	return true
}

// execute runs the handler, converting a panic into a job failure.
func (w *Worker) execute(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return w.handler(ctx, job)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job handler panicked: %v", e.Value)
}
