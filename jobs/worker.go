package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/utils"
)

// Result tells the worker what to do with a job its handler returned from
// without error.
type Result struct {
	Requeue bool
}

type Handler interface {
	Dispatch(ctx context.Context, job *entity.Job) (Result, error)
}

type HandlerFunc func(ctx context.Context, job *entity.Job) (Result, error)

func (f HandlerFunc) Dispatch(ctx context.Context, job *entity.Job) (Result, error) {
	return f(ctx, job)
}

type Worker struct {
	logger  logging.Logger
	queue   *Queue
	handler Handler
	cfg     *config.WorkerConfig
}

func NewWorker(logger logging.Logger, queue *Queue, handler Handler, cfg *config.WorkerConfig) *Worker {
	return &Worker{
		logger:  logger,
		queue:   queue,
		handler: handler,
		cfg:     cfg,
	}
}

// Start runs cfg.Concurrency polling loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := "worker-" + uuid.NewString()
		g.Go(func() error {
			w.loop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, workerID string) {
	logger := w.logger.WithField("worker_id", workerID)
	logger.Debug("starting job worker")
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.RunOnce(ctx, workerID)
		if err != nil {
			logger.WithError(err).Error("can't process job")
		}
		if !processed && !utils.ContextSleep(ctx, w.cfg.PollInterval) {
			return
		}
	}
}

// RunOnce reserves and processes at most one due job. It reports whether a
// job was found.
func (w *Worker) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := w.queue.Reserve(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("can't reserve job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	logger := w.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_kind": job.Kind,
		"attempt":  job.Attempts,
	})

	start := time.Now()
	res, err := w.dispatch(logging.WithLogger(ctx, logger), job)
	duration := time.Since(start)
	JobDurations.WithLabelValues(job.Kind).Observe(duration.Seconds())
	logger = logger.WithField("duration", duration)

	switch {
	case err != nil:
		ProcessedJobs.WithLabelValues(job.Kind, "error").Inc()
		logger.WithError(err).Error("job failed, rescheduling")
		if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
			return true, fmt.Errorf("can't reschedule failed job: %w", failErr)
		}
	case res.Requeue:
		ProcessedJobs.WithLabelValues(job.Kind, "requeued").Inc()
		logger.Info("job requeued")
		if failErr := w.queue.Fail(ctx, job, nil); failErr != nil {
			return true, fmt.Errorf("can't requeue job: %w", failErr)
		}
	default:
		ProcessedJobs.WithLabelValues(job.Kind, "ok").Inc()
		logger.Info("job processed")
		if completeErr := w.queue.Complete(ctx, job); completeErr != nil {
			return true, fmt.Errorf("can't complete job: %w", completeErr)
		}
	}
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, job *entity.Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return w.handler.Dispatch(ctx, job)
}
