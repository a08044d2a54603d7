package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

const maxBackoff = time.Hour

type addOptions struct {
	runAt  time.Time
	jobKey *string
}

type AddOption func(*addOptions)

func WithRunAt(runAt time.Time) AddOption {
	return func(o *addOptions) {
		o.runAt = runAt
	}
}

// WithJobKey keeps at most one pending job per key. Adding a job with the key
// of a pending one replaces it.
func WithJobKey(key string) AddOption {
	return func(o *addOptions) {
		o.jobKey = &key
	}
}

// Queue schedules jobs in the jobs table.
type Queue struct {
	repo             entity.JobsRepo
	maxAttempts      int
	staleLockTimeout time.Duration
	now              func() time.Time
}

func NewQueue(repo entity.JobsRepo, cfg *config.WorkerConfig) *Queue {
	return &Queue{
		repo:             repo,
		maxAttempts:      cfg.MaxAttempts,
		staleLockTimeout: cfg.StaleLockTimeout,
		now:              time.Now,
	}
}

func (q *Queue) Add(ctx context.Context, kind Kind, payload interface{}, opts ...AddOption) (*entity.Job, error) {
	o := &addOptions{runAt: q.now()}
	for _, opt := range opts {
		opt(o)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("can't encode %s payload: %w", kind, err)
	}
	job, err := q.repo.Add(ctx, &entity.Job{
		Kind:        string(kind),
		Payload:     raw,
		JobKey:      o.jobKey,
		RunAt:       o.runAt,
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("can't add %s job: %w", kind, err)
	}
	return job, nil
}

// Reserve locks the next due job for workerID. It returns nil when no job is
// due.
func (q *Queue) Reserve(ctx context.Context, workerID string) (*entity.Job, error) {
	now := q.now()
	job, err := q.repo.Reserve(ctx, workerID, now, now.Add(-q.staleLockTimeout))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (q *Queue) Complete(ctx context.Context, job *entity.Job) error {
	return q.repo.Delete(ctx, job.ID)
}

// Fail unlocks job and schedules the next attempt with exponential backoff.
// A job whose attempts are exhausted stays in the table and is never
// reserved again.
func (q *Queue) Fail(ctx context.Context, job *entity.Job, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.repo.Release(ctx, job.ID, q.now().Add(Backoff(job.Attempts)), msg)
}

// Backoff is e^attempts seconds capped at one hour.
func Backoff(attempts int) time.Duration {
	d := time.Duration(math.Exp(float64(attempts)) * float64(time.Second))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func DecodePayload(job *entity.Job, v interface{}) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("can't decode %s payload: %w", job.Kind, err)
	}
	return nil
}
