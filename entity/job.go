package entity

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"
)

// JobPayload is raw JSON stored in a jsonb column.
type JobPayload []byte

func (p *JobPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = JobPayload(v)
	default:
		return fmt.Errorf("can't scan %T into job payload", src)
	}
	return nil
}

func (p JobPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

type Job struct {
	ID          int64      `db:"id"`
	Kind        string     `db:"kind"`
	Payload     JobPayload `db:"payload"`
	JobKey      *string    `db:"job_key"`
	RunAt       time.Time  `db:"run_at"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	LockedAt    *time.Time `db:"locked_at"`
	LockedBy    *string    `db:"locked_by"`
	LastError   *string    `db:"last_error"`
	CreatedAt   *time.Time `db:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at"`
}

type JobsRepo interface {
	// Add inserts a job. A pending job with the same key is replaced, a
	// running one keeps running and loses its key to the new job.
	Add(ctx context.Context, job *Job) (*Job, error)
	Reserve(ctx context.Context, workerID string, now time.Time, staleBefore time.Time) (*Job, error)
	Delete(ctx context.Context, id int64) error
	Release(ctx context.Context, id int64, runAt time.Time, lastError string) error
	GetByKey(ctx context.Context, key string) (*Job, error)
}
