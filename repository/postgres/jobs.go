package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type jobsRepo basePostgresRepo

func NewJobsRepo(table string, db *db.DB) entity.JobsRepo {
	return (*jobsRepo)(newBasePostgresRepo(table, db))
}

func (r *jobsRepo) Add(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	res := new(entity.Job)
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		if job.JobKey != nil {
			if err := r.detachRunning(ctx, *job.JobKey); err != nil {
				return err
			}
		}
		q, args, err := sq.Insert(r.table).
			Columns("kind", "payload", "job_key", "run_at", "max_attempts").
			Values(job.Kind, job.Payload, job.JobKey, job.RunAt, job.MaxAttempts).
			Suffix(`ON CONFLICT (job_key) DO UPDATE SET
				updated_at = NOW(),
				kind = EXCLUDED.kind,
				payload = EXCLUDED.payload,
				run_at = EXCLUDED.run_at,
				max_attempts = EXCLUDED.max_attempts,
				attempts = 0,
				last_error = NULL
				RETURNING *`).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("can't build query: %w", err)
		}
		if err = r.db.GetContext(ctx, res, q, args...); err != nil {
			return fmt.Errorf("can't insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// detachRunning locks the job holding key and, if a worker is running it,
// releases the key so that a fresh job can take it over.
func (r *jobsRepo) detachRunning(ctx context.Context, key string) error {
	q, args, err := sq.Select("id", "locked_at").
		From(r.table).
		Where(sq.Eq{"job_key": key}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	var existing struct {
		ID       int64      `db:"id"`
		LockedAt *time.Time `db:"locked_at"`
	}
	err = r.db.GetContext(ctx, &existing, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("can't lock job by key: %w", err)
	}
	if existing.LockedAt == nil {
		return nil
	}
	q, args, err = sq.Update(r.table).
		Set("job_key", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": existing.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err = r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("can't detach job key: %w", err)
	}
	return nil
}

// Reserve locks the earliest due job for workerID. Locks older than
// staleBefore are treated as abandoned. It returns db.ErrNotFound when no job
// is due.
func (r *jobsRepo) Reserve(ctx context.Context, workerID string, now, staleBefore time.Time) (*entity.Job, error) {
	sub := fmt.Sprintf(`id = (
		SELECT id FROM %s
		WHERE run_at <= ? AND (locked_at IS NULL OR locked_at < ?) AND attempts < max_attempts
		ORDER BY run_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED)`, r.table)
	q, args, err := sq.Update(r.table).
		Set("locked_at", now).
		Set("locked_by", workerID).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sub, now, staleBefore).
		Suffix("RETURNING *").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	job := new(entity.Job)
	err = r.db.GetContext(ctx, job, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't reserve job: %w", err)
	}
	return job, nil
}

func (r *jobsRepo) Delete(ctx context.Context, id int64) error {
	q, args, err := sq.Delete(r.table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err = r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("can't delete job: %w", err)
	}
	return nil
}

func (r *jobsRepo) Release(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	b := sq.Update(r.table).
		Set("locked_at", nil).
		Set("locked_by", nil).
		Set("run_at", runAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})
	if lastError != "" {
		b = b.Set("last_error", lastError)
	}
	q, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err = r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("can't release job: %w", err)
	}
	return nil
}

func (r *jobsRepo) GetByKey(ctx context.Context, key string) (*entity.Job, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"job_key": key}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	job := new(entity.Job)
	err = r.db.GetContext(ctx, job, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't get job by key: %w", err)
	}
	return job, nil
}
