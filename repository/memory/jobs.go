package memory

import (
	"context"
	"time"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type jobsRepo struct {
	s *Store
}

func (r *jobsRepo) byKey(key string) *entity.Job {
	for _, j := range r.s.state.jobs {
		if j.JobKey != nil && *j.JobKey == key {
			return j
		}
	}
	return nil
}

func (r *jobsRepo) Add(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	defer r.s.lock(ctx)()
	st := r.s.state
	now := r.s.now()
	if job.JobKey != nil {
		if existing := r.byKey(*job.JobKey); existing != nil {
			if existing.LockedAt == nil {
				existing.Kind = job.Kind
				existing.Payload = append(entity.JobPayload(nil), job.Payload...)
				existing.RunAt = job.RunAt
				existing.MaxAttempts = job.MaxAttempts
				existing.Attempts = 0
				existing.LastError = nil
				existing.UpdatedAt = &now
				return copyJob(existing), nil
			}
			existing.JobKey = nil
		}
	}
	st.lastJobID++
	row := copyJob(job)
	row.ID = st.lastJobID
	row.Attempts = 0
	row.LockedAt = nil
	row.LockedBy = nil
	row.LastError = nil
	row.CreatedAt = &now
	row.UpdatedAt = &now
	st.jobs[row.ID] = row
	return copyJob(row), nil
}

func (r *jobsRepo) Reserve(ctx context.Context, workerID string, now, staleBefore time.Time) (*entity.Job, error) {
	defer r.s.lock(ctx)()
	var next *entity.Job
	for _, j := range r.s.state.jobs {
		if j.RunAt.After(now) || j.Attempts >= j.MaxAttempts {
			continue
		}
		if j.LockedAt != nil && !j.LockedAt.Before(staleBefore) {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) || (j.RunAt.Equal(next.RunAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, db.ErrNotFound
	}
	lockedAt := now
	next.LockedAt = &lockedAt
	next.LockedBy = &workerID
	next.Attempts++
	next.UpdatedAt = &lockedAt
	return copyJob(next), nil
}

func (r *jobsRepo) Delete(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()
	delete(r.s.state.jobs, id)
	return nil
}

func (r *jobsRepo) Release(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	defer r.s.lock(ctx)()
	j, ok := r.s.state.jobs[id]
	if !ok {
		return nil
	}
	now := r.s.now()
	j.LockedAt = nil
	j.LockedBy = nil
	j.RunAt = runAt
	j.UpdatedAt = &now
	if lastError != "" {
		j.LastError = &lastError
	}
	return nil
}

func (r *jobsRepo) GetByKey(ctx context.Context, key string) (*entity.Job, error) {
	defer r.s.lock(ctx)()
	j := r.byKey(key)
	if j == nil {
		return nil, db.ErrNotFound
	}
	return copyJob(j), nil
}

