// Package memory keeps repository state in process memory with
// serializable, all-or-nothing transactions.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iron-fish/ironfish-bridge/entity"
)

type txCtxKey struct{}

type state struct {
	requests      map[int64]*entity.BridgeRequest
	failures      []*entity.FailedBridgeRequest
	heads         map[string]*entity.ChainHead
	jobs          map[int64]*entity.Job
	lastRequestID int64
	lastFailureID int64
	lastJobID     int64
}

func (s *state) clone() *state {
	c := &state{
		requests:      make(map[int64]*entity.BridgeRequest, len(s.requests)),
		failures:      make([]*entity.FailedBridgeRequest, len(s.failures)),
		heads:         make(map[string]*entity.ChainHead, len(s.heads)),
		jobs:          make(map[int64]*entity.Job, len(s.jobs)),
		lastRequestID: s.lastRequestID,
		lastFailureID: s.lastFailureID,
		lastJobID:     s.lastJobID,
	}
	for id, r := range s.requests {
		c.requests[id] = copyRequest(r)
	}
	for i, f := range s.failures {
		cp := *f
		c.failures[i] = &cp
	}
	for k, h := range s.heads {
		cp := *h
		c.heads[k] = &cp
	}
	for id, j := range s.jobs {
		c.jobs[id] = copyJob(j)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		state: &state{
			requests: make(map[int64]*entity.BridgeRequest),
			heads:    make(map[string]*entity.ChainHead),
			jobs:     make(map[int64]*entity.Job),
		},
		now: time.Now,
	}
}

// RunInTx holds the store exclusively while fn runs and restores the
// previous state if fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txCtxKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txCtxKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txCtxKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) BridgeRequests() entity.BridgeRequestsRepo {
	return &bridgeRequestsRepo{s}
}

func (s *Store) FailedBridgeRequests() entity.FailedBridgeRequestsRepo {
	return &failedBridgeRequestsRepo{s}
}

func (s *Store) ChainHeads() entity.ChainHeadsRepo {
	return &chainHeadsRepo{s}
}

func (s *Store) Jobs() entity.JobsRepo {
	return &jobsRepo{s}
}

func copyRequest(r *entity.BridgeRequest) *entity.BridgeRequest {
	cp := *r
	cp.SourceTransaction = copyPtr(r.SourceTransaction)
	cp.DestinationTransaction = copyPtr(r.DestinationTransaction)
	cp.SourceBurnTransaction = copyPtr(r.SourceBurnTransaction)
	cp.FailureReason = copyPtr(r.FailureReason)
	cp.CreatedAt = copyPtr(r.CreatedAt)
	cp.UpdatedAt = copyPtr(r.UpdatedAt)
	cp.StartedAt = copyPtr(r.StartedAt)
	cp.CompletedAt = copyPtr(r.CompletedAt)
	return &cp
}

func copyJob(j *entity.Job) *entity.Job {
	cp := *j
	cp.Payload = append(entity.JobPayload(nil), j.Payload...)
	cp.JobKey = copyPtr(j.JobKey)
	cp.LockedAt = copyPtr(j.LockedAt)
	cp.LockedBy = copyPtr(j.LockedBy)
	cp.LastError = copyPtr(j.LastError)
	return &cp
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
