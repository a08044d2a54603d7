package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type bridgeRequestsRepo struct {
	s *Store
}

func (r *bridgeRequestsRepo) Create(ctx context.Context, req *entity.BridgeRequest) (*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	if req.SourceTransaction != nil && r.bySourceTx(*req.SourceTransaction) != nil {
		return nil, fmt.Errorf("can't insert bridge request: duplicate source transaction %s", *req.SourceTransaction)
	}
	return copyRequest(r.insert(req)), nil
}

func (r *bridgeRequestsRepo) insert(req *entity.BridgeRequest) *entity.BridgeRequest {
	st := r.s.state
	now := r.s.now()
	st.lastRequestID++
	row := copyRequest(req)
	row.ID = st.lastRequestID
	row.CreatedAt = &now
	row.UpdatedAt = &now
	row.StartedAt = nil
	row.CompletedAt = nil
	if row.Status != entity.StatusFailed {
		row.FailureReason = nil
	}
	if row.Status != entity.StatusCreated {
		row.StartedAt = &now
	}
	if row.Status.IsTerminal() {
		row.CompletedAt = &now
	}
	st.requests[row.ID] = row
	return row
}

func (r *bridgeRequestsRepo) Upsert(ctx context.Context, req *entity.BridgeRequest) (*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	if req.SourceTransaction == nil {
		return copyRequest(r.insert(req)), nil
	}
	row := r.bySourceTx(*req.SourceTransaction)
	if row == nil {
		return copyRequest(r.insert(req)), nil
	}
	now := r.s.now()
	row.UpdatedAt = &now
	row.Asset = req.Asset
	row.SourceAddress = req.SourceAddress
	row.DestinationAddress = req.DestinationAddress
	row.Amount = req.Amount
	row.SourceChain = req.SourceChain
	row.DestinationChain = req.DestinationChain
	if req.DestinationTransaction != nil {
		row.DestinationTransaction = copyPtr(req.DestinationTransaction)
	}
	if req.SourceBurnTransaction != nil {
		row.SourceBurnTransaction = copyPtr(req.SourceBurnTransaction)
	}
	if !row.Status.IsTerminal() {
		applyStatus(row, req.Status, req.FailureReason, now)
	}
	return copyRequest(row), nil
}

func (r *bridgeRequestsRepo) bySourceTx(sourceTx string) *entity.BridgeRequest {
	for _, row := range r.s.state.requests {
		if row.SourceTransaction != nil && *row.SourceTransaction == sourceTx {
			return row
		}
	}
	return nil
}

func (r *bridgeRequestsRepo) GetByID(ctx context.Context, id int64) (*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	row, ok := r.s.state.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyRequest(row), nil
}

func (r *bridgeRequestsRepo) GetBySourceTransaction(ctx context.Context, sourceTx string) (*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	row := r.bySourceTx(sourceTx)
	if row == nil {
		return nil, db.ErrNotFound
	}
	return copyRequest(row), nil
}

func (r *bridgeRequestsRepo) filter(match func(*entity.BridgeRequest) bool, limit uint64) []*entity.BridgeRequest {
	res := make([]*entity.BridgeRequest, 0, 10)
	for _, row := range r.s.state.requests {
		if match(row) {
			res = append(res, copyRequest(row))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(*res[j].CreatedAt) {
			return res[i].CreatedAt.Before(*res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	if limit > 0 && uint64(len(res)) > limit {
		res = res[:limit]
	}
	return res
}

func (r *bridgeRequestsRepo) FindByIDs(ctx context.Context, ids []int64) ([]*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return r.filter(func(row *entity.BridgeRequest) bool { return set[row.ID] }, 0), nil
}

func (r *bridgeRequestsRepo) FindBySourceBurnTransaction(ctx context.Context, burnTx string) ([]*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	return r.filter(func(row *entity.BridgeRequest) bool {
		return row.SourceBurnTransaction != nil && *row.SourceBurnTransaction == burnTx
	}, 0), nil
}

func (r *bridgeRequestsRepo) Find(ctx context.Context, f *entity.BridgeRequestsFilter) ([]*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	return r.filter(func(row *entity.BridgeRequest) bool {
		if f.SourceChain != nil && row.SourceChain != *f.SourceChain {
			return false
		}
		if f.DestinationChain != nil && row.DestinationChain != *f.DestinationChain {
			return false
		}
		if f.Asset != nil && row.Asset != *f.Asset {
			return false
		}
		return len(f.Statuses) == 0 || hasStatus(f.Statuses, row.Status)
	}, f.Limit), nil
}

func (r *bridgeRequestsRepo) Update(ctx context.Context, patch *entity.BridgeRequestPatch) (*entity.BridgeRequest, error) {
	defer r.s.lock(ctx)()
	row, ok := r.s.state.requests[patch.ID]
	if !ok {
		return nil, db.ErrNotFound
	}
	if len(patch.ExpectedStatuses) > 0 && !hasStatus(patch.ExpectedStatuses, row.Status) {
		return nil, db.ErrNotFound
	}
	now := r.s.now()
	row.UpdatedAt = &now
	if patch.Status != nil {
		applyStatus(row, *patch.Status, patch.FailureReason, now)
	}
	if patch.SourceTransaction != nil {
		if other := r.bySourceTx(*patch.SourceTransaction); other != nil && other.ID != row.ID {
			return nil, fmt.Errorf("can't update bridge request: duplicate source transaction %s", *patch.SourceTransaction)
		}
		row.SourceTransaction = copyPtr(patch.SourceTransaction)
	}
	if patch.ClearDestination {
		row.DestinationTransaction = nil
	} else if patch.DestinationTransaction != nil {
		row.DestinationTransaction = copyPtr(patch.DestinationTransaction)
	}
	if patch.SourceBurnTransaction != nil {
		row.SourceBurnTransaction = copyPtr(patch.SourceBurnTransaction)
	}
	return copyRequest(row), nil
}

func (r *bridgeRequestsRepo) CountByStatus(ctx context.Context) (map[entity.BridgeRequestStatus]int, error) {
	defer r.s.lock(ctx)()
	res := make(map[entity.BridgeRequestStatus]int)
	for _, row := range r.s.state.requests {
		res[row.Status]++
	}
	return res, nil
}

func applyStatus(row *entity.BridgeRequest, status entity.BridgeRequestStatus, reason *entity.FailureReason, now time.Time) {
	row.Status = status
	row.FailureReason = nil
	if status == entity.StatusFailed {
		row.FailureReason = copyPtr(reason)
	}
	if status != entity.StatusCreated && row.StartedAt == nil {
		row.StartedAt = &now
	}
	if status.IsTerminal() && row.CompletedAt == nil {
		row.CompletedAt = &now
	}
}

func hasStatus(statuses []entity.BridgeRequestStatus, s entity.BridgeRequestStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}
