package memory

import (
	"context"
	"fmt"

	"github.com/iron-fish/ironfish-bridge/entity"
)

type failedBridgeRequestsRepo struct {
	s *Store
}

func (r *failedBridgeRequestsRepo) Insert(ctx context.Context, failure *entity.FailedBridgeRequest) (*entity.FailedBridgeRequest, error) {
	defer r.s.lock(ctx)()
	st := r.s.state
	if failure.BridgeRequestID != nil {
		if _, ok := st.requests[*failure.BridgeRequestID]; !ok {
			return nil, fmt.Errorf("can't insert failed bridge request: unknown bridge request %d", *failure.BridgeRequestID)
		}
	}
	now := r.s.now()
	st.lastFailureID++
	row := &entity.FailedBridgeRequest{
		ID:              st.lastFailureID,
		BridgeRequestID: copyPtr(failure.BridgeRequestID),
		FailureReason:   failure.FailureReason,
		Error:           copyPtr(failure.Error),
		CreatedAt:       &now,
	}
	st.failures = append(st.failures, row)
	cp := *row
	return &cp, nil
}

func (r *failedBridgeRequestsRepo) FindByBridgeRequestID(ctx context.Context, id int64) ([]*entity.FailedBridgeRequest, error) {
	defer r.s.lock(ctx)()
	res := make([]*entity.FailedBridgeRequest, 0, 2)
	for _, f := range r.s.state.failures {
		if f.BridgeRequestID != nil && *f.BridgeRequestID == id {
			cp := *f
			res = append(res, &cp)
		}
	}
	return res, nil
}
