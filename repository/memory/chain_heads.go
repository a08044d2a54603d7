package memory

import (
	"context"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type chainHeadsRepo struct {
	s *Store
}

func (r *chainHeadsRepo) Ensure(ctx context.Context, head *entity.ChainHead) error {
	defer r.s.lock(ctx)()
	now := r.s.now()
	row, ok := r.s.state.heads[head.Asset]
	if !ok {
		row = &entity.ChainHead{Asset: head.Asset, CreatedAt: &now}
		r.s.state.heads[head.Asset] = row
	}
	row.Hash = head.Hash
	row.Height = head.Height
	row.UpdatedAt = &now
	return nil
}

func (r *chainHeadsRepo) GetByAsset(ctx context.Context, asset string) (*entity.ChainHead, error) {
	defer r.s.lock(ctx)()
	row, ok := r.s.state.heads[asset]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *row
	return &cp, nil
}
