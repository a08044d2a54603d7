package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type chainHeadsRepo basePostgresRepo

func NewChainHeadsRepo(table string, db *db.DB) entity.ChainHeadsRepo {
	return (*chainHeadsRepo)(newBasePostgresRepo(table, db))
}

func (r *chainHeadsRepo) Ensure(ctx context.Context, head *entity.ChainHead) error {
	q, args, err := sq.Insert(r.table).
		Columns("asset", "hash", "height").
		Values(head.Asset, head.Hash, head.Height).
		Suffix("ON CONFLICT (asset) DO UPDATE SET updated_at = NOW(), hash = EXCLUDED.hash, height = EXCLUDED.height").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert chain head: %w", err)
	}
	return nil
}

func (r *chainHeadsRepo) GetByAsset(ctx context.Context, asset string) (*entity.ChainHead, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"asset": asset}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	head := new(entity.ChainHead)
	err = r.db.GetContext(ctx, head, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't get chain head by asset: %w", err)
	}
	return head, nil
}
