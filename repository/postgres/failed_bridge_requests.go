package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

type failedBridgeRequestsRepo basePostgresRepo

func NewFailedBridgeRequestsRepo(table string, db *db.DB) entity.FailedBridgeRequestsRepo {
	return (*failedBridgeRequestsRepo)(newBasePostgresRepo(table, db))
}

func (r *failedBridgeRequestsRepo) Insert(ctx context.Context, failure *entity.FailedBridgeRequest) (*entity.FailedBridgeRequest, error) {
	q, args, err := sq.Insert(r.table).
		Columns("bridge_request_id", "failure_reason", "error").
		Values(failure.BridgeRequestID, string(failure.FailureReason), failure.Error).
		Suffix("RETURNING *").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.FailedBridgeRequest)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't insert failed bridge request: %w", err)
	}
	return res, nil
}

func (r *failedBridgeRequestsRepo) FindByBridgeRequestID(ctx context.Context, id int64) ([]*entity.FailedBridgeRequest, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"bridge_request_id": id}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]*entity.FailedBridgeRequest, 0, 2)
	err = r.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find failed bridge requests: %w", err)
	}
	return res, nil
}
