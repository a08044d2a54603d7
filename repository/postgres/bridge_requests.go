package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
)

var bridgeRequestColumns = []string{
	"asset", "source_address", "destination_address", "amount",
	"source_chain", "destination_chain",
	"source_transaction", "destination_transaction", "source_burn_transaction",
	"status", "failure_reason", "started_at", "completed_at",
}

type bridgeRequestsRepo basePostgresRepo

func NewBridgeRequestsRepo(table string, db *db.DB) entity.BridgeRequestsRepo {
	return (*bridgeRequestsRepo)(newBasePostgresRepo(table, db))
}

func (r *bridgeRequestsRepo) insert(req *entity.BridgeRequest) sq.InsertBuilder {
	var failureReason interface{}
	if req.Status == entity.StatusFailed {
		failureReason = nullableString(req.FailureReason)
	}
	startedAt := sq.Expr("NULL")
	if req.Status != entity.StatusCreated {
		startedAt = sq.Expr("NOW()")
	}
	completedAt := sq.Expr("NULL")
	if req.Status.IsTerminal() {
		completedAt = sq.Expr("NOW()")
	}
	return sq.Insert(r.table).
		Columns(bridgeRequestColumns...).
		Values(
			req.Asset, req.SourceAddress, req.DestinationAddress, req.Amount,
			string(req.SourceChain), string(req.DestinationChain),
			req.SourceTransaction, req.DestinationTransaction, req.SourceBurnTransaction,
			string(req.Status), failureReason, startedAt, completedAt,
		)
}

func (r *bridgeRequestsRepo) Create(ctx context.Context, req *entity.BridgeRequest) (*entity.BridgeRequest, error) {
	q, args, err := r.insert(req).
		Suffix("RETURNING *").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.BridgeRequest)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't insert bridge request: %w", err)
	}
	return res, nil
}

// Upsert inserts req or overwrites the row with the same source transaction.
// A terminal row keeps its status, and known hashes are never erased.
func (r *bridgeRequestsRepo) Upsert(ctx context.Context, req *entity.BridgeRequest) (*entity.BridgeRequest, error) {
	if req.SourceTransaction == nil {
		return r.Create(ctx, req)
	}
	t := r.table
	terminal := fmt.Sprintf("%s.status IN ('%s', '%s')", t, entity.StatusConfirmed, entity.StatusFailed)
	suffix := fmt.Sprintf(`ON CONFLICT (source_transaction) DO UPDATE SET
		updated_at = NOW(),
		asset = EXCLUDED.asset,
		source_address = EXCLUDED.source_address,
		destination_address = EXCLUDED.destination_address,
		amount = EXCLUDED.amount,
		source_chain = EXCLUDED.source_chain,
		destination_chain = EXCLUDED.destination_chain,
		destination_transaction = COALESCE(EXCLUDED.destination_transaction, %[1]s.destination_transaction),
		source_burn_transaction = COALESCE(EXCLUDED.source_burn_transaction, %[1]s.source_burn_transaction),
		status = CASE WHEN %[2]s THEN %[1]s.status ELSE EXCLUDED.status END,
		failure_reason = CASE WHEN %[2]s THEN %[1]s.failure_reason ELSE EXCLUDED.failure_reason END,
		started_at = COALESCE(%[1]s.started_at, EXCLUDED.started_at),
		completed_at = CASE WHEN %[2]s THEN %[1]s.completed_at ELSE EXCLUDED.completed_at END
		RETURNING *`, t, terminal)
	q, args, err := r.insert(req).
		Suffix(suffix).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.BridgeRequest)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't upsert bridge request: %w", err)
	}
	return res, nil
}

func (r *bridgeRequestsRepo) get(ctx context.Context, where sq.Sqlizer) (*entity.BridgeRequest, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.BridgeRequest)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't get bridge request: %w", err)
	}
	return res, nil
}

func (r *bridgeRequestsRepo) GetByID(ctx context.Context, id int64) (*entity.BridgeRequest, error) {
	return r.get(ctx, sq.Eq{"id": id})
}

func (r *bridgeRequestsRepo) GetBySourceTransaction(ctx context.Context, sourceTx string) (*entity.BridgeRequest, error) {
	return r.get(ctx, sq.Eq{"source_transaction": sourceTx})
}

func (r *bridgeRequestsRepo) find(ctx context.Context, b sq.SelectBuilder) ([]*entity.BridgeRequest, error) {
	q, args, err := b.OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	reqs := make([]*entity.BridgeRequest, 0, 10)
	err = r.db.SelectContext(ctx, &reqs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find bridge requests: %w", err)
	}
	return reqs, nil
}

func (r *bridgeRequestsRepo) FindByIDs(ctx context.Context, ids []int64) ([]*entity.BridgeRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, sq.Select("*").From(r.table).Where(sq.Eq{"id": ids}))
}

func (r *bridgeRequestsRepo) FindBySourceBurnTransaction(ctx context.Context, burnTx string) ([]*entity.BridgeRequest, error) {
	return r.find(ctx, sq.Select("*").From(r.table).Where(sq.Eq{"source_burn_transaction": burnTx}))
}

func (r *bridgeRequestsRepo) Find(ctx context.Context, filter *entity.BridgeRequestsFilter) ([]*entity.BridgeRequest, error) {
	b := sq.Select("*").From(r.table)
	if filter.SourceChain != nil {
		b = b.Where(sq.Eq{"source_chain": string(*filter.SourceChain)})
	}
	if filter.DestinationChain != nil {
		b = b.Where(sq.Eq{"destination_chain": string(*filter.DestinationChain)})
	}
	if filter.Asset != nil {
		b = b.Where(sq.Eq{"asset": *filter.Asset})
	}
	if len(filter.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit)
	}
	return r.find(ctx, b)
}

// Update applies patch. It returns db.ErrNotFound when no row has the id or
// the row is not in one of patch.ExpectedStatuses.
func (r *bridgeRequestsRepo) Update(ctx context.Context, patch *entity.BridgeRequestPatch) (*entity.BridgeRequest, error) {
	b := sq.Update(r.table).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": patch.ID})
	if len(patch.ExpectedStatuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(patch.ExpectedStatuses)})
	}
	if patch.Status != nil {
		status := *patch.Status
		b = b.Set("status", string(status))
		if status == entity.StatusFailed {
			b = b.Set("failure_reason", nullableString(patch.FailureReason))
		} else {
			b = b.Set("failure_reason", nil)
		}
		if status != entity.StatusCreated {
			b = b.Set("started_at", sq.Expr("COALESCE(started_at, NOW())"))
		}
		if status.IsTerminal() {
			b = b.Set("completed_at", sq.Expr("COALESCE(completed_at, NOW())"))
		}
	}
	if patch.SourceTransaction != nil {
		b = b.Set("source_transaction", *patch.SourceTransaction)
	}
	if patch.ClearDestination {
		b = b.Set("destination_transaction", nil)
	} else if patch.DestinationTransaction != nil {
		b = b.Set("destination_transaction", *patch.DestinationTransaction)
	}
	if patch.SourceBurnTransaction != nil {
		b = b.Set("source_burn_transaction", *patch.SourceBurnTransaction)
	}
	q, args, err := b.Suffix("RETURNING *").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.BridgeRequest)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't update bridge request: %w", err)
	}
	return res, nil
}

func (r *bridgeRequestsRepo) CountByStatus(ctx context.Context) (map[entity.BridgeRequestStatus]int, error) {
	q, args, err := sq.Select("status", "COUNT(*) AS count").
		From(r.table).
		GroupBy("status").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	rows := make([]struct {
		Status entity.BridgeRequestStatus `db:"status"`
		Count  int                        `db:"count"`
	}, 0, len(entity.AllStatuses))
	err = r.db.SelectContext(ctx, &rows, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't count bridge requests: %w", err)
	}
	res := make(map[entity.BridgeRequestStatus]int, len(rows))
	for _, row := range rows {
		res[row.Status] = row.Count
	}
	return res, nil
}

func statusStrings(statuses []entity.BridgeRequestStatus) []string {
	res := make([]string, len(statuses))
	for i, s := range statuses {
		res[i] = string(s)
	}
	return res
}
