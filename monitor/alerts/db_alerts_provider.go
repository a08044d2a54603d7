package alerts

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/iron-fish/ironfish-bridge/entity"
)

type Selector interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type DBAlertsProvider struct {
	db  Selector
	now func() time.Time
}

func NewDBAlertsProvider(db Selector) *DBAlertsProvider {
	return &DBAlertsProvider{
		db:  db,
		now: time.Now,
	}
}

// PendingStatuses are the statuses a request may get stuck in: every status
// waiting on a transaction or on the Iron Fish side.
var PendingStatuses = []entity.BridgeRequestStatus{
	entity.StatusPendingPretransfer,
	entity.StatusPendingSourceBurnTransactionCreation,
	entity.StatusPendingSourceBurnTransactionConfirmation,
	entity.StatusPendingDestinationMintTransactionCreation,
	entity.StatusPendingDestinationMintTransactionConfirmation,
	entity.StatusPendingDestinationReleaseTransactionCreation,
	entity.StatusPendingDestinationReleaseTransactionConfirmation,
	entity.StatusPendingOnDestinationChain,
}

type StuckRequests struct {
	Status           entity.BridgeRequestStatus `db:"status" json:"status"`
	SourceChain      entity.Chain               `db:"source_chain" json:"source_chain"`
	DestinationChain entity.Chain               `db:"destination_chain" json:"destination_chain"`
	Count            uint64                     `db:"count" json:"_value,string"`
}

func (p *DBAlertsProvider) FindStuckRequests(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	statuses := make([]string, len(PendingStatuses))
	for i, s := range PendingStatuses {
		statuses[i] = string(s)
	}
	q, args, err := sq.Select("status", "source_chain", "destination_chain", "COUNT(*) AS count").
		From("bridge_requests").
		Where("status = ANY(?)", pq.Array(statuses)).
		Where(sq.Lt{"updated_at": p.now().Add(-params.Threshold)}).
		GroupBy("status", "source_chain", "destination_chain").
		OrderBy("status", "source_chain", "destination_chain").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]StuckRequests, 0, 5)
	if err = p.db.SelectContext(ctx, &res, q, args...); err != nil {
		return nil, fmt.Errorf("can't select stuck bridge requests: %w", err)
	}
	return res, nil
}

type FailedRequests struct {
	FailureReason entity.FailureReason `db:"failure_reason" json:"failure_reason"`
	Count         uint64               `db:"count" json:"_value,string"`
}

func (p *DBAlertsProvider) FindFailedRequests(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	q, args, err := sq.Select("failure_reason", "COUNT(*) AS count").
		From("failed_bridge_requests").
		Where(sq.GtOrEq{"created_at": p.now().Add(-params.Threshold)}).
		GroupBy("failure_reason").
		OrderBy("failure_reason").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]FailedRequests, 0, 5)
	if err = p.db.SelectContext(ctx, &res, q, args...); err != nil {
		return nil, fmt.Errorf("can't select failed bridge requests: %w", err)
	}
	return res, nil
}
