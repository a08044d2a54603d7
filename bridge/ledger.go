package bridge

import (
	"context"
	"fmt"

	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/logging"
)

// Ledger appends failure audit rows. It never mutates bridge requests.
type Ledger struct {
	logger logging.Logger
	repo   entity.FailedBridgeRequestsRepo
}

func NewLedger(logger logging.Logger, repo entity.FailedBridgeRequestsRepo) *Ledger {
	return &Ledger{logger: logger, repo: repo}
}

// Record writes one failure row. req may be nil when the failure could not
// be linked to a request.
func (l *Ledger) Record(ctx context.Context, req *entity.BridgeRequest, reason entity.FailureReason, detail string) error {
	row := &entity.FailedBridgeRequest{FailureReason: reason}
	if req != nil {
		row.BridgeRequestID = &req.ID
	}
	if detail != "" {
		row.Error = &detail
	}
	if _, err := l.repo.Insert(ctx, row); err != nil {
		return fmt.Errorf("can't record %s failure: %w", reason, err)
	}
	Failures.WithLabelValues(string(reason)).Inc()

	logger := logging.ContextLogger(ctx, l.logger).WithField("failure_reason", reason)
	if req != nil {
		logger = logger.WithField("bridge_request_id", req.ID)
	}
	logger.WithField("detail", detail).Warn("recorded bridge request failure")
	return nil
}
