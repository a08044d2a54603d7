package bridge

import (
	"github.com/shopspring/decimal"

	"github.com/iron-fish/ironfish-bridge/entity"
)

const (
	DefaultQueueCount = 1
	MaxQueueCount     = 100
)

// NewRequest describes a request reported by the relay or the poller.
type NewRequest struct {
	Asset                  string
	SourceAddress          string
	DestinationAddress     string
	Amount                 decimal.Decimal
	SourceChain            entity.Chain
	DestinationChain       entity.Chain
	SourceTransaction      *string
	DestinationTransaction *string
	Status                 entity.BridgeRequestStatus
}

// SendItem asks to move a CREATED request into the mint path. It names the
// request by ID or, when ID is nil, by SourceTransaction.
type SendItem struct {
	ID                *int64
	SourceTransaction *string
	SourceAddress     string
	Asset             string
	Amount            decimal.Decimal
}

// ReleaseItem names a request by ID or every request of a burn transaction.
type ReleaseItem struct {
	ID                    *int64
	SourceBurnTransaction *string
}

type ConfirmItem struct {
	ID                     int64
	DestinationTransaction string
}

type UpdateItem struct {
	ID                     int64
	Status                 *entity.BridgeRequestStatus
	DestinationTransaction *string
	SourceTransaction      *string
	SourceBurnTransaction  *string
}

// ItemResult is the per-item outcome of a batch operation. A nil Status
// means the item did not match an actionable request.
type ItemResult struct {
	ID            *int64                      `json:"id,omitempty"`
	Status        *entity.BridgeRequestStatus `json:"status"`
	FailureReason *entity.FailureReason       `json:"failureReason,omitempty"`
}

func nullResult() *ItemResult {
	return &ItemResult{}
}

func statusResult(req *entity.BridgeRequest) *ItemResult {
	return &ItemResult{ID: &req.ID, Status: entity.Ptr(req.Status), FailureReason: req.FailureReason}
}

func failedResult(id *int64, reason entity.FailureReason) *ItemResult {
	return &ItemResult{ID: id, Status: entity.Ptr(entity.StatusFailed), FailureReason: &reason}
}
