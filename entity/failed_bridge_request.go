package entity

import (
	"context"
	"time"
)

type FailedBridgeRequest struct {
	ID              int64         `db:"id" json:"id"`
	BridgeRequestID *int64        `db:"bridge_request_id" json:"bridge_request_id"`
	FailureReason   FailureReason `db:"failure_reason" json:"failure_reason"`
	Error           *string       `db:"error" json:"error"`
	CreatedAt       *time.Time    `db:"created_at" json:"created_at"`
}

type FailedBridgeRequestsRepo interface {
	Insert(ctx context.Context, failure *FailedBridgeRequest) (*FailedBridgeRequest, error)
	FindByBridgeRequestID(ctx context.Context, id int64) ([]*FailedBridgeRequest, error)
}
