package entity

import (
	"context"
	"time"
)

// IronfishHeadAsset keys the relay's last committed Iron Fish block.
const IronfishHeadAsset = "ironfish"

type ChainHead struct {
	Asset     string     `db:"asset"`
	Hash      string     `db:"hash"`
	Height    uint       `db:"height"`
	CreatedAt *time.Time `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

type ChainHeadsRepo interface {
	Ensure(ctx context.Context, head *ChainHead) error
	GetByAsset(ctx context.Context, asset string) (*ChainHead, error)
}
