package repository

import (
	"context"

	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/repository/memory"
	"github.com/iron-fish/ironfish-bridge/repository/postgres"
)

// TxRunner runs fn atomically. Repository calls made with the ctx passed to
// fn join the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repo struct {
	TxRunner
	BridgeRequests       entity.BridgeRequestsRepo
	FailedBridgeRequests entity.FailedBridgeRequestsRepo
	ChainHeads           entity.ChainHeadsRepo
	Jobs                 entity.JobsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		TxRunner:             db,
		BridgeRequests:       postgres.NewBridgeRequestsRepo("bridge_requests", db),
		FailedBridgeRequests: postgres.NewFailedBridgeRequestsRepo("failed_bridge_requests", db),
		ChainHeads:           postgres.NewChainHeadsRepo("chain_heads", db),
		Jobs:                 postgres.NewJobsRepo("jobs", db),
	}
}

// NewInMemoryRepo is backed by process memory. Used by tests and local runs
// without postgres.
func NewInMemoryRepo() *Repo {
	store := memory.NewStore()
	return &Repo{
		TxRunner:             store,
		BridgeRequests:       store.BridgeRequests(),
		FailedBridgeRequests: store.FailedBridgeRequests(),
		ChainHeads:           store.ChainHeads(),
		Jobs:                 store.Jobs(),
	}
}
