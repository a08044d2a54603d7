package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/contract"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/repository"
	"github.com/iron-fish/ironfish-bridge/utils"
)

type submission struct {
	from   entity.BridgeRequestStatus
	to     entity.BridgeRequestStatus
	send   func(ctx context.Context, token *contract.TokenContract, req *entity.BridgeRequest) (*types.Transaction, error)
	record func(patch *entity.BridgeRequestPatch, hash string)
}

var submissions = map[jobs.Kind]submission{
	jobs.KindMintWIron: {
		from: entity.StatusPendingDestinationMintTransactionCreation,
		to:   entity.StatusPendingDestinationMintTransactionConfirmation,
		send: func(ctx context.Context, token *contract.TokenContract, req *entity.BridgeRequest) (*types.Transaction, error) {
			return token.Mint(ctx, utils.EthAddress(req.DestinationAddress), req.Amount.BigInt())
		},
		record: setDestinationTransaction,
	},
	jobs.KindBurnWIron: {
		from: entity.StatusPendingSourceBurnTransactionCreation,
		to:   entity.StatusPendingSourceBurnTransactionConfirmation,
		send: func(ctx context.Context, token *contract.TokenContract, req *entity.BridgeRequest) (*types.Transaction, error) {
			return token.Burn(ctx, req.Amount.BigInt())
		},
		record: func(patch *entity.BridgeRequestPatch, hash string) {
			patch.SourceBurnTransaction = &hash
		},
	},
	jobs.KindReleaseTestUSDC: {
		from: entity.StatusPendingDestinationReleaseTransactionCreation,
		to:   entity.StatusPendingDestinationReleaseTransactionConfirmation,
		send: func(ctx context.Context, token *contract.TokenContract, req *entity.BridgeRequest) (*types.Transaction, error) {
			return token.Transfer(ctx, utils.EthAddress(req.DestinationAddress), req.Amount.BigInt())
		},
		record: setDestinationTransaction,
	},
}

func setDestinationTransaction(patch *entity.BridgeRequestPatch, hash string) {
	patch.DestinationTransaction = &hash
}

// Submitter sends the Ethereum transaction of a mint, burn or release job
// and hands the request over to the confirmation monitor.
type Submitter struct {
	logger    logging.Logger
	cfg       *config.EthereumConfig
	repo      *repository.Repo
	service   *bridge.Service
	queue     bridge.Enqueuer
	contracts Contracts
	now       func() time.Time
}

func NewSubmitter(logger logging.Logger, cfg *config.EthereumConfig, repo *repository.Repo, service *bridge.Service, queue bridge.Enqueuer, contracts Contracts) *Submitter {
	return &Submitter{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		service:   service,
		queue:     queue,
		contracts: contracts,
		now:       time.Now,
	}
}

func (s *Submitter) Submit(ctx context.Context, kind jobs.Kind, id int64) error {
	sub, ok := submissions[kind]
	if !ok {
		return fmt.Errorf("%s is not a submission job", kind)
	}
	logger := logging.ContextLogger(ctx, s.logger).WithField("bridge_request_id", id)

	req, err := s.service.Get(ctx, id)
	if errors.Is(err, bridge.ErrRequestNotFound) {
		logger.Error("no bridge request for submission")
		return nil
	}
	if err != nil {
		return err
	}
	if req.Status != sub.from {
		logger.WithField("status", req.Status).Error("invalid status for submission")
		return nil
	}
	if kind != jobs.KindBurnWIron && !utils.IsEthAddress(req.DestinationAddress) {
		_, err = s.service.Fail(ctx, req, entity.FailureJobHandlerFailed, fmt.Sprintf("invalid destination address %q", req.DestinationAddress))
		return err
	}
	token, err := s.contracts.ForAsset(req.Asset)
	if err != nil {
		return err
	}

	tx, err := sub.send(ctx, token, req)
	if err != nil {
		return fmt.Errorf("can't send %s transaction: %w", kind, err)
	}
	hash := tx.Hash().Hex()
	logger = logger.WithFields(logrus.Fields{
		"tx_hash": hash,
		"tx_link": utils.TxLink(s.cfg.ExplorerURL, s.cfg.ChainID, hash),
	})
	logger.Info("submitted bridge transaction")

	confirmKind := kind.ConfirmationKind()
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		patch := &entity.BridgeRequestPatch{ID: req.ID}
		sub.record(patch, hash)
		if _, err := s.service.Transition(ctx, patch, sub.to); err != nil {
			return err
		}
		_, err := s.queue.Add(ctx, confirmKind, jobs.ConfirmationPayload{BridgeRequestID: req.ID},
			jobs.WithRunAt(s.now().Add(s.cfg.ConfirmationDelay())),
			jobs.WithJobKey(jobs.RequestKey(confirmKind, req.ID)))
		return err
	})
	if err != nil {
		// the transaction is out, a retry would send it twice
		return fmt.Errorf("can't record %s transaction %s: %v: %w", kind, hash, err, ErrNoRetry)
	}
	return nil
}
