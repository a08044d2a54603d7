package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/contract"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/repository"
	"github.com/iron-fish/ironfish-bridge/utils"
)

var ErrNullHead = errors.New("block has no hash")

// Poller ingests deposit events of one asset per run and advances that
// asset's chain head together with the requests it produced.
type Poller struct {
	logger    logging.Logger
	cfg       *config.Config
	client    ethclient.Client
	repo      *repository.Repo
	service   *bridge.Service
	queue     bridge.Enqueuer
	contracts Contracts
	now       func() time.Time
}

func NewPoller(logger logging.Logger, cfg *config.Config, client ethclient.Client, repo *repository.Repo, service *bridge.Service, queue bridge.Enqueuer, contracts Contracts) *Poller {
	return &Poller{
		logger:    logger,
		cfg:       cfg,
		client:    client,
		repo:      repo,
		service:   service,
		queue:     queue,
		contracts: contracts,
		now:       time.Now,
	}
}

// HeadKey is the chain_heads key of an asset: its normalized contract address.
func HeadKey(asset *config.AssetConfig) string {
	return utils.NormalizeAddress(asset.Contract.Hex())
}

// Refresh runs one poll for the named asset and schedules the next one.
// Poll failures are transient; they are logged and retried by the next run.
func (p *Poller) Refresh(ctx context.Context, assetName string) error {
	asset := p.cfg.Asset(assetName)
	if asset == nil {
		return fmt.Errorf("unknown asset %q", assetName)
	}
	logger := logging.ContextLogger(ctx, p.logger).WithField("asset", assetName)
	if err := p.poll(ctx, logger, asset); err != nil {
		logger.WithError(err).Error("failed to refresh asset transfers")
	}
	return p.Schedule(ctx, assetName, p.now().Add(p.cfg.Ethereum.RefreshTransfersPeriod))
}

// Schedule enqueues the poll for assetName at runAt, replacing a pending one.
func (p *Poller) Schedule(ctx context.Context, assetName string, runAt time.Time) error {
	_, err := p.queue.Add(ctx, jobs.KindRefreshEthereumAssetTransfers, jobs.AssetPayload{Asset: assetName},
		jobs.WithRunAt(runAt), jobs.WithJobKey(jobs.RefreshTransfersKey(assetName)))
	return err
}

func (p *Poller) poll(ctx context.Context, logger logging.Logger, asset *config.AssetConfig) error {
	token, err := p.contracts.ForAsset(asset.AssetID)
	if err != nil {
		return err
	}
	remoteHead, err := p.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't get chain head: %w", err)
	}
	fromBlock := asset.StartBlock
	head, err := p.repo.ChainHeads.GetByAsset(ctx, HeadKey(asset))
	if err != nil && !db.IsNotFound(err) {
		return fmt.Errorf("can't read chain head: %w", err)
	}
	if head != nil {
		fromBlock = head.Height
	}
	window, toBlock, ok := PollWindow(fromBlock, remoteHead, p.cfg.Ethereum.FinalityHeightRange, p.cfg.Ethereum.QueryHeightRange)
	if !ok {
		logger.WithFields(logrus.Fields{
			"from_block": fromBlock,
			"chain_head": remoteHead,
		}).Debug("no new finalized blocks")
		return nil
	}

	logger = logger.WithFields(logrus.Fields{
		"from_block": window.From,
		"to_block":   window.To,
	})
	deposits, err := p.fetchDeposits(ctx, token, window)
	if err != nil {
		return err
	}
	header, err := p.client.HeaderByNumber(ctx, toBlock)
	if err != nil {
		return fmt.Errorf("can't get block %d: %w", toBlock, err)
	}
	if header == nil || header.Hash() == (common.Hash{}) {
		return fmt.Errorf("block %d: %w", toBlock, ErrNullHead)
	}

	err = p.repo.RunInTx(ctx, func(ctx context.Context) error {
		for _, deposit := range deposits {
			if _, err := p.service.Ingest(ctx, p.newRequest(asset, deposit)); err != nil {
				return err
			}
		}
		return p.repo.ChainHeads.Ensure(ctx, &entity.ChainHead{
			Asset:  HeadKey(asset),
			Hash:   header.Hash().Hex(),
			Height: toBlock,
		})
	})
	if err != nil {
		return fmt.Errorf("can't commit ingested deposits: %w", err)
	}
	PollerHeadHeight.WithLabelValues(asset.Name).Set(float64(toBlock))
	PollerIngestedRequests.WithLabelValues(asset.Name).Add(float64(len(deposits)))
	logger.WithField("count", len(deposits)).Info("ingested deposit events")
	return nil
}

func (p *Poller) fetchDeposits(ctx context.Context, token *contract.TokenContract, window BlockRange) ([]*contract.TransferWithMetadata, error) {
	var res []*contract.TransferWithMetadata
	for _, r := range window.Split(p.cfg.Ethereum.MaxBlockRangeSize) {
		logs, err := p.client.FilterLogsSafe(ctx, token.DepositsQuery(p.cfg.Ethereum.DepositAddress, r.From, r.To))
		if err != nil {
			return nil, fmt.Errorf("can't fetch deposit logs in [%d, %d]: %w", r.From, r.To, err)
		}
		for i := range logs {
			deposit, err := token.ParseTransferWithMetadata(&logs[i])
			if err != nil {
				return nil, err
			}
			if deposit.Value.Sign() <= 0 {
				continue
			}
			res = append(res, deposit)
		}
	}
	return res, nil
}

func (p *Poller) newRequest(asset *config.AssetConfig, deposit *contract.TransferWithMetadata) *bridge.NewRequest {
	status := entity.StatusPendingDestinationMintTransactionCreation
	if asset.DepositPath == config.DepositPathBurn {
		status = entity.StatusPendingSourceBurnTransactionCreation
	}
	sourceTx := deposit.TxHash.Hex()
	return &bridge.NewRequest{
		Asset:              asset.AssetID,
		SourceAddress:      deposit.From.Hex(),
		DestinationAddress: common.Bytes2Hex(deposit.Metadata),
		Amount:             decimal.NewFromBigInt(deposit.Value, 0),
		SourceChain:        entity.ChainEthereum,
		DestinationChain:   entity.ChainIronfish,
		SourceTransaction:  &sourceTx,
		Status:             status,
	}
}
