package monitor

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/contract/constants"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/ethclient/ethclienttest"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/repository"
)

var (
	depositAddress = common.HexToAddress("0x00000000000000000000000000000000000bbbbb")
	senderAddress  = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
)

type harness struct {
	cfg        *config.Config
	client     *ethclienttest.Fake
	repo       *repository.Repo
	service    *bridge.Service
	dispatcher *Dispatcher
	poller     *Poller
	now        time.Time
}

func testKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		Ethereum: &config.EthereumConfig{
			ChainID:                 constants.SepoliaChainID,
			BlockTime:               15 * time.Second,
			ExplorerURL:             constants.SepoliaExplorerURL,
			DepositAddress:          depositAddress,
			FinalityHeightRange:     10,
			QueryHeightRange:        5,
			MaxBlockRangeSize:       3,
			RefreshTransfersPeriod:  2 * time.Minute,
			ConfirmationRetryDelay:  time.Minute,
			MaxConfirmationAttempts: 3,
		},
		Assets: map[string]*config.AssetConfig{
			"wiron": {
				Name:        "wiron",
				AssetID:     constants.IronAssetID,
				Contract:    constants.WIronContractAddress,
				DepositPath: config.DepositPathBurn,
				PrivateKey:  testKey(t),
				StartBlock:  100,
			},
			"test_usdc": {
				Name:        "test_usdc",
				AssetID:     constants.IronfishTestUSDCAssetID,
				Contract:    constants.TestUSDCContractAddress,
				DepositPath: config.DepositPathMint,
				PrivateKey:  testKey(t),
				StartBlock:  100,
			},
		},
		Worker: &config.WorkerConfig{Concurrency: 1, MaxAttempts: 5, StaleLockTimeout: time.Hour},
	}
	client := ethclienttest.NewFake(11155111)
	repo := repository.NewInMemoryRepo()
	queue := jobs.NewQueue(repo.Jobs, cfg.Worker)
	service := bridge.NewService(logger, repo, queue, cfg)
	contracts, err := NewContracts(logger, client, cfg)
	require.NoError(t, err)

	now := time.Now()
	poller := NewPoller(logger, cfg, client, repo, service, queue, contracts)
	poller.now = func() time.Time { return now }
	submitter := NewSubmitter(logger, cfg.Ethereum, repo, service, queue, contracts)
	submitter.now = poller.now
	confirmations := NewConfirmationMonitor(logger, cfg.Ethereum, client, service, queue)
	confirmations.now = poller.now

	return &harness{
		cfg:        cfg,
		client:     client,
		repo:       repo,
		service:    service,
		dispatcher: NewDispatcher(logger, service, poller, submitter, confirmations),
		poller:     poller,
		now:        now,
	}
}

// runJob dispatches the pending job stored under key.
func (h *harness) runJob(t *testing.T, key string) (*entity.Job, error) {
	t.Helper()
	job, err := h.repo.Jobs.GetByKey(context.Background(), key)
	require.NoError(t, err, "job %s is pending", key)
	_, err = h.dispatcher.Dispatch(context.Background(), job)
	return job, err
}

func (h *harness) request(t *testing.T, id int64) *entity.BridgeRequest {
	t.Helper()
	req, err := h.service.Get(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (h *harness) failures(t *testing.T, id int64) []entity.FailureReason {
	t.Helper()
	rows, err := h.repo.FailedBridgeRequests.FindByBridgeRequestID(context.Background(), id)
	require.NoError(t, err)
	res := make([]entity.FailureReason, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.FailureReason)
	}
	return res
}

func finalReceipt(block int64, status uint64) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		BlockHash:   common.HexToHash("0x01"),
		BlockNumber: big.NewInt(block),
	}
}

type failingHeads struct {
	entity.ChainHeadsRepo
	fail bool
}

var errInjected = errors.New("injected failure")

func (r *failingHeads) Ensure(ctx context.Context, head *entity.ChainHead) error {
	if r.fail {
		r.fail = false
		return errInjected
	}
	return r.ChainHeadsRepo.Ensure(ctx, head)
}

type failingRequests struct {
	entity.BridgeRequestsRepo
	failGet    bool
	failUpdate bool
}

func (r *failingRequests) GetByID(ctx context.Context, id int64) (*entity.BridgeRequest, error) {
	if r.failGet {
		r.failGet = false
		return nil, errInjected
	}
	return r.BridgeRequestsRepo.GetByID(ctx, id)
}

func (r *failingRequests) Update(ctx context.Context, patch *entity.BridgeRequestPatch) (*entity.BridgeRequest, error) {
	if r.failUpdate {
		r.failUpdate = false
		return nil, errInjected
	}
	return r.BridgeRequestsRepo.Update(ctx, patch)
}
