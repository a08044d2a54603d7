package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/contract/constants"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/repository"
	"github.com/iron-fish/ironfish-bridge/utils"
)

const (
	ifAddress  = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	ethAddress = "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"
)

func testConfig() *config.Config {
	return &config.Config{
		Assets: map[string]*config.AssetConfig{
			"wiron": {
				Name:        "wiron",
				AssetID:     constants.IronAssetID,
				Contract:    constants.WIronContractAddress,
				DepositPath: config.DepositPathBurn,
			},
			"test_usdc": {
				Name:        "test_usdc",
				AssetID:     constants.IronfishTestUSDCAssetID,
				Contract:    constants.TestUSDCContractAddress,
				DepositPath: config.DepositPathMint,
			},
		},
		Worker: &config.WorkerConfig{MaxAttempts: 5, StaleLockTimeout: time.Hour},
	}
}

func newTestService(t *testing.T) (*Service, *repository.Repo) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repo := repository.NewInMemoryRepo()
	cfg := testConfig()
	return NewService(logger, repo, jobs.NewQueue(repo.Jobs, cfg.Worker), cfg), repo
}

func createRequest(t *testing.T, s *Service, asset string, amount int64) *entity.BridgeRequest {
	t.Helper()
	ctx := context.Background()
	ids, err := s.Create(ctx, []*NewRequest{{
		Asset:              asset,
		SourceAddress:      ifAddress,
		DestinationAddress: ethAddress,
		Amount:             decimal.NewFromInt(amount),
		SourceChain:        entity.ChainIronfish,
		DestinationChain:   entity.ChainEthereum,
	}})
	require.NoError(t, err)
	req, err := s.Get(ctx, ids[ifAddress])
	require.NoError(t, err)
	return req
}

func TestService_CreateUnsupportedAsset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, repo := newTestService(t)
	req := createRequest(t, s, "ff", 10)
	require.Equal(t, entity.StatusFailed, req.Status)
	require.Equal(t, entity.FailureRequestAssetNotSupported, *req.FailureReason)

	rows, err := repo.FailedBridgeRequests.FindByBridgeRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestService_SendValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		Name   string
		From   entity.BridgeRequestStatus
		Item   func(req *entity.BridgeRequest) *SendItem
		Reason entity.FailureReason
	}{
		{
			Name: "unknown id",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: entity.Ptr(req.ID + 100), SourceAddress: ifAddress, Asset: constants.IronAssetID, Amount: decimal.NewFromInt(10)}
			},
			Reason: entity.FailureRequestNonExistent,
		},
		{
			Name: "source address",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: &req.ID, SourceAddress: "ff", Asset: constants.IronAssetID, Amount: decimal.NewFromInt(10)}
			},
			Reason: entity.FailureRequestSourceAddressNotMatching,
		},
		{
			Name: "asset",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: &req.ID, SourceAddress: ifAddress, Asset: constants.IronfishTestUSDCAssetID, Amount: decimal.NewFromInt(10)}
			},
			Reason: entity.FailureRequestAssetNotMatching,
		},
		{
			Name: "amount",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: &req.ID, SourceAddress: ifAddress, Asset: constants.IronAssetID, Amount: decimal.NewFromInt(11)}
			},
			Reason: entity.FailureRequestAmountNotMatching,
		},
		{
			Name: "unknown id and source address",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: entity.Ptr(req.ID + 100), SourceAddress: "ff", Asset: constants.IronAssetID, Amount: decimal.NewFromInt(10)}
			},
			Reason: entity.FailureRequestNonExistent,
		},
		{
			Name: "status before every field",
			From: entity.StatusPendingPretransfer,
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: &req.ID, SourceAddress: "ff", Asset: constants.IronfishTestUSDCAssetID, Amount: decimal.NewFromInt(11)}
			},
			Reason: entity.FailureRequestInvalidStatus,
		},
		{
			Name: "source address before amount",
			Item: func(req *entity.BridgeRequest) *SendItem {
				return &SendItem{ID: &req.ID, SourceAddress: "ff", Asset: constants.IronAssetID, Amount: decimal.NewFromInt(11)}
			},
			Reason: entity.FailureRequestSourceAddressNotMatching,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s, repo := newTestService(t)
			req := createRequest(t, s, constants.IronAssetID, 10)
			status := entity.StatusCreated
			if test.From != "" {
				_, err := s.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID}, test.From)
				require.NoError(t, err)
				status = test.From
			}
			item := test.Item(req)

			res, err := s.Send(ctx, []*SendItem{item})
			require.NoError(t, err)
			got := res[itemKey(item.ID, item.SourceTransaction)]
			require.NotNil(t, got)
			require.Equal(t, entity.StatusFailed, *got.Status)
			require.Equal(t, test.Reason, *got.FailureReason)

			stored, err := s.Get(ctx, req.ID)
			require.NoError(t, err)
			require.Equal(t, status, stored.Status, "a rejected send leaves the request untouched")

			_, err = repo.Jobs.GetByKey(ctx, jobs.RequestKey(jobs.KindMintWIron, req.ID))
			require.Error(t, err)
		})
	}
}

func TestService_SendSchedulesMint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, repo := newTestService(t)
	req := createRequest(t, s, constants.IronAssetID, 10)
	sourceTx := "aa"

	res, err := s.Send(ctx, []*SendItem{{
		ID:                &req.ID,
		SourceTransaction: &sourceTx,
		SourceAddress:     ifAddress,
		Asset:             constants.IronAssetID,
		Amount:            decimal.NewFromInt(10),
	}})
	require.NoError(t, err)
	got := res[itemKey(&req.ID, nil)]
	require.Equal(t, entity.StatusPendingDestinationMintTransactionCreation, *got.Status)
	require.Nil(t, got.FailureReason)

	stored, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, sourceTx, *stored.SourceTransaction)
	require.NotNil(t, stored.StartedAt)

	job, err := repo.Jobs.GetByKey(ctx, jobs.RequestKey(jobs.KindMintWIron, req.ID))
	require.NoError(t, err)
	require.Equal(t, string(jobs.KindMintWIron), job.Kind)

	// a second send is rejected by status and keeps the request going
	res, err = s.Send(ctx, []*SendItem{{ID: &req.ID, SourceAddress: ifAddress, Asset: constants.IronAssetID, Amount: decimal.NewFromInt(10)}})
	require.NoError(t, err)
	require.Equal(t, entity.FailureRequestInvalidStatus, *res[itemKey(&req.ID, nil)].FailureReason)
	stored, err = s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingDestinationMintTransactionCreation, stored.Status)
}

func TestService_ReplayedCreateKeepsMintInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, repo := newTestService(t)
	sourceTx := "0xdeposit"
	deposit := &NewRequest{
		Asset:              constants.IronAssetID,
		SourceAddress:      ifAddress,
		DestinationAddress: ethAddress,
		Amount:             decimal.NewFromInt(5),
		SourceChain:        entity.ChainIronfish,
		DestinationChain:   entity.ChainEthereum,
		SourceTransaction:  &sourceTx,
	}
	send := &SendItem{SourceTransaction: &sourceTx, SourceAddress: ifAddress, Asset: constants.IronAssetID, Amount: decimal.NewFromInt(5)}

	ids, err := s.Create(ctx, []*NewRequest{deposit})
	require.NoError(t, err)
	id := ids[ifAddress]
	_, err = s.Send(ctx, []*SendItem{send})
	require.NoError(t, err)

	// the mint was submitted and its job finished
	_, err = s.Transition(ctx, &entity.BridgeRequestPatch{ID: id, DestinationTransaction: entity.Ptr("0xmint1")},
		entity.StatusPendingDestinationMintTransactionConfirmation)
	require.NoError(t, err)
	job, err := repo.Jobs.GetByKey(ctx, jobs.RequestKey(jobs.KindMintWIron, id))
	require.NoError(t, err)
	require.NoError(t, repo.Jobs.Delete(ctx, job.ID))

	replayed := *deposit
	replayed.Status = ""
	ids, err = s.Create(ctx, []*NewRequest{&replayed})
	require.NoError(t, err)
	require.Equal(t, id, ids[ifAddress])
	res, err := s.Send(ctx, []*SendItem{send})
	require.NoError(t, err)
	require.Equal(t, entity.FailureRequestInvalidStatus, *res[sourceTx].FailureReason)

	stored, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingDestinationMintTransactionConfirmation, stored.Status)
	require.Equal(t, "0xmint1", *stored.DestinationTransaction)
	_, err = repo.Jobs.GetByKey(ctx, jobs.RequestKey(jobs.KindMintWIron, id))
	require.Error(t, err, "no second mint is scheduled")
}

func TestService_ReplayedBurnKeepsBurnInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestService(t)
	sourceTx := "ab01"
	burn := &NewRequest{
		Asset:              constants.IronfishTestUSDCAssetID,
		SourceAddress:      ifAddress,
		DestinationAddress: ethAddress,
		Amount:             decimal.NewFromInt(3),
		SourceChain:        entity.ChainIronfish,
		DestinationChain:   entity.ChainEthereum,
		SourceTransaction:  &sourceTx,
	}
	res, err := s.Burn(ctx, []*NewRequest{burn})
	require.NoError(t, err)
	id := *res[sourceTx].ID

	_, err = s.UpdateRequests(ctx, []*UpdateItem{{
		ID:                    id,
		Status:                entity.Ptr(entity.StatusPendingSourceBurnTransactionConfirmation),
		SourceBurnTransaction: entity.Ptr("cd02"),
	}})
	require.NoError(t, err)

	res, err = s.Burn(ctx, []*NewRequest{burn})
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingSourceBurnTransactionConfirmation, *res[sourceTx].Status)

	next, err := s.NextBurnRequests(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, next, "the burner is not asked to burn twice")
	stored, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "cd02", *stored.SourceBurnTransaction)
}

func TestService_TerminalRequestsNeverMove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		Name   string
		Finish func(t *testing.T, s *Service, req *entity.BridgeRequest)
		Status entity.BridgeRequestStatus
	}{
		{
			Name: "confirmed",
			Finish: func(t *testing.T, s *Service, req *entity.BridgeRequest) {
				t.Helper()
				_, err := s.Confirm(context.Background(), []*ConfirmItem{{ID: req.ID, DestinationTransaction: "0xdone"}})
				require.NoError(t, err)
			},
			Status: entity.StatusConfirmed,
		},
		{
			Name: "failed",
			Finish: func(t *testing.T, s *Service, req *entity.BridgeRequest) {
				t.Helper()
				_, err := s.Fail(context.Background(), req, entity.FailureJobHandlerFailed, "boom")
				require.NoError(t, err)
			},
			Status: entity.StatusFailed,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s, repo := newTestService(t)
			sourceTx := "0xdeposit"
			deposit := &NewRequest{
				Asset:              constants.IronAssetID,
				SourceAddress:      ethAddress,
				DestinationAddress: ifAddress,
				Amount:             decimal.NewFromInt(3),
				SourceChain:        entity.ChainEthereum,
				DestinationChain:   entity.ChainIronfish,
				SourceTransaction:  &sourceTx,
				Status:             entity.StatusPendingOnDestinationChain,
			}
			_, err := s.Create(ctx, []*NewRequest{deposit})
			require.NoError(t, err)
			req, err := s.repo.BridgeRequests.GetBySourceTransaction(ctx, sourceTx)
			require.NoError(t, err)
			test.Finish(t, s, req)
			before, err := s.Get(ctx, req.ID)
			require.NoError(t, err)
			require.Equal(t, test.Status, before.Status)

			sent, err := s.Send(ctx, []*SendItem{{ID: &req.ID, SourceAddress: ethAddress, Asset: constants.IronAssetID, Amount: decimal.NewFromInt(3)}})
			require.NoError(t, err)
			require.Equal(t, entity.FailureRequestInvalidStatus, *sent[itemKey(&req.ID, nil)].FailureReason)

			confirmed, err := s.Confirm(ctx, []*ConfirmItem{{ID: req.ID, DestinationTransaction: "0xother"}})
			require.NoError(t, err)
			require.Nil(t, confirmed[itemKey(&req.ID, nil)].Status)

			released, err := s.Release(ctx, []*ReleaseItem{{ID: &req.ID}})
			require.NoError(t, err)
			require.Nil(t, released[itemKey(&req.ID, nil)].Status)

			for _, to := range []entity.BridgeRequestStatus{entity.StatusPendingOnDestinationChain, entity.StatusConfirmed, entity.StatusFailed} {
				_, err = s.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID}, to)
				require.ErrorIs(t, err, ErrInvalidTransition, to)
			}

			// replayed ingestion of the same source transaction
			replayed := *deposit
			_, err = s.Create(ctx, []*NewRequest{&replayed})
			require.NoError(t, err)
			burned := *deposit
			_, err = s.Burn(ctx, []*NewRequest{&burned})
			require.NoError(t, err)

			after, err := s.Get(ctx, req.ID)
			require.NoError(t, err)
			require.Equal(t, before.Status, after.Status)
			require.Equal(t, before.DestinationTransaction, after.DestinationTransaction)
			require.Equal(t, before.FailureReason, after.FailureReason)
			for _, kind := range []jobs.Kind{jobs.KindMintWIron, jobs.KindReleaseTestUSDC} {
				_, err = repo.Jobs.GetByKey(ctx, jobs.RequestKey(kind, req.ID))
				require.Error(t, err, kind)
			}
		})
	}
}

func TestService_ReleaseSchedulesJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, repo := newTestService(t)
	sourceTx := "ab01"
	burnTx := "cd02"
	res, err := s.Burn(ctx, []*NewRequest{{
		Asset:              constants.IronfishTestUSDCAssetID,
		SourceAddress:      ifAddress,
		DestinationAddress: ethAddress,
		Amount:             decimal.NewFromInt(3),
		SourceChain:        entity.ChainIronfish,
		DestinationChain:   entity.ChainEthereum,
		SourceTransaction:  &sourceTx,
	}})
	require.NoError(t, err)
	burned := res[sourceTx]
	require.Equal(t, entity.StatusPendingSourceBurnTransactionCreation, *burned.Status)
	id := *burned.ID

	// not releasable before the burn is reported
	res, err = s.Release(ctx, []*ReleaseItem{{ID: &id}})
	require.NoError(t, err)
	require.Nil(t, res[itemKey(&id, nil)].Status)

	_, err = s.UpdateRequests(ctx, []*UpdateItem{{
		ID:                    id,
		Status:                entity.Ptr(entity.StatusPendingSourceBurnTransactionConfirmation),
		SourceBurnTransaction: &burnTx,
	}})
	require.NoError(t, err)

	res, err = s.Release(ctx, []*ReleaseItem{{SourceBurnTransaction: &burnTx}})
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingDestinationReleaseTransactionCreation, *res[itemKey(&id, nil)].Status)

	_, err = repo.Jobs.GetByKey(ctx, jobs.RequestKey(jobs.KindReleaseTestUSDC, id))
	require.NoError(t, err)

	// Ethereum bound requests are confirmed by the receipt monitor only
	res, err = s.Confirm(ctx, []*ConfirmItem{{ID: id, DestinationTransaction: "0xee"}})
	require.NoError(t, err)
	require.Nil(t, res[itemKey(&id, nil)].Status)

	missing := "ffff"
	res, err = s.Release(ctx, []*ReleaseItem{{SourceBurnTransaction: &missing}})
	require.NoError(t, err)
	require.Nil(t, res[missing].Status)
}

func TestService_ConfirmIronfishRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestService(t)
	sourceTx := "0xdeposit"
	ids, err := s.Create(ctx, []*NewRequest{{
		Asset:              constants.IronAssetID,
		SourceAddress:      ethAddress,
		DestinationAddress: ifAddress,
		Amount:             decimal.NewFromInt(3),
		SourceChain:        entity.ChainEthereum,
		DestinationChain:   entity.ChainIronfish,
		SourceTransaction:  &sourceTx,
		Status:             entity.StatusPendingDestinationReleaseTransactionCreation,
	}})
	require.NoError(t, err)
	id := ids[utils.NormalizeAddress(ethAddress)]

	next, err := s.NextWIronRequests(ctx, 0)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, id, next[0].ID)

	// not confirmable before the releaser hands it to Iron Fish
	res, err := s.Confirm(ctx, []*ConfirmItem{{ID: id, DestinationTransaction: "cc"}})
	require.NoError(t, err)
	require.Nil(t, res[itemKey(&id, nil)].Status)

	_, err = s.UpdateRequests(ctx, []*UpdateItem{{ID: id, Status: entity.Ptr(entity.StatusPendingOnDestinationChain)}})
	require.NoError(t, err)

	res, err = s.Confirm(ctx, []*ConfirmItem{{ID: id, DestinationTransaction: "cc"}})
	require.NoError(t, err)
	require.Equal(t, entity.StatusConfirmed, *res[itemKey(&id, nil)].Status)

	stored, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "cc", *stored.DestinationTransaction)
	require.NotNil(t, stored.CompletedAt)

	next, err = s.NextWIronRequests(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, next)
}

func TestService_UpdateRequestsKeepsTerminalStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestService(t)
	req := createRequest(t, s, "ff", 1)
	require.Equal(t, entity.StatusFailed, req.Status)

	res, err := s.UpdateRequests(ctx, []*UpdateItem{
		{ID: req.ID, Status: entity.Ptr(entity.StatusCreated), DestinationTransaction: entity.Ptr("dd")},
		{ID: req.ID + 1, Status: entity.Ptr(entity.StatusCreated)},
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, *res[itemKey(&req.ID, nil)].Status)
	require.Nil(t, res[itemKey(entity.Ptr(req.ID+1), nil)].Status)

	stored, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "dd", *stored.DestinationTransaction)
}

func TestService_TransitionRejectsIllegalMove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestService(t)
	req := createRequest(t, s, constants.IronAssetID, 1)

	_, err := s.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID}, entity.StatusConfirmed)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID + 1}, entity.StatusConfirmed)
	require.ErrorIs(t, err, ErrRequestNotFound)

	failed, err := s.Fail(ctx, req, entity.FailureJobHandlerFailed, "boom")
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, failed.Status)

	_, err = s.Fail(ctx, failed, entity.FailureJobHandlerFailed, "again")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Head(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestService(t)
	head, err := s.Head(ctx)
	require.NoError(t, err)
	require.Nil(t, head)

	_, err = s.SetHead(ctx, "abc")
	require.NoError(t, err)
	head, err = s.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc", *head)
}

func TestClampCount(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 1, clampCount(0))
	require.EqualValues(t, 7, clampCount(7))
	require.EqualValues(t, 100, clampCount(1000))
}
