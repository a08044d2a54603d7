package monitor

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/contract/constants"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/jobs"
)

const ethDestination = "90f8bf6a479f320ead074411a4b0e7944ea8c9c1"

// sentMint creates an Iron Fish to Ethereum IRON request, sends it and runs
// the mint job, leaving it waiting for the mint receipt.
func sentMint(t *testing.T, h *harness) (*entity.BridgeRequest, common.Hash) {
	t.Helper()
	ctx := context.Background()
	sourceTx := "if01"
	ids, err := h.service.Create(ctx, []*bridge.NewRequest{{
		Asset:              constants.IronAssetID,
		SourceAddress:      "ifsender",
		DestinationAddress: ethDestination,
		Amount:             decimal.NewFromInt(100),
		SourceChain:        entity.ChainIronfish,
		DestinationChain:   entity.ChainEthereum,
		SourceTransaction:  &sourceTx,
	}})
	require.NoError(t, err)
	id := ids["ifsender"]
	_, err = h.service.Send(ctx, []*bridge.SendItem{{
		ID:            &id,
		SourceAddress: "ifsender",
		Asset:         constants.IronAssetID,
		Amount:        decimal.NewFromInt(100),
	}})
	require.NoError(t, err)

	_, err = h.runJob(t, jobs.RequestKey(jobs.KindMintWIron, id))
	require.NoError(t, err)
	sent := h.client.SentTransactions()
	require.Len(t, sent, 1)
	return h.request(t, id), sent[0].Hash()
}

func TestConfirmations(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Head, Block uint
		Expected    uint
	}{
		{Head: 100, Block: 100, Expected: 1},
		{Head: 111, Block: 100, Expected: 12},
		{Head: 99, Block: 100, Expected: 0},
	} {
		require.Equal(t, test.Expected, Confirmations(test.Head, test.Block))
	}
}

func TestConfirmationMonitor_MintConfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	req, txHash := sentMint(t, h)
	require.Equal(t, entity.StatusPendingDestinationMintTransactionConfirmation, req.Status)
	require.Equal(t, txHash.Hex(), *req.DestinationTransaction)

	key := jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID)
	job, err := h.repo.Jobs.GetByKey(ctx, key)
	require.NoError(t, err)
	require.True(t, h.now.Add(h.cfg.Ethereum.ConfirmationDelay()).Equal(job.RunAt))

	h.client.SetReceipt(txHash, finalReceipt(100, types.ReceiptStatusSuccessful))
	h.client.SetHead(111)
	_, err = h.runJob(t, key)
	require.NoError(t, err)

	stored := h.request(t, req.ID)
	require.Equal(t, entity.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Empty(t, h.failures(t, req.ID))
}

func TestConfirmationMonitor_FinalityGating(t *testing.T) {
	t.Parallel()

	for _, threshold := range []uint{1, 2, 5, 10} {
		for confirmations := uint(0); confirmations < threshold; confirmations++ {
			threshold, confirmations := threshold, confirmations
			t.Run(fmt.Sprintf("%d of %d", confirmations, threshold), func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				h := newHarness(t)
				h.cfg.Ethereum.FinalityHeightRange = threshold
				req, txHash := sentMint(t, h)
				if confirmations > 0 {
					h.client.SetReceipt(txHash, finalReceipt(100, types.ReceiptStatusSuccessful))
					h.client.SetHead(100 + confirmations - 1)
				}

				key := jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID)
				_, err := h.runJob(t, key)
				require.NoError(t, err)
				require.Equal(t, entity.StatusPendingDestinationMintTransactionConfirmation, h.request(t, req.ID).Status)

				job, err := h.repo.Jobs.GetByKey(ctx, key)
				require.NoError(t, err)
				var payload jobs.ConfirmationPayload
				require.NoError(t, jobs.DecodePayload(job, &payload))
				require.EqualValues(t, 1, payload.Attempt)
				require.True(t, h.now.Add(h.cfg.Ethereum.ConfirmationRetryDelay).Equal(job.RunAt))
			})
		}
	}
}

func TestConfirmationMonitor_ZeroFinalityConfirmsInHeadBlock(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.Ethereum.FinalityHeightRange = 0
	req, txHash := sentMint(t, h)
	h.client.SetReceipt(txHash, finalReceipt(100, types.ReceiptStatusSuccessful))
	h.client.SetHead(100)

	_, err := h.runJob(t, jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID))
	require.NoError(t, err)
	require.Equal(t, entity.StatusConfirmed, h.request(t, req.ID).Status)
}

func TestConfirmationMonitor_RevertedMintFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, txHash := sentMint(t, h)
	h.client.SetReceipt(txHash, finalReceipt(100, types.ReceiptStatusFailed))
	h.client.SetHead(200)

	_, err := h.runJob(t, jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID))
	require.NoError(t, err)

	stored := h.request(t, req.ID)
	require.Equal(t, entity.StatusFailed, stored.Status)
	require.Equal(t, entity.FailureDestinationMintTransactionFailed, *stored.FailureReason)
	require.Equal(t, []entity.FailureReason{entity.FailureDestinationMintTransactionFailed}, h.failures(t, req.ID))
}

func TestConfirmationMonitor_TimeoutIsRecordedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	req, _ := sentMint(t, h)
	key := jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID)

	for attempt := uint(1); attempt <= h.cfg.Ethereum.MaxConfirmationAttempts+1; attempt++ {
		_, err := h.runJob(t, key)
		require.NoError(t, err)
		job, err := h.repo.Jobs.GetByKey(ctx, key)
		require.NoError(t, err)
		var payload jobs.ConfirmationPayload
		require.NoError(t, jobs.DecodePayload(job, &payload))
		require.Equal(t, attempt, payload.Attempt)
	}

	require.Equal(t, []entity.FailureReason{entity.FailureTransactionConfirmationTimeout}, h.failures(t, req.ID))
	require.Equal(t, entity.StatusPendingDestinationMintTransactionConfirmation, h.request(t, req.ID).Status)
}

func TestConfirmationMonitor_BurnChainsIntoRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	addDeposit(h, constants.WIronContractAddress, 100, 9, common.HexToHash("0xb2"))
	h.client.SetHead(115)
	h.client.AddHeader(105, "105")
	require.NoError(t, h.poller.Refresh(ctx, "wiron"))
	req, err := h.repo.BridgeRequests.GetBySourceTransaction(ctx, common.HexToHash("0xb2").Hex())
	require.NoError(t, err)

	_, err = h.runJob(t, jobs.RequestKey(jobs.KindBurnWIron, req.ID))
	require.NoError(t, err)
	stored := h.request(t, req.ID)
	require.Equal(t, entity.StatusPendingSourceBurnTransactionConfirmation, stored.Status)
	sent := h.client.SentTransactions()
	require.Len(t, sent, 1)
	require.Equal(t, sent[0].Hash().Hex(), *stored.SourceBurnTransaction)
	require.Equal(t, constants.WIronContractAddress, *sent[0].To())

	h.client.SetReceipt(sent[0].Hash(), finalReceipt(110, types.ReceiptStatusSuccessful))
	h.client.SetHead(130)
	_, err = h.runJob(t, jobs.RequestKey(jobs.KindRefreshBurnWIronTransactionStatus, req.ID))
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingDestinationReleaseTransactionCreation, h.request(t, req.ID).Status)

	next, err := h.service.NextWIronRequests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
}

func TestConfirmationMonitor_StoreErrorsReschedule(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name       string
		FailGet    bool
		FailUpdate bool
		Recorded   []entity.FailureReason
	}{
		{Name: "load", FailGet: true, Recorded: []entity.FailureReason{}},
		{Name: "transition", FailUpdate: true, Recorded: []entity.FailureReason{entity.FailureJobHandlerFailed}},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness(t)
			req, txHash := sentMint(t, h)
			h.client.SetReceipt(txHash, finalReceipt(100, types.ReceiptStatusSuccessful))
			h.client.SetHead(111)
			h.repo.BridgeRequests = &failingRequests{
				BridgeRequestsRepo: h.repo.BridgeRequests,
				failGet:            test.FailGet,
				failUpdate:         test.FailUpdate,
			}

			key := jobs.RequestKey(jobs.KindRefreshMintWIronTransactionStatus, req.ID)
			_, err := h.runJob(t, key)
			require.NoError(t, err, "the monitor owns its retries")
			require.Equal(t, entity.StatusPendingDestinationMintTransactionConfirmation, h.request(t, req.ID).Status)
			require.Equal(t, test.Recorded, h.failures(t, req.ID))

			job, err := h.repo.Jobs.GetByKey(ctx, key)
			require.NoError(t, err)
			var payload jobs.ConfirmationPayload
			require.NoError(t, jobs.DecodePayload(job, &payload))
			require.EqualValues(t, 1, payload.Attempt)
			require.Equal(t, req.ID, payload.BridgeRequestID)
			require.True(t, h.now.Add(h.cfg.Ethereum.ConfirmationRetryDelay).Equal(job.RunAt))

			// the next check goes through
			_, err = h.runJob(t, key)
			require.NoError(t, err)
			require.Equal(t, entity.StatusConfirmed, h.request(t, req.ID).Status)
		})
	}
}
