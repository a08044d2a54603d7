package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/utils"
)

type confirmation struct {
	next    entity.BridgeRequestStatus
	failure entity.FailureReason
	hash    func(req *entity.BridgeRequest) *string
}

func destinationTransaction(req *entity.BridgeRequest) *string {
	return req.DestinationTransaction
}

var confirmations = map[jobs.Kind]confirmation{
	jobs.KindRefreshMintWIronTransactionStatus: {
		next:    entity.StatusConfirmed,
		failure: entity.FailureDestinationMintTransactionFailed,
		hash:    destinationTransaction,
	},
	jobs.KindRefreshBurnWIronTransactionStatus: {
		next:    entity.StatusPendingDestinationReleaseTransactionCreation,
		failure: entity.FailureSourceBurnTransactionFailed,
		hash: func(req *entity.BridgeRequest) *string {
			return req.SourceBurnTransaction
		},
	},
	jobs.KindRefreshReleaseTestUSDCTransactionStatus: {
		next:    entity.StatusConfirmed,
		failure: entity.FailureDestinationReleaseTransactionFailed,
		hash:    destinationTransaction,
	},
}

const (
	outcomePending   = "pending"
	outcomeConfirmed = "confirmed"
	outcomeFailed    = "failed"
)

// ConfirmationMonitor polls the receipt of a submitted transaction until it
// is final, then moves the request along or fails it. It reschedules itself
// instead of reporting errors, so the worker never retries it.
type ConfirmationMonitor struct {
	logger  logging.Logger
	cfg     *config.EthereumConfig
	client  ethclient.Client
	service *bridge.Service
	queue   bridge.Enqueuer
	now     func() time.Time
}

func NewConfirmationMonitor(logger logging.Logger, cfg *config.EthereumConfig, client ethclient.Client, service *bridge.Service, queue bridge.Enqueuer) *ConfirmationMonitor {
	return &ConfirmationMonitor{
		logger:  logger,
		cfg:     cfg,
		client:  client,
		service: service,
		queue:   queue,
		now:     time.Now,
	}
}

func (m *ConfirmationMonitor) Refresh(ctx context.Context, kind jobs.Kind, payload jobs.ConfirmationPayload) error {
	conf, ok := confirmations[kind]
	if !ok {
		return fmt.Errorf("%s is not a confirmation job", kind)
	}
	logger := logging.ContextLogger(ctx, m.logger).WithFields(logrus.Fields{
		"bridge_request_id": payload.BridgeRequestID,
		"attempt":           payload.Attempt,
	})

	req, pending, err := m.check(ctx, logger, kind, conf, payload)
	if err != nil {
		logger.WithError(err).Error("can't check bridge transaction, rescheduling")
		if recErr := m.service.Ledger().Record(ctx, req, entity.FailureJobHandlerFailed, fmt.Sprintf("%s: %s", kind, err)); recErr != nil {
			logger.WithError(recErr).Error("can't record confirmation failure")
		}
		pending = true
	}
	if !pending {
		return nil
	}
	return m.retry(ctx, logger, kind, req, payload)
}

// check reports whether the request still waits for its transaction. req
// is nil when it could not be loaded.
func (m *ConfirmationMonitor) check(ctx context.Context, logger logging.Logger, kind jobs.Kind, conf confirmation, payload jobs.ConfirmationPayload) (*entity.BridgeRequest, bool, error) {
	req, err := m.service.Get(ctx, payload.BridgeRequestID)
	if errors.Is(err, bridge.ErrRequestNotFound) {
		logger.Error("no bridge request for confirmation")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("can't load bridge request: %w", err)
	}
	hash := conf.hash(req)
	if hash == nil {
		logger.WithField("status", req.Status).Error("bridge request has no transaction to confirm")
		return req, false, nil
	}
	logger = logger.WithField("tx_hash", *hash)
	if req.Status.IsTerminal() {
		logger.WithField("status", req.Status).Info("bridge request already finished")
		return req, false, nil
	}

	receipt, err := m.finalReceipt(ctx, common.HexToHash(*hash))
	if err != nil {
		logger.WithError(err).Warn("can't check transaction receipt")
	}
	if receipt == nil {
		ConfirmationAttempts.WithLabelValues(string(kind), outcomePending).Inc()
		return req, true, nil
	}

	if receipt.Status == types.ReceiptStatusFailed {
		ConfirmationAttempts.WithLabelValues(string(kind), outcomeFailed).Inc()
		detail := fmt.Sprintf("transaction reverted: %s", utils.TxLink(m.cfg.ExplorerURL, m.cfg.ChainID, *hash))
		if _, err = m.service.Fail(ctx, req, conf.failure, detail); err != nil {
			return req, false, m.ignoreInvalidTransition(logger, err)
		}
		logger.Warn("bridge transaction failed")
		return req, false, nil
	}

	ConfirmationAttempts.WithLabelValues(string(kind), outcomeConfirmed).Inc()
	if _, err = m.service.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID}, conf.next); err != nil {
		return req, false, m.ignoreInvalidTransition(logger, err)
	}
	logger.WithField("status", conf.next).Info("bridge transaction confirmed")
	return req, false, nil
}

// finalReceipt returns nil while the transaction is unknown, not yet in a
// block, or has fewer confirmations than the finality range.
func (m *ConfirmationMonitor) finalReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := m.client.TransactionReceiptByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.BlockHash == (common.Hash{}) || receipt.BlockNumber == nil {
		return nil, nil
	}
	head, err := m.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if Confirmations(head, uint(receipt.BlockNumber.Uint64())) < m.cfg.FinalityHeightRange {
		return nil, nil
	}
	return receipt, nil
}

// Confirmations counts the block of the receipt itself, so a transaction in
// the head block has one confirmation.
func Confirmations(head, block uint) uint {
	if head < block {
		return 0
	}
	return head - block + 1
}

// retry schedules the next check under the request's job key. Only a
// failure to enqueue is reported, so the worker never owns the poll.
func (m *ConfirmationMonitor) retry(ctx context.Context, logger logging.Logger, kind jobs.Kind, req *entity.BridgeRequest, payload jobs.ConfirmationPayload) error {
	attempt := payload.Attempt + 1
	if attempt == m.cfg.MaxConfirmationAttempts {
		ConfirmationTimeouts.WithLabelValues(string(kind)).Inc()
		logger.Error("transaction is still not final, keep polling")
		detail := fmt.Sprintf("%s unconfirmed after %d checks", kind, attempt)
		if err := m.service.Ledger().Record(ctx, req, entity.FailureTransactionConfirmationTimeout, detail); err != nil {
			logger.WithError(err).Error("can't record confirmation timeout")
		}
	}
	_, err := m.queue.Add(ctx, kind, jobs.ConfirmationPayload{BridgeRequestID: payload.BridgeRequestID, Attempt: attempt},
		jobs.WithRunAt(m.now().Add(m.cfg.ConfirmationRetryDelay)),
		jobs.WithJobKey(jobs.RequestKey(kind, payload.BridgeRequestID)))
	if err != nil {
		return fmt.Errorf("can't reschedule %s: %w", kind, err)
	}
	return nil
}

func (m *ConfirmationMonitor) ignoreInvalidTransition(logger logging.Logger, err error) error {
	if errors.Is(err, bridge.ErrInvalidTransition) {
		logger.WithError(err).Warn("bridge request changed concurrently")
		return nil
	}
	return err
}
