package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
)

// ErrNoRetry marks a job failure that must not be retried by the worker.
var ErrNoRetry = errors.New("job must not be retried")

// Dispatcher routes every job kind to its handler. Handler errors are
// written to the failure ledger; the request itself keeps its status.
type Dispatcher struct {
	logger        logging.Logger
	service       *bridge.Service
	poller        *Poller
	submitter     *Submitter
	confirmations *ConfirmationMonitor
}

var _ jobs.Handler = (*Dispatcher)(nil)

func NewDispatcher(logger logging.Logger, service *bridge.Service, poller *Poller, submitter *Submitter, confirmations *ConfirmationMonitor) *Dispatcher {
	return &Dispatcher{
		logger:        logger,
		service:       service,
		poller:        poller,
		submitter:     submitter,
		confirmations: confirmations,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job *entity.Job) (jobs.Result, error) {
	logger := logging.ContextLogger(ctx, d.logger)
	kind, err := jobs.ParseKind(job.Kind)
	if err != nil {
		logger.WithError(err).Error("dropping job of unknown kind")
		return jobs.Result{}, nil
	}

	var requestID *int64
	switch {
	case kind == jobs.KindRefreshEthereumAssetTransfers:
		var payload jobs.AssetPayload
		if err = decode(job, &payload); err == nil {
			err = d.poller.Refresh(ctx, payload.Asset)
		}
	case kind.IsSubmission():
		var payload jobs.RequestPayload
		if err = decode(job, &payload); err == nil {
			requestID = &payload.BridgeRequestID
			err = d.submitter.Submit(ctx, kind, payload.BridgeRequestID)
		}
	case kind.IsConfirmation():
		var payload jobs.ConfirmationPayload
		if err = decode(job, &payload); err == nil {
			requestID = &payload.BridgeRequestID
			err = d.confirmations.Refresh(ctx, kind, payload)
		}
	default:
		err = fmt.Errorf("no handler for %s: %w", kind, ErrNoRetry)
	}
	if err == nil {
		return jobs.Result{}, nil
	}

	d.recordFailure(ctx, logger, kind, requestID, err)
	if errors.Is(err, ErrNoRetry) {
		return jobs.Result{}, nil
	}
	return jobs.Result{}, err
}

func (d *Dispatcher) recordFailure(ctx context.Context, logger logging.Logger, kind jobs.Kind, requestID *int64, cause error) {
	var req *entity.BridgeRequest
	if requestID != nil {
		found, err := d.service.Get(ctx, *requestID)
		if err != nil && !errors.Is(err, bridge.ErrRequestNotFound) {
			logger.WithError(err).Error("can't load bridge request of failed job")
		}
		req = found
	}
	logger.WithError(cause).Error("job handler failed")
	if err := d.service.Ledger().Record(ctx, req, entity.FailureJobHandlerFailed, fmt.Sprintf("%s: %s", kind, cause)); err != nil {
		logger.WithError(err).Error("can't record job handler failure")
	}
}

// decode fails for good: a malformed payload never becomes valid.
func decode(job *entity.Job, v interface{}) error {
	if err := jobs.DecodePayload(job, v); err != nil {
		return fmt.Errorf("%v: %w", err, ErrNoRetry)
	}
	return nil
}
