package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/repository"
	"github.com/iron-fish/ironfish-bridge/utils"
)

type Enqueuer interface {
	Add(ctx context.Context, kind jobs.Kind, payload interface{}, opts ...jobs.AddOption) (*entity.Job, error)
}

// Service drives bridge requests through their lifecycle. Every operation
// that changes a request and schedules follow-up work does both in one
// store transaction.
type Service struct {
	logger          logging.Logger
	repo            *repository.Repo
	ledger          *Ledger
	queue           Enqueuer
	supportedAssets map[string]common.Address
	wIronAssetIDs   []string
}

func NewService(logger logging.Logger, repo *repository.Repo, queue Enqueuer, cfg *config.Config) *Service {
	s := &Service{
		logger:          logger,
		repo:            repo,
		ledger:          NewLedger(logger, repo.FailedBridgeRequests),
		queue:           queue,
		supportedAssets: cfg.SupportedAssets(),
	}
	for _, name := range cfg.AssetNames() {
		if asset := cfg.Asset(name); asset.DepositPath == config.DepositPathBurn {
			s.wIronAssetIDs = append(s.wIronAssetIDs, asset.AssetID)
		}
	}
	return s
}

func (s *Service) Ledger() *Ledger {
	return s.ledger
}

func (s *Service) IsSupportedAsset(asset string) bool {
	_, ok := s.supportedAssets[strings.ToLower(asset)]
	return ok
}

func (s *Service) lookup(ctx context.Context, id *int64, sourceTx *string) (*entity.BridgeRequest, error) {
	var req *entity.BridgeRequest
	var err error
	switch {
	case id != nil:
		req, err = s.repo.BridgeRequests.GetByID(ctx, *id)
	case sourceTx != nil:
		req, err = s.repo.BridgeRequests.GetBySourceTransaction(ctx, *sourceTx)
	default:
		return nil, ErrRequestNotFound
	}
	if db.IsNotFound(err) {
		return nil, ErrRequestNotFound
	}
	return req, err
}

func (s *Service) Get(ctx context.Context, id int64) (*entity.BridgeRequest, error) {
	return s.lookup(ctx, &id, nil)
}

// Create upserts requests and maps each source address to its request id.
// A request for an unsupported asset is stored as FAILED.
func (s *Service) Create(ctx context.Context, reqs []*NewRequest) (map[string]int64, error) {
	res := make(map[string]int64, len(reqs))
	for _, r := range reqs {
		if r.Status == "" {
			r.Status = entity.StatusCreated
		}
		req, _, err := s.upsert(ctx, r)
		if err != nil {
			return nil, err
		}
		res[req.SourceAddress] = req.ID
	}
	return res, nil
}

// Burn registers Iron Fish burn-path requests waiting for their burn
// transaction. Results are keyed by source transaction.
func (s *Service) Burn(ctx context.Context, reqs []*NewRequest) (map[string]*ItemResult, error) {
	res := make(map[string]*ItemResult, len(reqs))
	for _, r := range reqs {
		r.Status = entity.StatusPendingSourceBurnTransactionCreation
		req, _, err := s.upsert(ctx, r)
		if err != nil {
			return nil, err
		}
		key := strconv.FormatInt(req.ID, 10)
		if req.SourceTransaction != nil {
			key = *req.SourceTransaction
		}
		res[key] = statusResult(req)
	}
	return res, nil
}

// Ingest upserts a request observed by the poller and schedules a burn for
// a new burn-path request.
func (s *Service) Ingest(ctx context.Context, r *NewRequest) (*entity.BridgeRequest, error) {
	var req *entity.BridgeRequest
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var inserted bool
		var err error
		req, inserted, err = s.upsert(ctx, r)
		if err != nil {
			return err
		}
		if inserted && req.Status == entity.StatusPendingSourceBurnTransactionCreation {
			return s.enqueueRequestJob(ctx, jobs.KindBurnWIron, req.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// upsert stores r keyed by its source transaction. A stored request that
// already left the status r asks for is returned untouched, so replayed
// blocks and rescans never restart a lifecycle. inserted reports a new row.
func (s *Service) upsert(ctx context.Context, r *NewRequest) (*entity.BridgeRequest, bool, error) {
	row := &entity.BridgeRequest{
		Asset:                  strings.ToLower(r.Asset),
		SourceAddress:          utils.NormalizeAddress(r.SourceAddress),
		DestinationAddress:     utils.NormalizeAddress(r.DestinationAddress),
		Amount:                 r.Amount,
		SourceChain:            r.SourceChain,
		DestinationChain:       r.DestinationChain,
		SourceTransaction:      r.SourceTransaction,
		DestinationTransaction: r.DestinationTransaction,
		Status:                 r.Status,
	}
	supported := s.IsSupportedAsset(row.Asset)
	if !supported {
		row.Status = entity.StatusFailed
		row.FailureReason = entity.Ptr(entity.FailureRequestAssetNotSupported)
	}
	var req *entity.BridgeRequest
	var inserted bool
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.lookup(ctx, nil, r.SourceTransaction)
		if err != nil && !errors.Is(err, ErrRequestNotFound) {
			return err
		}
		if before != nil && before.Status != r.Status {
			req = before
			return nil
		}
		inserted = before == nil
		req, err = s.repo.BridgeRequests.Upsert(ctx, row)
		if err != nil {
			return err
		}
		if !supported {
			return s.ledger.Record(ctx, req, entity.FailureRequestAssetNotSupported, fmt.Sprintf("asset %s", row.Asset))
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("can't upsert bridge request: %w", err)
	}
	return req, inserted, nil
}

// Retrieve maps every requested id to its request, or nil when unknown.
func (s *Service) Retrieve(ctx context.Context, ids []int64) (map[int64]*entity.BridgeRequest, error) {
	reqs, err := s.repo.BridgeRequests.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	res := make(map[int64]*entity.BridgeRequest, len(ids))
	for _, id := range ids {
		res[id] = nil
	}
	for _, req := range reqs {
		res[req.ID] = req
	}
	return res, nil
}

func (s *Service) Find(ctx context.Context, filter *entity.BridgeRequestsFilter) ([]*entity.BridgeRequest, error) {
	filter.Limit = clampCount(filter.Limit)
	return s.repo.BridgeRequests.Find(ctx, filter)
}

// ValidateSend checks a send against the stored request in a fixed order and
// returns the first failing check.
func ValidateSend(req *entity.BridgeRequest, item *SendItem) *ValidationError {
	switch {
	case req == nil:
		return &ValidationError{Reason: entity.FailureRequestNonExistent}
	case req.Status != entity.StatusCreated:
		return &ValidationError{Reason: entity.FailureRequestInvalidStatus, Detail: string(req.Status)}
	case !utils.SameAddress(req.SourceAddress, item.SourceAddress):
		return &ValidationError{Reason: entity.FailureRequestSourceAddressNotMatching}
	case !strings.EqualFold(req.Asset, item.Asset):
		return &ValidationError{Reason: entity.FailureRequestAssetNotMatching}
	case !req.Amount.Equal(item.Amount):
		return &ValidationError{Reason: entity.FailureRequestAmountNotMatching, Detail: fmt.Sprintf("expected %s, got %s", req.Amount, item.Amount)}
	}
	return nil
}

// Send validates each item and moves valid requests into the mint path.
// A validation failure is reported and recorded but leaves the stored
// request as it was. Results are keyed by the item's id or source
// transaction.
func (s *Service) Send(ctx context.Context, items []*SendItem) (map[string]*ItemResult, error) {
	res := make(map[string]*ItemResult, len(items))
	for _, item := range items {
		result, err := s.sendOne(ctx, item)
		if err != nil {
			return nil, err
		}
		res[itemKey(item.ID, item.SourceTransaction)] = result
	}
	return res, nil
}

func (s *Service) sendOne(ctx context.Context, item *SendItem) (*ItemResult, error) {
	var res *ItemResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		req, err := s.lookup(ctx, item.ID, item.SourceTransaction)
		if err != nil && !errors.Is(err, ErrRequestNotFound) {
			return err
		}
		if verr := ValidateSend(req, item); verr != nil {
			res = failedResult(item.ID, verr.Reason)
			return s.ledger.Record(ctx, req, verr.Reason, verr.Detail)
		}
		if !s.IsSupportedAsset(req.Asset) {
			res, err = s.failRequest(ctx, req, entity.FailureRequestAssetNotSupported, fmt.Sprintf("asset %s", req.Asset))
			return err
		}
		updated, err := s.repo.BridgeRequests.Update(ctx, &entity.BridgeRequestPatch{
			ID:                req.ID,
			ExpectedStatuses:  []entity.BridgeRequestStatus{entity.StatusCreated},
			Status:            entity.Ptr(entity.StatusPendingDestinationMintTransactionCreation),
			SourceTransaction: item.SourceTransaction,
			ClearDestination:  true,
		})
		if db.IsNotFound(err) {
			res = failedResult(&req.ID, entity.FailureRequestInvalidStatus)
			return s.ledger.Record(ctx, req, entity.FailureRequestInvalidStatus, "status changed concurrently")
		}
		if err != nil {
			return err
		}
		Transitions.WithLabelValues(string(updated.Status)).Inc()
		if err = s.enqueueRequestJob(ctx, jobs.KindMintWIron, updated.ID); err != nil {
			return err
		}
		res = statusResult(updated)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't send bridge request: %w", err)
	}
	return res, nil
}

// Release moves requests whose Iron Fish burn is confirmed into the release
// path. Results are keyed by request id.
func (s *Service) Release(ctx context.Context, items []*ReleaseItem) (map[string]*ItemResult, error) {
	res := make(map[string]*ItemResult, len(items))
	for _, item := range items {
		var reqs []*entity.BridgeRequest
		switch {
		case item.ID != nil:
			req, err := s.lookup(ctx, item.ID, nil)
			if errors.Is(err, ErrRequestNotFound) {
				res[itemKey(item.ID, nil)] = nullResult()
				continue
			}
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, req)
		case item.SourceBurnTransaction != nil:
			found, err := s.repo.BridgeRequests.FindBySourceBurnTransaction(ctx, *item.SourceBurnTransaction)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				res[*item.SourceBurnTransaction] = nullResult()
				continue
			}
			reqs = found
		default:
			continue
		}
		for _, req := range reqs {
			result, err := s.releaseOne(ctx, req, item.SourceBurnTransaction)
			if err != nil {
				return nil, err
			}
			res[strconv.FormatInt(req.ID, 10)] = result
		}
	}
	return res, nil
}

func (s *Service) releaseOne(ctx context.Context, req *entity.BridgeRequest, burnTx *string) (*ItemResult, error) {
	if req.Status != entity.StatusPendingSourceBurnTransactionConfirmation {
		return nullResult(), nil
	}
	var res *ItemResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.repo.BridgeRequests.Update(ctx, &entity.BridgeRequestPatch{
			ID:                    req.ID,
			ExpectedStatuses:      []entity.BridgeRequestStatus{entity.StatusPendingSourceBurnTransactionConfirmation},
			Status:                entity.Ptr(entity.StatusPendingDestinationReleaseTransactionCreation),
			SourceBurnTransaction: burnTx,
		})
		if db.IsNotFound(err) {
			res = nullResult()
			return nil
		}
		if err != nil {
			return err
		}
		Transitions.WithLabelValues(string(updated.Status)).Inc()
		if err = s.enqueueRequestJob(ctx, jobs.KindReleaseTestUSDC, updated.ID); err != nil {
			return err
		}
		res = statusResult(updated)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't release bridge request: %w", err)
	}
	return res, nil
}

var confirmableStatuses = []entity.BridgeRequestStatus{
	entity.StatusPendingOnDestinationChain,
	entity.StatusPendingDestinationMintTransactionConfirmation,
	entity.StatusPendingDestinationReleaseTransactionConfirmation,
}

// Confirm marks Iron Fish bound requests CONFIRMED once the relay saw the
// destination transaction. Anything else yields a nil status and changes
// nothing.
func (s *Service) Confirm(ctx context.Context, items []*ConfirmItem) (map[string]*ItemResult, error) {
	res := make(map[string]*ItemResult, len(items))
	for _, item := range items {
		key := strconv.FormatInt(item.ID, 10)
		req, err := s.lookup(ctx, &item.ID, nil)
		if errors.Is(err, ErrRequestNotFound) {
			res[key] = nullResult()
			continue
		}
		if err != nil {
			return nil, err
		}
		if req.DestinationChain != entity.ChainIronfish {
			res[key] = nullResult()
			continue
		}
		updated, err := s.repo.BridgeRequests.Update(ctx, &entity.BridgeRequestPatch{
			ID:                     item.ID,
			ExpectedStatuses:       confirmableStatuses,
			Status:                 entity.Ptr(entity.StatusConfirmed),
			DestinationTransaction: &item.DestinationTransaction,
		})
		if db.IsNotFound(err) {
			res[key] = nullResult()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("can't confirm bridge request: %w", err)
		}
		Transitions.WithLabelValues(string(updated.Status)).Inc()
		res[key] = statusResult(updated)
	}
	return res, nil
}

// UpdateRequests patches status and transaction hashes without lifecycle
// checks. A terminal request keeps its status but still takes hash updates.
func (s *Service) UpdateRequests(ctx context.Context, items []*UpdateItem) (map[string]*ItemResult, error) {
	res := make(map[string]*ItemResult, len(items))
	for _, item := range items {
		key := strconv.FormatInt(item.ID, 10)
		req, err := s.lookup(ctx, &item.ID, nil)
		if errors.Is(err, ErrRequestNotFound) {
			res[key] = nullResult()
			continue
		}
		if err != nil {
			return nil, err
		}
		patch := &entity.BridgeRequestPatch{
			ID:                     item.ID,
			DestinationTransaction: item.DestinationTransaction,
			SourceTransaction:      item.SourceTransaction,
			SourceBurnTransaction:  item.SourceBurnTransaction,
		}
		if item.Status != nil && !req.Status.IsTerminal() {
			patch.Status = item.Status
			patch.ExpectedStatuses = nonTerminalStatuses()
		}
		updated, err := s.repo.BridgeRequests.Update(ctx, patch)
		if db.IsNotFound(err) {
			// finished concurrently, keep its status
			patch.Status, patch.ExpectedStatuses = nil, nil
			updated, err = s.repo.BridgeRequests.Update(ctx, patch)
		}
		if err != nil {
			return nil, fmt.Errorf("can't update bridge request: %w", err)
		}
		if patch.Status != nil {
			Transitions.WithLabelValues(string(updated.Status)).Inc()
		}
		res[key] = &ItemResult{ID: &updated.ID, Status: entity.Ptr(updated.Status)}
	}
	return res, nil
}

// Transition moves one request to `to` if the lifecycle allows it from its
// current status, applying the hash fields of patch.
func (s *Service) Transition(ctx context.Context, patch *entity.BridgeRequestPatch, to entity.BridgeRequestStatus) (*entity.BridgeRequest, error) {
	p := *patch
	p.Status = &to
	p.ExpectedStatuses = Predecessors(to)
	updated, err := s.repo.BridgeRequests.Update(ctx, &p)
	if db.IsNotFound(err) {
		if _, lookupErr := s.Get(ctx, patch.ID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, fmt.Errorf("request %d to %s: %w", patch.ID, to, ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("can't update bridge request: %w", err)
	}
	Transitions.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// Fail moves req to FAILED and records reason in the ledger atomically.
func (s *Service) Fail(ctx context.Context, req *entity.BridgeRequest, reason entity.FailureReason, detail string) (*entity.BridgeRequest, error) {
	var updated *entity.BridgeRequest
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.Transition(ctx, &entity.BridgeRequestPatch{ID: req.ID, FailureReason: &reason}, entity.StatusFailed)
		if err != nil {
			return err
		}
		return s.ledger.Record(ctx, updated, reason, detail)
	})
	return updated, err
}

func (s *Service) failRequest(ctx context.Context, req *entity.BridgeRequest, reason entity.FailureReason, detail string) (*ItemResult, error) {
	updated, err := s.Fail(ctx, req, reason, detail)
	if err != nil {
		return nil, err
	}
	return statusResult(updated), nil
}

// NextWIronRequests lists Ethereum to Iron Fish wIRON requests waiting for
// the native IRON release, oldest first.
func (s *Service) NextWIronRequests(ctx context.Context, count uint64) ([]*entity.BridgeRequest, error) {
	var res []*entity.BridgeRequest
	for _, asset := range s.wIronAssetIDs {
		asset := asset
		reqs, err := s.next(ctx, entity.ChainEthereum, entity.ChainIronfish, entity.StatusPendingDestinationReleaseTransactionCreation, &asset, count)
		if err != nil {
			return nil, err
		}
		res = append(res, reqs...)
	}
	if uint64(len(res)) > clampCount(count) {
		res = res[:clampCount(count)]
	}
	return res, nil
}

// NextReleaseRequests lists every Ethereum to Iron Fish request waiting for
// its release on Iron Fish.
func (s *Service) NextReleaseRequests(ctx context.Context, count uint64) ([]*entity.BridgeRequest, error) {
	return s.next(ctx, entity.ChainEthereum, entity.ChainIronfish, entity.StatusPendingDestinationReleaseTransactionCreation, nil, count)
}

// NextBurnRequests lists Iron Fish to Ethereum requests waiting for the Iron
// Fish burn.
func (s *Service) NextBurnRequests(ctx context.Context, count uint64) ([]*entity.BridgeRequest, error) {
	return s.next(ctx, entity.ChainIronfish, entity.ChainEthereum, entity.StatusPendingSourceBurnTransactionCreation, nil, count)
}

// NextMintRequests lists Ethereum to Iron Fish requests waiting for the Iron
// Fish mint.
func (s *Service) NextMintRequests(ctx context.Context, count uint64) ([]*entity.BridgeRequest, error) {
	return s.next(ctx, entity.ChainEthereum, entity.ChainIronfish, entity.StatusPendingDestinationMintTransactionCreation, nil, count)
}

func (s *Service) next(ctx context.Context, source, destination entity.Chain, status entity.BridgeRequestStatus, asset *string, count uint64) ([]*entity.BridgeRequest, error) {
	return s.repo.BridgeRequests.Find(ctx, &entity.BridgeRequestsFilter{
		SourceChain:      &source,
		DestinationChain: &destination,
		Statuses:         []entity.BridgeRequestStatus{status},
		Asset:            asset,
		Limit:            clampCount(count),
	})
}

// SetHead stores the relay's last committed Iron Fish block hash.
func (s *Service) SetHead(ctx context.Context, hash string) (string, error) {
	err := s.repo.ChainHeads.Ensure(ctx, &entity.ChainHead{Asset: entity.IronfishHeadAsset, Hash: hash})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Head returns nil before the relay stored any block.
func (s *Service) Head(ctx context.Context) (*string, error) {
	head, err := s.repo.ChainHeads.GetByAsset(ctx, entity.IronfishHeadAsset)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &head.Hash, nil
}

func (s *Service) enqueueRequestJob(ctx context.Context, kind jobs.Kind, id int64) error {
	_, err := s.queue.Add(ctx, kind, jobs.RequestPayload{BridgeRequestID: id}, jobs.WithJobKey(jobs.RequestKey(kind, id)))
	return err
}

func clampCount(count uint64) uint64 {
	if count == 0 {
		return DefaultQueueCount
	}
	if count > MaxQueueCount {
		return MaxQueueCount
	}
	return count
}

func itemKey(id *int64, sourceTx *string) string {
	if id != nil {
		return strconv.FormatInt(*id, 10)
	}
	if sourceTx != nil {
		return *sourceTx
	}
	return ""
}
