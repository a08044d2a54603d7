package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Chain string

const (
	ChainEthereum Chain = "ETHEREUM"
	ChainIronfish Chain = "IRONFISH"
)

func (c Chain) Valid() bool {
	return c == ChainEthereum || c == ChainIronfish
}

type BridgeRequestStatus string

const (
	StatusCreated                                          BridgeRequestStatus = "CREATED"
	StatusPendingPretransfer                               BridgeRequestStatus = "PENDING_PRETRANSFER"
	StatusPendingSourceBurnTransactionCreation             BridgeRequestStatus = "PENDING_SOURCE_BURN_TRANSACTION_CREATION"
	StatusPendingSourceBurnTransactionConfirmation         BridgeRequestStatus = "PENDING_SOURCE_BURN_TRANSACTION_CONFIRMATION"
	StatusPendingDestinationMintTransactionCreation        BridgeRequestStatus = "PENDING_DESTINATION_MINT_TRANSACTION_CREATION"
	StatusPendingDestinationMintTransactionConfirmation    BridgeRequestStatus = "PENDING_DESTINATION_MINT_TRANSACTION_CONFIRMATION"
	StatusPendingDestinationReleaseTransactionCreation     BridgeRequestStatus = "PENDING_DESTINATION_RELEASE_TRANSACTION_CREATION"
	StatusPendingDestinationReleaseTransactionConfirmation BridgeRequestStatus = "PENDING_DESTINATION_RELEASE_TRANSACTION_CONFIRMATION"
	StatusPendingOnDestinationChain                        BridgeRequestStatus = "PENDING_ON_DESTINATION_CHAIN"
	StatusConfirmed                                        BridgeRequestStatus = "CONFIRMED"
	StatusFailed                                           BridgeRequestStatus = "FAILED"
)

var AllStatuses = []BridgeRequestStatus{
	StatusCreated,
	StatusPendingPretransfer,
	StatusPendingSourceBurnTransactionCreation,
	StatusPendingSourceBurnTransactionConfirmation,
	StatusPendingDestinationMintTransactionCreation,
	StatusPendingDestinationMintTransactionConfirmation,
	StatusPendingDestinationReleaseTransactionCreation,
	StatusPendingDestinationReleaseTransactionConfirmation,
	StatusPendingOnDestinationChain,
	StatusConfirmed,
	StatusFailed,
}

func (s BridgeRequestStatus) Valid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s BridgeRequestStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type FailureReason string

const (
	FailureRequestNonExistent                  FailureReason = "REQUEST_NON_EXISTENT"
	FailureRequestInvalidStatus                FailureReason = "REQUEST_INVALID_STATUS"
	FailureRequestSourceAddressNotMatching     FailureReason = "REQUEST_SOURCE_ADDRESS_NOT_MATCHING"
	FailureRequestAssetNotMatching             FailureReason = "REQUEST_ASSET_NOT_MATCHING"
	FailureRequestAmountNotMatching            FailureReason = "REQUEST_AMOUNT_NOT_MATCHING"
	FailureRequestAssetNotSupported            FailureReason = "REQUEST_ASSET_NOT_SUPPORTED"
	FailureDestinationMintTransactionFailed    FailureReason = "DESTINATION_MINT_TRANSACTION_FAILED"
	FailureSourceBurnTransactionFailed         FailureReason = "SOURCE_BURN_TRANSACTION_FAILED"
	FailureDestinationReleaseTransactionFailed FailureReason = "DESTINATION_RELEASE_TRANSACTION_FAILED"
	FailureTransactionConfirmationTimeout      FailureReason = "TRANSACTION_CONFIRMATION_TIMEOUT"
	FailureJobHandlerFailed                    FailureReason = "JOB_HANDLER_FAILED"
)

type BridgeRequest struct {
	ID                     int64               `db:"id" json:"id"`
	Asset                  string              `db:"asset" json:"asset"`
	SourceAddress          string              `db:"source_address" json:"source_address"`
	DestinationAddress     string              `db:"destination_address" json:"destination_address"`
	Amount                 decimal.Decimal     `db:"amount" json:"amount"`
	SourceChain            Chain               `db:"source_chain" json:"source_chain"`
	DestinationChain       Chain               `db:"destination_chain" json:"destination_chain"`
	SourceTransaction      *string             `db:"source_transaction" json:"source_transaction"`
	DestinationTransaction *string             `db:"destination_transaction" json:"destination_transaction"`
	SourceBurnTransaction  *string             `db:"source_burn_transaction" json:"source_burn_transaction"`
	Status                 BridgeRequestStatus `db:"status" json:"status"`
	FailureReason          *FailureReason      `db:"failure_reason" json:"failure_reason"`
	CreatedAt              *time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              *time.Time          `db:"updated_at" json:"updated_at"`
	StartedAt              *time.Time          `db:"started_at" json:"started_at"`
	CompletedAt            *time.Time          `db:"completed_at" json:"completed_at"`
}

// BridgeRequestPatch describes one status/hash mutation. Nil fields are left
// untouched. FailureReason is only stored together with StatusFailed. When
// ExpectedStatuses is set the update only applies to a row in one of them.
type BridgeRequestPatch struct {
	ID                     int64
	ExpectedStatuses       []BridgeRequestStatus
	Status                 *BridgeRequestStatus
	FailureReason          *FailureReason
	SourceTransaction      *string
	DestinationTransaction *string
	SourceBurnTransaction  *string
	ClearDestination       bool
}

type BridgeRequestsFilter struct {
	SourceChain      *Chain
	DestinationChain *Chain
	Statuses         []BridgeRequestStatus
	Asset            *string
	Limit            uint64
}

type BridgeRequestsRepo interface {
	Create(ctx context.Context, req *BridgeRequest) (*BridgeRequest, error)
	Upsert(ctx context.Context, req *BridgeRequest) (*BridgeRequest, error)
	GetByID(ctx context.Context, id int64) (*BridgeRequest, error)
	GetBySourceTransaction(ctx context.Context, sourceTx string) (*BridgeRequest, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*BridgeRequest, error)
	FindBySourceBurnTransaction(ctx context.Context, burnTx string) ([]*BridgeRequest, error)
	Find(ctx context.Context, filter *BridgeRequestsFilter) ([]*BridgeRequest, error)
	Update(ctx context.Context, patch *BridgeRequestPatch) (*BridgeRequest, error)
	CountByStatus(ctx context.Context) (map[BridgeRequestStatus]int, error)
}
