package jobs

import (
	"fmt"
	"strings"
)

// Kind tags a job with the handler that runs it.
type Kind string

const (
	KindRefreshEthereumAssetTransfers           Kind = "REFRESH_ETHEREUM_ASSET_TRANSFERS"
	KindMintWIron                               Kind = "MINT_WIRON"
	KindBurnWIron                               Kind = "BURN_WIRON"
	KindReleaseTestUSDC                         Kind = "RELEASE_TEST_USDC"
	KindRefreshMintWIronTransactionStatus       Kind = "REFRESH_MINT_WIRON_TRANSACTION_STATUS"
	KindRefreshBurnWIronTransactionStatus       Kind = "REFRESH_BURN_WIRON_TRANSACTION_STATUS"
	KindRefreshReleaseTestUSDCTransactionStatus Kind = "REFRESH_RELEASE_TEST_USDC_TRANSACTION_STATUS"
)

var AllKinds = []Kind{
	KindRefreshEthereumAssetTransfers,
	KindMintWIron,
	KindBurnWIron,
	KindReleaseTestUSDC,
	KindRefreshMintWIronTransactionStatus,
	KindRefreshBurnWIronTransactionStatus,
	KindRefreshReleaseTestUSDCTransactionStatus,
}

func ParseKind(s string) (Kind, error) {
	for _, kind := range AllKinds {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// IsSubmission reports whether k sends a transaction for one bridge request.
func (k Kind) IsSubmission() bool {
	return k == KindMintWIron || k == KindBurnWIron || k == KindReleaseTestUSDC
}

// IsConfirmation reports whether k polls a transaction receipt.
func (k Kind) IsConfirmation() bool {
	return k == KindRefreshMintWIronTransactionStatus ||
		k == KindRefreshBurnWIronTransactionStatus ||
		k == KindRefreshReleaseTestUSDCTransactionStatus
}

// ConfirmationKind is the receipt polling job that follows submission kind k.
func (k Kind) ConfirmationKind() Kind {
	switch k {
	case KindMintWIron:
		return KindRefreshMintWIronTransactionStatus
	case KindBurnWIron:
		return KindRefreshBurnWIronTransactionStatus
	case KindReleaseTestUSDC:
		return KindRefreshReleaseTestUSDCTransactionStatus
	default:
		return ""
	}
}

// SubmissionKind is the inverse of ConfirmationKind.
func (k Kind) SubmissionKind() Kind {
	for _, kind := range []Kind{KindMintWIron, KindBurnWIron, KindReleaseTestUSDC} {
		if kind.ConfirmationKind() == k {
			return kind
		}
	}
	return ""
}

type AssetPayload struct {
	Asset string `json:"asset"`
}

type RequestPayload struct {
	BridgeRequestID int64 `json:"bridgeRequestId"`
}

type ConfirmationPayload struct {
	BridgeRequestID int64 `json:"bridgeRequestId"`
	Attempt         uint  `json:"attempt"`
}

func RefreshTransfersKey(asset string) string {
	return "refresh_ethereum_asset_transfers_" + asset
}

// RequestKey is the dedup key of a per-request job: mint_wiron_<id> for a
// submission and refresh_mint_wiron_<id> for its confirmation poll.
func RequestKey(kind Kind, id int64) string {
	if kind.IsConfirmation() {
		return fmt.Sprintf("refresh_%s_%d", strings.ToLower(string(kind.SubmissionKind())), id)
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(string(kind)), id)
}
