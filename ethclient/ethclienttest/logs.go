package ethclienttest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	bridgeabi "github.com/iron-fish/ironfish-bridge/contract/abi"
)

// TransferWithMetadataLog builds a log as emitted by the bridge token contracts.
func TransferWithMetadataLog(token, from, to common.Address, value *big.Int, metadata []byte, block uint64, txHash common.Hash) types.Log {
	data, err := bridgeabi.WIronABI.Events["TransferWithMetadata"].Inputs.NonIndexed().Pack(value, metadata)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			bridgeabi.TransferWithMetadataEventSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
	}
}
