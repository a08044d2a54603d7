package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	bridgeabi "github.com/iron-fish/ironfish-bridge/contract/abi"
	"github.com/iron-fish/ironfish-bridge/ethclient"
)

// TokenContract is an ERC-20 bridge token (wIRON or test USDC).
type TokenContract struct {
	*Contract
}

func NewTokenContract(client ethclient.Client, addr common.Address, contractABI abi.ABI, key *ecdsa.PrivateKey) *TokenContract {
	c := NewContract(client, addr, contractABI)
	if key != nil {
		c = c.WithSigner(key)
	}
	return &TokenContract{c}
}

func (c *TokenContract) Mint(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return c.Transact(ctx, "mint", to, amount)
}

func (c *TokenContract) Burn(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return c.Transact(ctx, "burn", amount)
}

func (c *TokenContract) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return c.Transact(ctx, "transfer", to, amount)
}

type TransferWithMetadata struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	Metadata    []byte
	TxHash      common.Hash
	BlockNumber uint64
}

// DepositsQuery filters TransferWithMetadata events sent to deposit within
// [fromBlock, toBlock].
func (c *TokenContract) DepositsQuery(deposit common.Address, fromBlock, toBlock uint) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(fromBlock)),
		ToBlock:   new(big.Int).SetUint64(uint64(toBlock)),
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{bridgeabi.TransferWithMetadataEventSignature},
			nil,
			{common.BytesToHash(deposit.Bytes())},
		},
	}
}

func (c *TokenContract) ParseTransferWithMetadata(log *types.Log) (*TransferWithMetadata, error) {
	event, data, err := c.ParseLog(log)
	if err != nil {
		return nil, err
	}
	if event != bridgeabi.TransferWithMetadata {
		return nil, fmt.Errorf("unexpected event %q", event)
	}
	from, ok1 := data["from"].(common.Address)
	to, ok2 := data["to"].(common.Address)
	value, ok3 := data["value"].(*big.Int)
	metadata, ok4 := data["metadata"].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("malformed %s log in tx %s", event, log.TxHash)
	}
	return &TransferWithMetadata{
		From:        from,
		To:          to,
		Value:       value,
		Metadata:    metadata,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
	}, nil
}
