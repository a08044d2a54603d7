package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/iron-fish/ironfish-bridge/ethclient"
)

var ErrNoSigner = errors.New("contract has no signer key")

// senderLocks serializes nonce assignment per sending account.
var senderLocks sync.Map

type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	from    common.Address
}

func NewContract(client ethclient.Client, addr common.Address, abi abi.ABI) *Contract {
	return &Contract{address: addr, client: client, abi: abi}
}

// WithSigner returns a copy of c that signs transactions with key.
func (c *Contract) WithSigner(key *ecdsa.PrivateKey) *Contract {
	cp := *c
	cp.key = key
	cp.from = crypto.PubkeyToAddress(key.PublicKey)
	return &cp
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) From() common.Address {
	return c.from
}

// Transact signs and broadcasts a call of method. It returns once the node
// accepted the transaction, not when it is mined.
func (c *Contract) Transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}

	lock, _ := senderLocks.LoadOrStore(c.from, new(sync.Mutex))
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("can't get pending nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas price: %w", err)
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("can't estimate gas for %s(...): %w", method, err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas * 6 / 5,
		To:       &c.address,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.client.ChainID()), c.key)
	if err != nil {
		return nil, fmt.Errorf("can't sign transaction: %w", err)
	}
	if err = c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("can't send %s(...) transaction: %w", method, err)
	}
	return signed, nil
}

func (c *Contract) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	return ParseLog(c.abi, log)
}
