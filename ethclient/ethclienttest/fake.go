// Package ethclienttest provides an in-memory ethclient.Client for tests.
package ethclienttest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/iron-fish/ironfish-bridge/ethclient"
)

var _ ethclient.Client = (*Fake)(nil)

type Fake struct {
	mu sync.Mutex

	Head      uint
	Headers   map[uint]*types.Header
	Logs      []types.Log
	Receipts  map[common.Hash]*types.Receipt
	Sent      []*types.Transaction
	Nonce     uint64
	GasPrice  *big.Int
	Chain     *big.Int
	Queries   []ethereum.FilterQuery
	SendErr   error
	ReceiptFn func(hash common.Hash) (*types.Receipt, error)
}

func NewFake(chainID int64) *Fake {
	return &Fake{
		Headers:  make(map[uint]*types.Header),
		Receipts: make(map[common.Hash]*types.Receipt),
		GasPrice: big.NewInt(1_000_000_000),
		Chain:    big.NewInt(chainID),
	}
}

// AddHeader registers a header at height n with the given hash seed.
func (f *Fake) AddHeader(n uint, extra string) *types.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &types.Header{Number: new(big.Int).SetUint64(uint64(n)), Extra: []byte(extra), Difficulty: big.NewInt(0)}
	f.Headers[n] = h
	return h
}

func (f *Fake) SetHead(n uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Head = n
}

func (f *Fake) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Receipts[hash] = receipt
}

func (f *Fake) SentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.Sent...)
}

func (f *Fake) BlockNumber(context.Context) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Head, nil
}

func (f *Fake) HeaderByNumber(_ context.Context, n uint) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.Headers[n]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (f *Fake) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, q)
	res := make([]types.Log, 0, len(f.Logs))
	for _, log := range f.Logs {
		if log.BlockNumber < q.FromBlock.Uint64() || log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
			continue
		}
		if !matchTopics(q.Topics, log.Topics) {
			continue
		}
		res = append(res, log)
	}
	return res, nil
}

func (f *Fake) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return f.FilterLogs(ctx, q)
}

func (f *Fake) TransactionReceiptByHash(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	fn := f.ReceiptFn
	receipt, ok := f.Receipts[hash]
	f.mu.Unlock()
	if fn != nil {
		return fn(hash)
	}
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *Fake) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, nil
}

func (f *Fake) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *Fake) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *Fake) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Sent = append(f.Sent, tx)
	f.Nonce++
	return nil
}

func (f *Fake) ChainID() *big.Int {
	return new(big.Int).Set(f.Chain)
}

func containsAddress(addrs []common.Address, addr common.Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, option := range options {
			if option == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
