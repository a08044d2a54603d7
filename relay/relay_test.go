package relay

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/contract/constants"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/presenter"
)

const (
	bridgeAddress = "b1d5f0a3e4c2b7d9f8e6a5c4b3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c5d4"
	userAddress   = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	ethAddress    = "90f8bf6a479f320ead074411a4b0e7944ea8c9c1"
	usdcAssetID   = constants.IronfishTestUSDCAssetID
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func encodeMemo(t *testing.T, text string) string {
	t.Helper()
	memo := make([]byte, 32)
	require.LessOrEqual(t, len(text), len(memo))
	copy(memo, text)
	return hex.EncodeToString(memo)
}

func ethMemo(t *testing.T, addr string) string {
	t.Helper()
	raw, err := hex.DecodeString(addr)
	require.NoError(t, err)
	return encodeMemo(t, base64.StdEncoding.EncodeToString(raw))
}

func TestDecodeEthAddress(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		memoHex string
		want    string
		wantErr bool
	}{
		{"padded", ethMemo(t, ethAddress), ethAddress, false},
		{"unpadded base64", encodeMemo(t, "kPi/akefMg6tB0QRpLDnlE6oycE"), ethAddress, false},
		{"not hex", "zz", "", true},
		{"not base64", encodeMemo(t, "!!!"), "", true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeEthAddress(tc.memoHex)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidMemo)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	event := &StreamEvent{
		Type:  EventConnected,
		Block: Block{Hash: "block", Sequence: 10},
		Transactions: []*Transaction{
			{Hash: "burn-tx", Notes: []*Note{{Memo: "x", Sender: bridgeAddress}}},
			{Hash: "release-tx", Notes: []*Note{
				{Memo: "7", Sender: bridgeAddress, AssetID: constants.IronAssetID, Value: "5"},
				{Memo: "change", Sender: bridgeAddress},
			}},
			{Hash: "deposit-tx", Notes: []*Note{
				{Memo: "eth", MemoHex: ethMemo(t, ethAddress), Sender: userAddress, AssetID: constants.IronAssetID, Value: "420"},
			}},
			{Hash: "usdc-tx", Notes: []*Note{
				{Memo: "eth", MemoHex: ethMemo(t, ethAddress), Sender: userAddress, AssetID: usdcAssetID, Value: "3"},
			}},
			{Hash: "skipped-tx", Notes: []*Note{
				{Sender: userAddress, AssetID: constants.IronAssetID, Value: "1"},
				{Memo: "short", MemoHex: encodeMemo(t, "AAEC"), Sender: userAddress, AssetID: constants.IronAssetID, Value: "1"},
				{Memo: "zero", MemoHex: ethMemo(t, ethAddress), Sender: userAddress, AssetID: constants.IronAssetID, Value: "0"},
			}},
		},
	}
	burns := map[string][]int64{"burn-tx": {3, 4}}

	batch := Classify(testLogger(), event, burns, bridgeAddress, constants.IronAssetID)

	require.Len(t, batch.Releases, 2)
	require.Equal(t, int64(3), *batch.Releases[0].ID)
	require.Equal(t, int64(4), *batch.Releases[1].ID)

	require.Equal(t, []*presenter.ConfirmItemRequest{{ID: 7, DestinationTransaction: "release-tx"}}, batch.Confirms)

	require.Len(t, batch.Creates, 1)
	require.Equal(t, "deposit-tx", *batch.Creates[0].SourceTransaction)
	require.Equal(t, ethAddress, batch.Creates[0].DestinationAddress)
	require.Equal(t, entity.ChainIronfish, batch.Creates[0].SourceChain)
	require.Len(t, batch.Sends, 1)
	require.Equal(t, "deposit-tx", *batch.Sends[0].SourceTransaction)
	require.Equal(t, "420", batch.Sends[0].Amount)

	require.Len(t, batch.Burns, 1)
	require.Equal(t, usdcAssetID, batch.Burns[0].Asset)
	require.Equal(t, "usdc-tx", *batch.Burns[0].SourceTransaction)
}

type fakeAPI struct {
	mu       sync.Mutex
	head     *string
	pending  []*entity.BridgeRequest
	calls    []string
	heads    []string
	setErr   error
	confirms []*presenter.ConfirmItemRequest
}

func (a *fakeAPI) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *fakeAPI) Head(context.Context) (*string, error) {
	return a.head, nil
}

func (a *fakeAPI) SetHead(_ context.Context, hash string) error {
	a.record("head")
	if a.setErr != nil {
		return a.setErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heads = append(a.heads, hash)
	return nil
}

func (a *fakeAPI) PendingBurnRequests(context.Context) ([]*entity.BridgeRequest, error) {
	return a.pending, nil
}

func (a *fakeAPI) Create(context.Context, []*presenter.BridgeDataRequest) (map[string]int64, error) {
	a.record("create")
	return map[string]int64{}, nil
}

func (a *fakeAPI) Send(context.Context, []*presenter.SendItemRequest) (map[string]*bridge.ItemResult, error) {
	a.record("send")
	return nil, nil
}

func (a *fakeAPI) Burn(context.Context, []*presenter.BridgeDataRequest) (map[string]*bridge.ItemResult, error) {
	a.record("burn")
	return nil, nil
}

func (a *fakeAPI) Release(context.Context, []*presenter.ReleaseItemRequest) (map[string]*bridge.ItemResult, error) {
	a.record("release")
	return nil, nil
}

func (a *fakeAPI) Confirm(_ context.Context, confirms []*presenter.ConfirmItemRequest) (map[string]*bridge.ItemResult, error) {
	a.record("confirm")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confirms = append(a.confirms, confirms...)
	return nil, nil
}

type fakeStream struct {
	events []*StreamEvent
}

func (s *fakeStream) Next() (*StreamEvent, error) {
	if len(s.events) == 0 {
		return nil, ErrStreamClosed
	}
	event := s.events[0]
	s.events = s.events[1:]
	return event, nil
}

func (s *fakeStream) Close() error {
	return nil
}

type fakeNode struct {
	genesis string
	events  []*StreamEvent
	opened  []string
}

func (n *fakeNode) ChainInfo(context.Context) (*ChainInfo, error) {
	return &ChainInfo{GenesisBlockIdentifier: BlockIdentifier{Hash: n.genesis}}, nil
}

func (n *fakeNode) TransactionStream(_ context.Context, req *StreamRequest) (Stream, error) {
	n.opened = append(n.opened, req.Head)
	return &fakeStream{events: n.events}, nil
}

func block(eventType EventType, hash string, seq uint64) *StreamEvent {
	return &StreamEvent{Type: eventType, Block: Block{Hash: hash, Sequence: seq}}
}

func TestRelay_StartHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stored := "stored"
	for _, tc := range []struct {
		name     string
		fromHead string
		apiHead  *string
		want     string
	}{
		{"flag", "flag", &stored, "flag"},
		{"api", "", &stored, "stored"},
		{"genesis", "", nil, "genesis"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := New(testLogger(), &fakeAPI{head: tc.apiHead}, &fakeNode{genesis: "genesis"}, Config{})
			head, err := r.startHead(ctx, tc.fromHead)
			require.NoError(t, err)
			require.Equal(t, tc.want, head)
		})
	}
}

func TestRelay_CommitsConfirmedBlocks(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	node := &fakeNode{events: []*StreamEvent{
		block(EventConnected, "a", 1),
		block(EventConnected, "b", 2),
		block(EventConnected, "c", 3),
		block(EventDisconnected, "c", 3),
		block(EventConnected, "c2", 3),
		block(EventConnected, "d", 4),
	}}
	r := New(testLogger(), api, node, Config{Confirmations: 2})

	err := r.follow(context.Background(), "genesis")
	require.ErrorIs(t, err, ErrStreamClosed)
	require.Equal(t, []string{"genesis"}, node.opened)
	require.Equal(t, []string{"a", "b"}, api.heads)
}

func TestRelay_CommitOrder(t *testing.T) {
	t.Parallel()

	burnTx := "burn-tx"
	api := &fakeAPI{pending: []*entity.BridgeRequest{{ID: 3, SourceBurnTransaction: &burnTx}}}
	r := New(testLogger(), api, &fakeNode{}, Config{BridgeAddress: bridgeAddress, NativeAssetID: constants.IronAssetID})

	event := &StreamEvent{
		Type:  EventConnected,
		Block: Block{Hash: "block", Sequence: 10},
		Transactions: []*Transaction{
			{Hash: "usdc-tx", Notes: []*Note{{Memo: "m", MemoHex: ethMemo(t, ethAddress), Sender: userAddress, AssetID: usdcAssetID, Value: "3"}}},
			{Hash: "deposit-tx", Notes: []*Note{{Memo: "m", MemoHex: ethMemo(t, ethAddress), Sender: userAddress, AssetID: constants.IronAssetID, Value: "1"}}},
			{Hash: burnTx},
			{Hash: "release-tx", Notes: []*Note{{Memo: "9", Sender: bridgeAddress}}},
		},
	}
	require.NoError(t, r.commit(context.Background(), event))
	require.Equal(t, []string{"confirm", "release", "create", "send", "burn", "head"}, api.calls)
	require.Equal(t, []string{"block"}, api.heads)

	api.calls = nil
	api.setErr = errors.New("api down")
	require.Error(t, r.commit(context.Background(), &StreamEvent{Block: Block{Hash: "next"}}))
	require.Equal(t, []string{"head"}, api.calls)
	require.Equal(t, []string{"block"}, api.heads)
}
