package relay

type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

type BlockIdentifier struct {
	Hash     string `json:"hash"`
	Sequence uint64 `json:"sequence"`
}

type Block struct {
	Hash              string `json:"hash"`
	Sequence          uint64 `json:"sequence"`
	PreviousBlockHash string `json:"previousBlockHash"`
	Timestamp         int64  `json:"timestamp"`
}

type Note struct {
	AssetID   string `json:"assetId"`
	AssetName string `json:"assetName"`
	Hash      string `json:"hash"`
	Value     string `json:"value"`
	Memo      string `json:"memo"`
	MemoHex   string `json:"memoHex"`
	Sender    string `json:"sender"`
}

type Transaction struct {
	Hash        string  `json:"hash"`
	IsMinersFee bool    `json:"isMinersFee"`
	Notes       []*Note `json:"notes"`
}

// StreamEvent is one message of the node's chain/getTransactionStream.
type StreamEvent struct {
	Type         EventType       `json:"type"`
	Head         BlockIdentifier `json:"head"`
	Block        Block           `json:"block"`
	Transactions []*Transaction  `json:"transactions"`
}

type ChainInfo struct {
	CurrentBlockIdentifier BlockIdentifier `json:"currentBlockIdentifier"`
	GenesisBlockIdentifier BlockIdentifier `json:"genesisBlockIdentifier"`
	OldestBlockIdentifier  BlockIdentifier `json:"oldestBlockIdentifier"`
}

type StreamRequest struct {
	IncomingViewKey string `json:"incomingViewKey"`
	OutgoingViewKey string `json:"outgoingViewKey"`
	Head            string `json:"head,omitempty"`
}
