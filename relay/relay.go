package relay

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/presenter"
	"github.com/iron-fish/ironfish-bridge/utils"
)

type API interface {
	Head(ctx context.Context) (*string, error)
	SetHead(ctx context.Context, hash string) error
	PendingBurnRequests(ctx context.Context) ([]*entity.BridgeRequest, error)
	Create(ctx context.Context, reqs []*presenter.BridgeDataRequest) (map[string]int64, error)
	Send(ctx context.Context, sends []*presenter.SendItemRequest) (map[string]*bridge.ItemResult, error)
	Burn(ctx context.Context, burns []*presenter.BridgeDataRequest) (map[string]*bridge.ItemResult, error)
	Release(ctx context.Context, releases []*presenter.ReleaseItemRequest) (map[string]*bridge.ItemResult, error)
	Confirm(ctx context.Context, confirms []*presenter.ConfirmItemRequest) (map[string]*bridge.ItemResult, error)
}

type Node interface {
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	TransactionStream(ctx context.Context, req *StreamRequest) (Stream, error)
}

type Config struct {
	IncomingViewKey string
	OutgoingViewKey string
	BridgeAddress   string
	NativeAssetID   string
	Confirmations   int
	FromHead        string
	ReconnectDelay  time.Duration
}

// Relay follows the Iron Fish chain through the bridge's view keys and
// reports deposits, burns and releases to the bridge API once a block has
// enough confirmations.
type Relay struct {
	logger logging.Logger
	api    API
	node   Node
	cfg    Config
}

func New(logger logging.Logger, api API, node Node, cfg Config) *Relay {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	cfg.BridgeAddress = utils.NormalizeAddress(cfg.BridgeAddress)
	cfg.NativeAssetID = utils.NormalizeAddress(cfg.NativeAssetID)
	return &Relay{logger: logger, api: api, node: node, cfg: cfg}
}

// Run follows the chain until ctx is cancelled. A failed commit drops the
// buffered blocks and resumes from the last head stored by the API.
func (r *Relay) Run(ctx context.Context) error {
	fromHead := r.cfg.FromHead
	for {
		head, err := r.startHead(ctx, fromHead)
		if err == nil {
			fromHead = ""
			err = r.follow(ctx, head)
		}
		if ctx.Err() != nil {
			return nil
		}
		r.logger.WithError(err).Error("relay interrupted, reconnecting")
		if !utils.ContextSleep(ctx, r.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (r *Relay) startHead(ctx context.Context, fromHead string) (string, error) {
	if fromHead != "" {
		return fromHead, nil
	}
	head, err := r.api.Head(ctx)
	if err != nil {
		return "", fmt.Errorf("can't get relay head: %w", err)
	}
	if head != nil && *head != "" {
		return *head, nil
	}
	info, err := r.node.ChainInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("can't get chain info: %w", err)
	}
	return info.GenesisBlockIdentifier.Hash, nil
}

func (r *Relay) follow(ctx context.Context, head string) error {
	r.logger.WithField("head", head).Info("starting from head")
	stream, err := r.node.TransactionStream(ctx, &StreamRequest{
		IncomingViewKey: r.cfg.IncomingViewKey,
		OutgoingViewKey: r.cfg.OutgoingViewKey,
		Head:            head,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	var buffer []*StreamEvent
	for {
		event, err := stream.Next()
		if err != nil {
			return err
		}
		switch event.Type {
		case EventConnected:
			buffer = append(buffer, event)
		case EventDisconnected:
			if len(buffer) > 0 {
				buffer = buffer[:len(buffer)-1]
			}
		}
		BufferedBlocks.Set(float64(len(buffer)))
		r.logger.WithFields(logrus.Fields{
			"type":          event.Type,
			"hash":          event.Block.Hash,
			"sequence":      event.Block.Sequence,
			"head_sequence": event.Head.Sequence,
		}).Debug("received block")

		if len(buffer) > r.cfg.Confirmations {
			oldest := buffer[0]
			buffer = buffer[1:]
			if err = r.commit(ctx, oldest); err != nil {
				return fmt.Errorf("can't commit block %s: %w", oldest.Block.Hash, err)
			}
		}
	}
}

func (r *Relay) commit(ctx context.Context, event *StreamEvent) error {
	pending, err := r.api.PendingBurnRequests(ctx)
	if err != nil {
		return fmt.Errorf("can't get pending burns: %w", err)
	}
	batch := Classify(r.logger, event, pendingBurns(pending), r.cfg.BridgeAddress, r.cfg.NativeAssetID)

	if len(batch.Confirms) > 0 {
		if _, err = r.api.Confirm(ctx, batch.Confirms); err != nil {
			return fmt.Errorf("can't post confirms: %w", err)
		}
		PostedItems.WithLabelValues("confirm").Add(float64(len(batch.Confirms)))
	}
	if len(batch.Releases) > 0 {
		if _, err = r.api.Release(ctx, batch.Releases); err != nil {
			return fmt.Errorf("can't post releases: %w", err)
		}
		PostedItems.WithLabelValues("release").Add(float64(len(batch.Releases)))
	}
	if len(batch.Sends) > 0 {
		if _, err = r.api.Create(ctx, batch.Creates); err != nil {
			return fmt.Errorf("can't create deposits: %w", err)
		}
		if _, err = r.api.Send(ctx, batch.Sends); err != nil {
			return fmt.Errorf("can't post sends: %w", err)
		}
		PostedItems.WithLabelValues("send").Add(float64(len(batch.Sends)))
	}
	if len(batch.Burns) > 0 {
		if _, err = r.api.Burn(ctx, batch.Burns); err != nil {
			return fmt.Errorf("can't post burns: %w", err)
		}
		PostedItems.WithLabelValues("burn").Add(float64(len(batch.Burns)))
	}

	if err = r.api.SetHead(ctx, event.Block.Hash); err != nil {
		return fmt.Errorf("can't set head: %w", err)
	}
	CommittedSequence.Set(float64(event.Block.Sequence))
	r.logger.WithFields(logrus.Fields{
		"hash":     event.Block.Hash,
		"sequence": event.Block.Sequence,
	}).Info("committed block")
	return nil
}

func pendingBurns(reqs []*entity.BridgeRequest) map[string][]int64 {
	res := make(map[string][]int64, len(reqs))
	for _, req := range reqs {
		if req.SourceBurnTransaction == nil {
			continue
		}
		res[*req.SourceBurnTransaction] = append(res[*req.SourceBurnTransaction], req.ID)
	}
	return res
}

// Batch is everything one committed block reports to the bridge API.
type Batch struct {
	Confirms []*presenter.ConfirmItemRequest
	Releases []*presenter.ReleaseItemRequest
	Creates  []*presenter.BridgeDataRequest
	Sends    []*presenter.SendItemRequest
	Burns    []*presenter.BridgeDataRequest
}

// Classify sorts the transactions of a block. A transaction that is a
// pending burn releases its requests. Otherwise every note with a memo is
// either a release sent by the bridge, confirming the request id in the
// memo, or a deposit to the Ethereum address encoded in the memo.
func Classify(logger logging.Logger, event *StreamEvent, burns map[string][]int64, bridgeAddress, nativeAssetID string) *Batch {
	batch := new(Batch)
	for _, tx := range event.Transactions {
		if ids, ok := burns[tx.Hash]; ok {
			logger.WithField("tx_hash", tx.Hash).WithField("ids", ids).Info("confirmed burn")
			for _, id := range ids {
				id := id
				batch.Releases = append(batch.Releases, &presenter.ReleaseItemRequest{ID: &id})
			}
			continue
		}

		for _, note := range tx.Notes {
			if note.Memo == "" {
				continue
			}
			if utils.SameAddress(note.Sender, bridgeAddress) {
				id, err := strconv.ParseInt(strings.TrimSpace(note.Memo), 10, 64)
				if err != nil || id <= 0 {
					continue
				}
				logger.WithField("tx_hash", tx.Hash).WithField("id", id).Info("confirmed release")
				batch.Confirms = append(batch.Confirms, &presenter.ConfirmItemRequest{ID: id, DestinationTransaction: tx.Hash})
				continue
			}

			ethAddress, err := DecodeEthAddress(note.MemoHex)
			if err != nil || !utils.IsEthAddress(ethAddress) {
				logger.WithField("tx_hash", tx.Hash).WithField("memo", note.MemoHex).Warn("deposit for invalid eth address")
				continue
			}
			amount, err := decimal.NewFromString(note.Value)
			if err != nil || !amount.IsPositive() {
				logger.WithField("tx_hash", tx.Hash).WithField("value", note.Value).Warn("deposit with invalid value")
				continue
			}

			hash := tx.Hash
			req := &presenter.BridgeDataRequest{
				Amount:             amount.String(),
				Asset:              note.AssetID,
				SourceAddress:      note.Sender,
				DestinationAddress: ethAddress,
				SourceChain:        entity.ChainIronfish,
				DestinationChain:   entity.ChainEthereum,
				SourceTransaction:  &hash,
			}
			logger.WithFields(logrus.Fields{
				"tx_hash":     tx.Hash,
				"eth_address": ethAddress,
				"asset":       note.AssetID,
			}).Info("received deposit")

			if utils.SameAddress(note.AssetID, nativeAssetID) {
				batch.Creates = append(batch.Creates, req)
				batch.Sends = append(batch.Sends, &presenter.SendItemRequest{
					SourceTransaction: &hash,
					SourceAddress:     req.SourceAddress,
					Asset:             req.Asset,
					Amount:            req.Amount,
				})
			} else {
				batch.Burns = append(batch.Burns, req)
			}
		}
	}
	return batch
}

var ErrInvalidMemo = errors.New("invalid memo")

// DecodeEthAddress reads the Ethereum address a depositor put in the note
// memo: base64 text of the raw 20 address bytes, padded with NUL bytes.
func DecodeEthAddress(memoHex string) (string, error) {
	raw, err := hex.DecodeString(utils.NormalizeAddress(memoHex))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidMemo, err)
	}
	text := strings.TrimSpace(strings.TrimRight(string(raw), "\x00"))
	addr, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		if addr, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(text, "=")); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidMemo, err)
		}
	}
	return hex.EncodeToString(addr), nil
}
