package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iron-fish/ironfish-bridge/logging"
)

// messageDelimiter separates streamed messages of the node's HTTP RPC.
const messageDelimiter = '\f'

var ErrStreamClosed = errors.New("transaction stream closed")

type rpcResponse struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NodeClient talks to an Iron Fish node over its HTTP RPC adapter.
type NodeClient struct {
	url    string
	client *http.Client
	logger logging.Logger
}

func NewNodeClient(url string, logger logging.Logger) *NodeClient {
	return &NodeClient{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{},
		logger: logger.WithField("node", url),
	}
}

func (c *NodeClient) post(ctx context.Context, route string, body interface{}) (*http.Response, error) {
	blob, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("can't encode %s request: %w", route, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/"+route, bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't call %s: %w", route, err)
	}
	if res.StatusCode/100 != 2 {
		defer res.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%s returned %d: %s", route, res.StatusCode, decodeRPCError(msg))
	}
	return res, nil
}

func decodeRPCError(blob []byte) string {
	var res rpcResponse
	var rerr rpcError
	if json.Unmarshal(bytes.TrimRight(blob, "\f"), &res) == nil && json.Unmarshal(res.Data, &rerr) == nil && rerr.Message != "" {
		return fmt.Sprintf("%s: %s", rerr.Code, rerr.Message)
	}
	return string(blob)
}

func (c *NodeClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	res, err := c.post(ctx, "chain/getChainInfo", struct{}{})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	blob, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read chain info: %w", err)
	}
	var rpcRes rpcResponse
	if err = json.Unmarshal(bytes.TrimRight(blob, "\f"), &rpcRes); err != nil {
		return nil, fmt.Errorf("can't decode chain info: %w", err)
	}
	info := new(ChainInfo)
	if err = json.Unmarshal(rpcRes.Data, info); err != nil {
		return nil, fmt.Errorf("can't decode chain info: %w", err)
	}
	return info, nil
}

// TransactionStream opens chain/getTransactionStream. The stream stays open
// until ctx is cancelled or the node hangs up.
func (c *NodeClient) TransactionStream(ctx context.Context, req *StreamRequest) (Stream, error) {
	c.logger.WithField("head", req.Head).Info("opening transaction stream")
	res, err := c.post(ctx, "chain/getTransactionStream", req)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	scanner.Split(splitMessages)
	return &httpStream{body: res.Body, scanner: scanner}, nil
}

// Stream yields transaction stream events in node order.
type Stream interface {
	Next() (*StreamEvent, error)
	Close() error
}

type httpStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *httpStream) Next() (*StreamEvent, error) {
	for s.scanner.Scan() {
		msg := bytes.TrimSpace(s.scanner.Bytes())
		if len(msg) == 0 {
			continue
		}
		var res rpcResponse
		if err := json.Unmarshal(msg, &res); err != nil {
			return nil, fmt.Errorf("can't decode stream message: %w", err)
		}
		// the closing message carries a status and no event
		if res.Status != 0 && res.Status/100 != 2 {
			return nil, fmt.Errorf("transaction stream failed: %s", decodeRPCError(msg))
		}
		if len(res.Data) == 0 || string(res.Data) == "null" {
			continue
		}
		event := new(StreamEvent)
		if err := json.Unmarshal(res.Data, event); err != nil {
			return nil, fmt.Errorf("can't decode stream event: %w", err)
		}
		if event.Type == "" {
			continue
		}
		return event, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, ErrStreamClosed
}

func (s *httpStream) Close() error {
	return s.body.Close()
}

func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, messageDelimiter); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
