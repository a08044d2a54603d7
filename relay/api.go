package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/presenter"
)

const pendingBurnsCount = 100

// ErrAPIUnavailable means the circuit breaker rejected the call.
var ErrAPIUnavailable = errors.New("bridge api unavailable")

// StatusError is a non-2xx reply from the bridge API.
type StatusError struct {
	Route  string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Route, e.Status, e.Body)
}

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// APIClient calls the bridge REST API on behalf of the relay.
type APIClient struct {
	host    string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  logging.Logger
}

func NewAPIClient(host, token string, cfg BreakerConfig, logger logging.Logger) *APIClient {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	logger = logger.WithField("api", host)
	c := &APIClient{
		host:   strings.TrimSuffix(host, "/"),
		token:  token,
		client: &http.Client{Timeout: time.Minute},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "bridge-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: isSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("from", from.String()).WithField("to", to.String()).Warn("bridge api breaker changed state")
			BreakerState.Set(float64(to))
		},
	})
	return c
}

// A 4xx reply is a bad request, not an unhealthy API.
func isSuccessfulForBreaker(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status < 500
	}
	return err == nil || errors.Is(err, context.Canceled)
}

func (c *APIClient) call(ctx context.Context, method, route string, body interface{}, dst interface{}) error {
	blob, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, route, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", route, ErrAPIUnavailable)
	}
	if err != nil {
		return err
	}
	if dst == nil {
		return nil
	}
	if err = json.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("can't decode %s response: %w", route, err)
	}
	return nil
}

func (c *APIClient) do(ctx context.Context, method, route string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("can't encode %s request: %w", route, err)
		}
		reader = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+route, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't call %s: %w", route, err)
	}
	defer res.Body.Close()
	blob, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read %s response: %w", route, err)
	}
	if res.StatusCode/100 != 2 {
		return nil, &StatusError{Route: route, Status: res.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	return blob, nil
}

// Head returns nil when the API has no stored head yet.
func (c *APIClient) Head(ctx context.Context) (*string, error) {
	var res presenter.HeadResponse
	if err := c.call(ctx, http.MethodGet, "/bridge/head", nil, &res); err != nil {
		return nil, err
	}
	return res.Hash, nil
}

func (c *APIClient) SetHead(ctx context.Context, hash string) error {
	return c.call(ctx, http.MethodPost, "/bridge/head", &presenter.HeadRequest{Head: hash}, nil)
}

func (c *APIClient) PendingBurnRequests(ctx context.Context) ([]*entity.BridgeRequest, error) {
	source, destination := entity.ChainIronfish, entity.ChainEthereum
	status := entity.StatusPendingSourceBurnTransactionConfirmation
	var res presenter.RetrieveResponse
	err := c.call(ctx, http.MethodPost, "/bridge/retrieve", &presenter.RetrieveRequest{
		SourceChain:      &source,
		DestinationChain: &destination,
		Status:           &status,
		Count:            pendingBurnsCount,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Requests, nil
}

func (c *APIClient) Create(ctx context.Context, reqs []*presenter.BridgeDataRequest) (map[string]int64, error) {
	res := make(map[string]int64)
	if err := c.call(ctx, http.MethodPost, "/bridge/create", &presenter.CreateRequest{Requests: reqs}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *APIClient) Send(ctx context.Context, sends []*presenter.SendItemRequest) (map[string]*bridge.ItemResult, error) {
	return c.batch(ctx, "/bridge/send", &presenter.SendRequest{Sends: sends})
}

func (c *APIClient) Burn(ctx context.Context, burns []*presenter.BridgeDataRequest) (map[string]*bridge.ItemResult, error) {
	return c.batch(ctx, "/bridge/burn", &presenter.BurnRequest{Burns: burns})
}

func (c *APIClient) Release(ctx context.Context, releases []*presenter.ReleaseItemRequest) (map[string]*bridge.ItemResult, error) {
	return c.batch(ctx, "/bridge/release", &presenter.ReleaseRequest{Releases: releases})
}

func (c *APIClient) Confirm(ctx context.Context, confirms []*presenter.ConfirmItemRequest) (map[string]*bridge.ItemResult, error) {
	return c.batch(ctx, "/bridge/confirm", &presenter.ConfirmRequest{Confirms: confirms})
}

func (c *APIClient) batch(ctx context.Context, route string, body interface{}) (map[string]*bridge.ItemResult, error) {
	res := make(map[string]*bridge.ItemResult)
	if err := c.call(ctx, http.MethodPost, route, body, &res); err != nil {
		return nil, err
	}
	return res, nil
}
