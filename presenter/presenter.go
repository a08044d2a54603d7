package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/logging"
	mw "github.com/iron-fish/ironfish-bridge/presenter/http/middleware"
	"github.com/iron-fish/ironfish-bridge/presenter/http/render"
)

const (
	maxBodySize    = 1 << 20
	requestTimeout = 30 * time.Second
)

// InvalidRequestError wraps a body or query that could not be decoded or
// failed validation.
type InvalidRequestError struct {
	err error
}

func (e *InvalidRequestError) Error() string {
	return e.err.Error()
}

func (e *InvalidRequestError) Unwrap() error {
	return e.err
}

type Presenter struct {
	logger   logging.Logger
	service  *bridge.Service
	cfg      *config.BridgeConfig
	validate *validator.Validate
	root     chi.Router
}

func NewPresenter(logger logging.Logger, service *bridge.Service, cfg *config.BridgeConfig) *Presenter {
	p := &Presenter{
		logger:   logger,
		service:  service,
		cfg:      cfg,
		validate: newValidator(),
		root:     chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(middleware.RequestID)
	p.root.Use(middleware.RealIP)
	p.root.Use(mw.Metrics)
	p.root.Use(mw.NewLoggerMiddleware(p.logger))
	p.root.Use(mw.Recoverer)
	p.root.Use(middleware.Throttle(20))
	p.root.Use(middleware.Timeout(requestTimeout))

	p.root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	p.root.Route("/bridge", func(r chi.Router) {
		r.Get("/address", p.wrapJSONHandler(p.GetAddress))

		r.Group(func(r chi.Router) {
			r.Use(mw.NewAPIKeyMiddleware(p.cfg.APIKey))

			r.Post("/create", p.wrapJSONHandler(p.Create))
			r.Post("/retrieve", p.wrapJSONHandler(p.Retrieve))
			r.Post("/send", p.wrapJSONHandler(p.Send))
			r.Post("/burn", p.wrapJSONHandler(p.Burn))
			r.Post("/release", p.wrapJSONHandler(p.Release))
			r.Post("/update_requests", p.wrapJSONHandler(p.UpdateRequests))
			r.Post("/confirm", p.wrapJSONHandler(p.Confirm))
			r.Post("/head", p.wrapJSONHandler(p.SetHead))
			r.Get("/head", p.wrapJSONHandler(p.GetHead))
			r.Get("/next_wiron_requests", p.wrapJSONHandler(p.nextRequests(p.service.NextWIronRequests)))
			r.Get("/next_release_requests", p.wrapJSONHandler(p.nextRequests(p.service.NextReleaseRequests)))
			r.Get("/next_burn_requests", p.wrapJSONHandler(p.nextRequests(p.service.NextBurnRequests)))
			r.Get("/next_mint_requests", p.wrapJSONHandler(p.nextRequests(p.service.NextMintRequests)))
		})
	})
}

func (p *Presenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.root.ServeHTTP(w, r)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown presenter: %w", err)
		}
		return nil
	}
}

type handlerFunc func(r *http.Request) (interface{}, error)

func (p *Presenter) wrapJSONHandler(handler handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		var invalid *InvalidRequestError
		switch {
		case errors.As(err, &invalid):
			render.Unprocessable(w, r, err)
		case err != nil:
			render.Error(w, r, err)
		default:
			render.JSON(w, r, http.StatusOK, res)
		}
	}
}

func (p *Presenter) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return &InvalidRequestError{fmt.Errorf("malformed request body: %w", err)}
	}
	if err := p.validate.Struct(dst); err != nil {
		return &InvalidRequestError{err}
	}
	return nil
}

func (p *Presenter) GetAddress(*http.Request) (interface{}, error) {
	return &AddressResponse{Address: p.cfg.IronfishAddress}, nil
}

func (p *Presenter) Create(r *http.Request) (interface{}, error) {
	var body CreateRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.Create(r.Context(), toNewRequests(body.Requests))
}

func (p *Presenter) Retrieve(r *http.Request) (interface{}, error) {
	var body RetrieveRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	if body.IDs != nil {
		return p.service.Retrieve(r.Context(), body.IDs)
	}
	reqs, err := p.service.Find(r.Context(), &entity.BridgeRequestsFilter{
		SourceChain:      body.SourceChain,
		DestinationChain: body.DestinationChain,
		Statuses:         []entity.BridgeRequestStatus{*body.Status},
		Limit:            body.Count,
	})
	if err != nil {
		return nil, err
	}
	return &RetrieveResponse{Requests: reqs}, nil
}

func (p *Presenter) Send(r *http.Request) (interface{}, error) {
	var body SendRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.Send(r.Context(), toSendItems(body.Sends))
}

func (p *Presenter) Burn(r *http.Request) (interface{}, error) {
	var body BurnRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.Burn(r.Context(), toNewRequests(body.Burns))
}

func (p *Presenter) Release(r *http.Request) (interface{}, error) {
	var body ReleaseRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.Release(r.Context(), toReleaseItems(body.Releases))
}

func (p *Presenter) UpdateRequests(r *http.Request) (interface{}, error) {
	var body UpdateRequestsRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.UpdateRequests(r.Context(), toUpdateItems(body.Transactions))
}

func (p *Presenter) Confirm(r *http.Request) (interface{}, error) {
	var body ConfirmRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	return p.service.Confirm(r.Context(), toConfirmItems(body.Confirms))
}

func (p *Presenter) SetHead(r *http.Request) (interface{}, error) {
	var body HeadRequest
	if err := p.decode(r, &body); err != nil {
		return nil, err
	}
	hash, err := p.service.SetHead(r.Context(), body.Head)
	if err != nil {
		return nil, err
	}
	return &HeadResponse{Hash: &hash}, nil
}

func (p *Presenter) GetHead(r *http.Request) (interface{}, error) {
	hash, err := p.service.Head(r.Context())
	if err != nil {
		return nil, err
	}
	return &HeadResponse{Hash: hash}, nil
}

type queueFunc func(ctx context.Context, count uint64) ([]*entity.BridgeRequest, error)

func (p *Presenter) nextRequests(next queueFunc) handlerFunc {
	return func(r *http.Request) (interface{}, error) {
		query := nextRequestsQuery{Count: bridge.DefaultQueueCount}
		if raw := r.URL.Query().Get("count"); raw != "" {
			count, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, &InvalidRequestError{fmt.Errorf("invalid count: %w", err)}
			}
			query.Count = count
		}
		if err := p.validate.Struct(&query); err != nil {
			return nil, &InvalidRequestError{err}
		}
		reqs, err := next(r.Context(), query.Count)
		if err != nil {
			return nil, err
		}
		if reqs == nil {
			reqs = []*entity.BridgeRequest{}
		}
		return &ListResponse{Object: "list", Data: reqs}, nil
	}
}
