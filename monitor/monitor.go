package monitor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/monitor/alerts"
	"github.com/iron-fish/ironfish-bridge/repository"
)

// Monitor runs the job worker pool that drives bridge requests and the
// periodic alert jobs.
type Monitor struct {
	cfg          *config.Config
	logger       logging.Logger
	queue        *jobs.Queue
	poller       *Poller
	worker       *jobs.Worker
	alertManager *alerts.AlertManager
}

// NewMonitor wires the job handlers. alertManager may be nil.
func NewMonitor(logger logging.Logger, cfg *config.Config, repo *repository.Repo, client ethclient.Client, service *bridge.Service, queue *jobs.Queue, alertManager *alerts.AlertManager) (*Monitor, error) {
	logger.Info("initializing bridge monitor")
	contracts, err := NewContracts(logger, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to bind token contracts: %w", err)
	}
	poller := NewPoller(logger.WithField("component", "poller"), cfg, client, repo, service, queue, contracts)
	submitter := NewSubmitter(logger.WithField("component", "submitter"), cfg.Ethereum, repo, service, queue, contracts)
	confirmations := NewConfirmationMonitor(logger.WithField("component", "confirmations"), cfg.Ethereum, client, service, queue)
	dispatcher := NewDispatcher(logger, service, poller, submitter, confirmations)
	return &Monitor{
		cfg:          cfg,
		logger:       logger,
		queue:        queue,
		poller:       poller,
		worker:       jobs.NewWorker(logger.WithField("component", "worker"), queue, dispatcher, cfg.Worker),
		alertManager: alertManager,
	}, nil
}

// Bootstrap schedules an immediate deposit poll for every configured asset.
func (m *Monitor) Bootstrap(ctx context.Context) error {
	for _, name := range m.cfg.AssetNames() {
		if err := m.poller.Schedule(ctx, name, m.poller.now()); err != nil {
			return fmt.Errorf("can't schedule %s transfers refresh: %w", name, err)
		}
	}
	return nil
}

// Start blocks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("starting bridge monitor")
	if err := m.Bootstrap(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.worker.Start(ctx)
	})
	if m.alertManager != nil {
		g.Go(func() error {
			m.alertManager.Start(ctx)
			return nil
		})
	}
	return g.Wait()
}
