package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/logging"
)

const (
	StuckRequestsAlert  = "stuck_requests"
	FailedRequestsAlert = "failed_requests"
)

type AlertManager struct {
	logger logging.Logger
	jobs   map[string]*Job
}

func NewAlertManager(logger logging.Logger, db Selector, cfg map[string]*config.AlertConfig) (*AlertManager, error) {
	provider := NewDBAlertsProvider(db)
	jobs := make(map[string]*Job, len(cfg))

	for name, alertCfg := range cfg {
		switch name {
		case StuckRequestsAlert:
			jobs[name] = &Job{
				Func:   provider.FindStuckRequests,
				Metric: AlertStuckRequests,
			}
		case FailedRequestsAlert:
			jobs[name] = &Job{
				Func:   provider.FindFailedRequests,
				Metric: AlertFailedRequests,
			}
		default:
			return nil, fmt.Errorf("unknown alert type %q", name)
		}
		jobs[name].Interval = alertCfg.Interval
		jobs[name].Timeout = alertCfg.Timeout
		jobs[name].Params = &AlertJobParams{Threshold: alertCfg.Threshold}
		jobs[name].logger = logger.WithField("alert_job", name)
	}

	return &AlertManager{
		logger: logger,
		jobs:   jobs,
	}, nil
}

// Start blocks until ctx is cancelled.
func (m *AlertManager) Start(ctx context.Context) {
	m.logger.WithField("count", len(m.jobs)).Info("starting alert manager jobs")
	wg := new(sync.WaitGroup)
	for _, job := range m.jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			job.Start(ctx)
		}(job)
	}
	wg.Wait()
}
