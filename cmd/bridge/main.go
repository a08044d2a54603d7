package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/monitor"
	"github.com/iron-fish/ironfish-bridge/monitor/alerts"
	"github.com/iron-fish/ironfish-bridge/presenter"
	"github.com/iron-fish/ironfish-bridge/repository"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the yaml config file",
		Value:   "config.yml",
		EnvVars: []string{"BRIDGE_CONFIG"},
	}
	memoryFlag = &cli.BoolFlag{
		Name:  "memory",
		Usage: "keep all state in process memory instead of postgres",
	}
)

func main() {
	logger := logging.New()

	app := &cli.App{
		Name:  "bridge",
		Usage: "Iron Fish <-> Ethereum bridge service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the REST API, the job workers and the alert jobs",
				Flags:  []cli.Flag{configFlag, memoryFlag},
				Action: func(c *cli.Context) error { return serve(c, logger) },
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Flags:  []cli.Flag{configFlag},
				Action: func(c *cli.Context) error { return migrate(c, logger) },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("bridge terminated")
	}
}

func readConfig(c *cli.Context, logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.ReadConfigFromFile(c.String(configFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("can't read config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func migrate(c *cli.Context, logger *logrus.Logger) error {
	cfg, err := readConfig(c, logger)
	if err != nil {
		return err
	}
	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		return fmt.Errorf("can't connect to database and apply migrations: %w", err)
	}
	logger.Info("migrations applied")
	return dbConn.Close()
}

func serve(c *cli.Context, logger *logrus.Logger) error {
	cfg, err := readConfig(c, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo *repository.Repo
	var alertManager *alerts.AlertManager
	if c.Bool(memoryFlag.Name) {
		logger.Warn("running with in-memory state, nothing survives a restart")
		repo = repository.NewInMemoryRepo()
	} else {
		dbConn, err2 := db.ConnectToDBAndMigrate(cfg.DBConfig)
		if err2 != nil {
			return fmt.Errorf("can't connect to database and apply migrations: %w", err2)
		}
		defer dbConn.Close()
		repo = repository.NewRepo(dbConn)

		alertManager, err2 = alerts.NewAlertManager(logger.WithField("service", "alerts"), dbConn, cfg.Alerts)
		if err2 != nil {
			return fmt.Errorf("can't initialize alert manager: %w", err2)
		}
	}

	client, err := ethclient.NewClient(cfg.Ethereum.RPC, cfg.Ethereum.ChainID)
	if err != nil {
		return fmt.Errorf("can't dial ethereum rpc client: %w", err)
	}

	queue := jobs.NewQueue(repo.Jobs, cfg.Worker)
	service := bridge.NewService(logger.WithField("service", "bridge"), repo, queue, cfg)
	m, err := monitor.NewMonitor(logger.WithField("service", "monitor"), cfg, repo, client, service, queue, alertManager)
	if err != nil {
		return fmt.Errorf("can't initialize bridge monitor: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Start(ctx)
	})
	g.Go(func() error {
		return serveMetrics(ctx, logger, cfg.Metrics.Host)
	})
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), service, cfg.Bridge)
		g.Go(func() error {
			return pr.Serve(ctx, cfg.Presenter.Host)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Warn("gracefully terminated")
	return nil
}

func serveMetrics(ctx context.Context, logger logging.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("starting metrics listener")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("can't start listener for prometheus metrics: %w", err)
	}
	return nil
}
