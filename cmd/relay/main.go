package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iron-fish/ironfish-bridge/contract/constants"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/relay"
)

const defaultConfirmations = 2

func main() {
	logger := logging.New()

	app := &cli.App{
		Name:  "relay",
		Usage: "relay Iron Fish deposits and releases to the bridge API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Usage: "bridge API host", EnvVars: []string{"IRONFISH_API_HOST"}, Required: true},
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "bridge API token", EnvVars: []string{"IRONFISH_API_TOKEN"}},
			&cli.StringFlag{Name: "node", Usage: "Iron Fish node HTTP RPC url", EnvVars: []string{"IRONFISH_NODE_URL"}, Value: "http://localhost:8021"},
			&cli.StringFlag{Name: "incoming-view-key", Aliases: []string{"k"}, Usage: "incoming view key to watch transactions with", Required: true},
			&cli.StringFlag{Name: "outgoing-view-key", Aliases: []string{"o"}, Usage: "outgoing view key to watch transactions with", Required: true},
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "public address of the bridge", Required: true},
			&cli.IntFlag{Name: "confirmations", Aliases: []string{"c"}, Usage: "block confirmations needed to process deposits", Value: defaultConfirmations},
			&cli.StringFlag{Name: "from-head", Aliases: []string{"f"}, Usage: "block hash to start following at"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logger.SetLevel(level)

			token := strings.TrimSpace(c.String("token"))
			if token == "" {
				return errors.New("no api token set, pass --token or set IRONFISH_API_TOKEN")
			}
			if c.Int("confirmations") < 0 {
				return errors.New("confirmations can't be negative")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := relay.NewAPIClient(strings.TrimSpace(c.String("endpoint")), token, relay.BreakerConfig{}, logger)
			node := relay.NewNodeClient(strings.TrimSpace(c.String("node")), logger)
			cfg := relay.Config{
				IncomingViewKey: strings.TrimSpace(c.String("incoming-view-key")),
				OutgoingViewKey: strings.TrimSpace(c.String("outgoing-view-key")),
				BridgeAddress:   strings.TrimSpace(c.String("address")),
				NativeAssetID:   constants.IronAssetID,
				Confirmations:   c.Int("confirmations"),
				FromHead:        strings.TrimSpace(c.String("from-head")),
			}
			logger.WithField("incoming_view_key", cfg.IncomingViewKey).Info("watching with view keys")
			return relay.New(logger.WithField("service", "relay"), api, node, cfg).Run(ctx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("relay terminated")
	}
}
