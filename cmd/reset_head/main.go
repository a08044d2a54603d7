package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/entity"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/monitor"
	"github.com/iron-fish/ironfish-bridge/repository"
)

// reset_head moves the stored scan head of one asset. Rescanning blocks is
// safe: deposits are keyed by their transaction hash.
func main() {
	logger := logging.New()

	app := &cli.App{
		Name:  "reset_head",
		Usage: "rewind or forward the Ethereum scan head of one asset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yml", EnvVars: []string{"BRIDGE_CONFIG"}},
			&cli.StringFlag{Name: "asset", Usage: "asset name from the config", Required: true},
			&cli.UintFlag{Name: "height", Usage: "block height to continue scanning from", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.ReadConfigFromFile(c.String("config"))
			if err != nil {
				return fmt.Errorf("can't read config: %w", err)
			}
			logger.SetLevel(cfg.LogLevel)

			asset := cfg.Asset(c.String("asset"))
			if asset == nil {
				return fmt.Errorf("asset %q is not configured", c.String("asset"))
			}
			height := c.Uint("height")
			if height < asset.StartBlock {
				logger.WithFields(logrus.Fields{
					"height":      height,
					"start_block": asset.StartBlock,
				}).Warn("height is below the asset start block")
			}

			client, err := ethclient.NewClient(cfg.Ethereum.RPC, cfg.Ethereum.ChainID)
			if err != nil {
				return fmt.Errorf("can't dial ethereum rpc client: %w", err)
			}
			header, err := client.HeaderByNumber(c.Context, height)
			if err != nil {
				return fmt.Errorf("can't get header %d: %w", height, err)
			}

			dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
			if err != nil {
				return fmt.Errorf("can't connect to database and apply migrations: %w", err)
			}
			defer dbConn.Close()
			repo := repository.NewRepo(dbConn)

			head := &entity.ChainHead{Asset: monitor.HeadKey(asset), Hash: header.Hash().Hex(), Height: height}
			if err = repo.ChainHeads.Ensure(c.Context, head); err != nil {
				return fmt.Errorf("can't store chain head: %w", err)
			}
			logger.WithFields(logrus.Fields{
				"asset":  asset.Name,
				"height": head.Height,
				"hash":   head.Hash,
			}).Info("chain head reset")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("can't reset chain head")
	}
}
