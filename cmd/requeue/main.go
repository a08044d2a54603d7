package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/db"
	"github.com/iron-fish/ironfish-bridge/jobs"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/repository"
)

func main() {
	logger := logging.New()

	app := &cli.App{
		Name:  "requeue",
		Usage: "enqueue a submission or confirmation job for one bridge request",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yml", EnvVars: []string{"BRIDGE_CONFIG"}},
			&cli.Int64Flag{Name: "id", Usage: "bridge request id", Required: true},
			&cli.StringFlag{Name: "kind", Usage: "job kind, e.g. MINT_WIRON", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.ReadConfigFromFile(c.String("config"))
			if err != nil {
				return fmt.Errorf("can't read config: %w", err)
			}
			logger.SetLevel(cfg.LogLevel)

			kind, err := jobs.ParseKind(c.String("kind"))
			if err != nil {
				return err
			}
			id := c.Int64("id")

			var payload interface{}
			switch {
			case kind.IsSubmission():
				payload = jobs.RequestPayload{BridgeRequestID: id}
			case kind.IsConfirmation():
				payload = jobs.ConfirmationPayload{BridgeRequestID: id}
			default:
				return fmt.Errorf("%s is not a per-request job", kind)
			}

			dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
			if err != nil {
				return fmt.Errorf("can't connect to database and apply migrations: %w", err)
			}
			defer dbConn.Close()
			repo := repository.NewRepo(dbConn)

			if _, err = repo.BridgeRequests.GetByID(c.Context, id); err != nil {
				return fmt.Errorf("can't find bridge request %d: %w", id, err)
			}
			key := jobs.RequestKey(kind, id)
			job, err := jobs.NewQueue(repo.Jobs, cfg.Worker).Add(c.Context, kind, payload, jobs.WithJobKey(key))
			if err != nil {
				return fmt.Errorf("can't enqueue job: %w", err)
			}
			logger.WithFields(logrus.Fields{
				"job_id": job.ID,
				"kind":   kind,
				"key":    key,
			}).Info("job enqueued")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("can't requeue job")
	}
}
