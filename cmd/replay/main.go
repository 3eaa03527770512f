// Command replay re-sends autosave batches that the funding backend rejected.
//
//	replay --project p-123 --token "$FOUNDER_TOKEN"
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"launchpad/internal/app"
	"launchpad/internal/config"
	"launchpad/internal/logger"
	"launchpad/internal/repository"
	"launchpad/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	projectID := flag.String("project", "", "project whose journal to replay (required)")
	token := flag.String("token", os.Getenv("APPLY_REPLAY_TOKEN"), "backend bearer token of the project owner")
	includeRestored := flag.Bool("include-restored", false, "also replay batches the session kept pending")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env", "error", err)
	}

	if *projectID == "" || *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := app.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		log.Errorw("mongo", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	repo := repository.NewFlushJournalRepo(client.Database(cfg.Mongo.Database))
	backend := service.NewBackendClient(cfg.Backend, log)

	report, err := service.Replay(ctx, repo, backend, *token, *projectID, *includeRestored)
	log.Infow("replay finished",
		"project", *projectID,
		"replayed", report.Replayed,
		"drafts", report.Drafts,
		"skipped", report.Skipped,
	)
	if err != nil {
		log.Errorw("replay stopped", "error", err)
		os.Exit(1)
	}
}
