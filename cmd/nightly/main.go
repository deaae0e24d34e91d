package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/condobill/condobill/internal/clock"
	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/docstore/dynamodb"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/httpclient"
	"github.com/condobill/condobill/internal/integration/rates"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/repository"
	"github.com/condobill/condobill/internal/s3"
	"github.com/condobill/condobill/internal/scheduler"
	"github.com/condobill/condobill/internal/service"
	"github.com/condobill/condobill/internal/types"
)

// Exit codes: 0 success (or already ran today), 2 partial failure,
// 1 hard failure.
const (
	exitOK      = 0
	exitFailure = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		skipBackup  = flag.Bool("skip-backup", false, "skip the backup task")
		skipPenalty = flag.Bool("skip-penalty", false, "skip the penalty refresh task")
		skipRates   = flag.Bool("skip-rates", false, "skip the exchange-rate task")
		clients     = flag.String("clients", types.DefaultClientID, "comma-separated client ids to process")
	)
	flag.Parse()

	// Local convenience; absent .env is fine in deployed environments.
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitFailure
	}

	ctx := types.SetUserID(context.Background(), "nightly-scheduler")

	client, err := dynamodb.NewClient(cfg)
	if err != nil {
		log.Errorw("failed to initialize store client", "error", err)
		return exitFailure
	}
	pooled := docstore.WithRetries(dynamodb.NewStore(client, cfg, log), docstore.DefaultRetryPolicy())

	// The run holds one scoped handle for its whole lifetime so scheduler
	// instances count against the store's connection bound.
	handle, err := pooled.Acquire(ctx)
	if err != nil {
		log.Errorw("failed to acquire a store handle", "error", err)
		return exitFailure
	}
	defer handle.Release()
	store := handle.Store

	var secondary docstore.Store
	if cfg.ExchangeRates.SecondaryTable != "" {
		secondaryCfg := *cfg
		secondaryCfg.DynamoDB.Table = cfg.ExchangeRates.SecondaryTable
		secondary = docstore.WithRetries(dynamodb.NewStore(client, &secondaryCfg, log), docstore.DefaultRetryPolicy())
	}

	clk := clock.New()
	repos := repository.NewRepositories(store, log)
	params := service.NewServiceParams(log, cfg, clk, store, repos, nil)

	backup, err := s3.NewService(cfg, store, clk, log)
	if err != nil {
		log.Errorw("failed to initialize backup service", "error", err)
		return exitFailure
	}
	ratesSvc := rates.NewService(cfg, httpclient.NewDefaultClient(), store, secondary, clk, log)

	clientIDs := strings.Split(*clients, ",")
	sched := scheduler.New(params, backup, ratesSvc, clientIDs)
	runLog, err := sched.Run(ctx, scheduler.Options{
		SkipBackup:  *skipBackup,
		SkipPenalty: *skipPenalty,
		SkipRates:   *skipRates,
	})
	switch {
	case err == nil:
		if runLog != nil {
			log.Infow("nightly run finished", "date", runLog.Date, "status", runLog.Status)
		}
		return exitOK
	case ierr.IsPartialFailure(err):
		log.Warnw("nightly run finished with failed tasks", "date", runLog.Date, "status", runLog.Status)
		return exitPartial
	default:
		log.Errorw("nightly run failed", "error", err)
		return exitFailure
	}
}
