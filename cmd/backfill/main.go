package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/riskibarqy/rift-backfill/internal/app"
	"github.com/riskibarqy/rift-backfill/internal/config"
	"github.com/riskibarqy/rift-backfill/internal/interfaces/statusapi"
	"github.com/riskibarqy/rift-backfill/internal/observability"
	idgen "github.com/riskibarqy/rift-backfill/internal/platform/id"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/riskibarqy/rift-backfill/internal/usecase"
)

const (
	exitOK         = 0
	exitRunFailure = 1
	exitStartup    = 7
	exitDataLoss   = 8
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal everywhere but local runs.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitStartup
	}

	logger, flushLogs, err := observability.InitBetterStackLogger(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return exitStartup
	}
	logging.SetDefault(logger)
	defer func() { _ = flushLogs(context.Background()) }()

	if runID, idErr := idgen.NewRandomGenerator().NewID(); idErr == nil {
		logger = logger.With("run_id", runID)
	}

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		return exitStartup
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownUptrace(shutdownCtx)
	}()

	stopProfiler, err := observability.InitPyroscope(cfg, nil)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		return exitStartup
	}
	defer func() { _ = stopProfiler() }()

	pprofSrv, err := observability.StartPprofServer(cfg, nil)
	if err != nil {
		logger.Error("start pprof server", "error", err)
		return exitStartup
	}
	defer func() { _ = observability.StopPprofServer(pprofSrv, nil, 5*time.Second) }()

	if cfg.StartEpoch == 0 || cfg.EndEpoch == 0 {
		logger.Error("start_epoch and end_epoch are required")
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backfill, err := app.NewBackfill(ctx, cfg, logger)
	if err != nil {
		logger.Error("build backfill", "error", err)
		return exitStartup
	}
	defer backfill.Uploader.Close()

	if cfg.StatusAddr != "" {
		status := statusapi.NewServer(backfill.Progress, logger)
		status.Start(cfg.StatusAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = status.Shutdown(shutdownCtx)
		}()
	}

	logger.InfoContext(ctx, "backfill starting", "config", cfg.Redacted())

	report, err := backfill.Service.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "backfill failed",
			"state", report.State,
			"attempted", report.Attempted,
			"leftover_key", report.LeftoverKey,
			"error", err,
		)
		return exitFor(err)
	}

	logger.InfoContext(ctx, "backfill finished",
		"state", report.State,
		"attempted", report.Attempted,
		"uploaded", report.Uploaded,
		"no_data", report.NoData,
		"batches", report.Batches,
	)
	return exitOK
}

// exitFor separates failures the operator retries (1) from dependency
// problems (7) and from checkpoint losses that need manual recovery before
// any retry (8).
func exitFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrCheckpointPersist):
		return exitDataLoss
	case errors.Is(err, usecase.ErrDependencyUnavailable):
		return exitStartup
	default:
		return exitRunFailure
	}
}
