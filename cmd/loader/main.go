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
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/observability"
	idgen "github.com/riskibarqy/rift-backfill/internal/platform/id"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/riskibarqy/rift-backfill/internal/usecase"
)

const (
	exitOK         = 0
	exitRunFailure = 1
	exitStartup    = 7
)

func main() {
	os.Exit(run())
}

func run() int {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := app.NewLoader(ctx, cfg, logger)
	if err != nil {
		logger.Error("build loader", "error", err)
		return exitStartup
	}
	defer func() { _ = loader.DB.Close() }()

	prefix := cfg.LoaderPrefix
	if prefix == "" {
		prefix = batch.Prefix(cfg.Source)
	}

	logger.InfoContext(ctx, "warehouse load starting", "prefix", prefix, "config", cfg.Redacted())

	report, err := loader.Service.LoadPrefix(ctx, prefix)
	if err != nil {
		logger.ErrorContext(ctx, "warehouse load failed",
			"objects", report.Objects,
			"failed", report.Failed,
			"matches", report.Matches,
			"rows", report.Rows,
			"error", err,
		)
		if errors.Is(err, usecase.ErrDependencyUnavailable) {
			return exitStartup
		}
		return exitRunFailure
	}

	logger.InfoContext(ctx, "warehouse load finished",
		"objects", report.Objects,
		"failed", report.Failed,
		"matches", report.Matches,
		"rows", report.Rows,
	)
	return exitOK
}
