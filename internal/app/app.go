package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/riskibarqy/rift-backfill/external/riot"
	"github.com/riskibarqy/rift-backfill/internal/config"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/objectstore"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/secrets"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/riskibarqy/rift-backfill/internal/platform/resilience"
	"github.com/riskibarqy/rift-backfill/internal/usecase"
)

// Backfill bundles everything the backfill binary needs for one window run.
type Backfill struct {
	Service  *usecase.BackfillService
	Progress *usecase.Progress
	Uploader *usecase.UploaderService
}

func NewBackfill(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Backfill, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := newRiotClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	progress := usecase.NewProgress()
	uploader, err := usecase.NewUploaderService(store, cfg.Source, cfg.UploadWorkers, progress, logger)
	if err != nil {
		return nil, fmt.Errorf("start uploader: %w", err)
	}

	roster := usecase.NewRosterService(client, cfg.PlayerLimit, logger)
	collector := usecase.NewCollectorService(client, progress, logger)

	service := usecase.NewBackfillService(roster, collector, client, store, uploader, progress, logger, usecase.BackfillConfig{
		Source:     cfg.Source,
		StartEpoch: cfg.StartEpoch,
		EndEpoch:   cfg.EndEpoch,
		Process:    processConfig(cfg),
	})

	return &Backfill{
		Service:  service,
		Progress: progress,
		Uploader: uploader,
	}, nil
}

// Leftover bundles everything the leftover sweeper binary needs.
type Leftover struct {
	Service  *usecase.LeftoverService
	Progress *usecase.Progress
	Uploader *usecase.UploaderService
}

func NewLeftover(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Leftover, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := newRiotClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	progress := usecase.NewProgress()
	uploader, err := usecase.NewUploaderService(store, cfg.Source, cfg.UploadWorkers, progress, logger)
	if err != nil {
		return nil, fmt.Errorf("start uploader: %w", err)
	}

	service := usecase.NewLeftoverService(client, store, uploader, progress, logger, processConfig(cfg))

	return &Leftover{
		Service:  service,
		Progress: progress,
		Uploader: uploader,
	}, nil
}

// Loader bundles everything the warehouse loader binary needs. Callers own
// closing DB.
type Loader struct {
	Service *usecase.LoaderService
	DB      *sqlx.DB
}

func NewLoader(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Loader, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := openWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := postgres.NewWarehouseRepository(db)
	service := usecase.NewLoaderService(store, repo, logger, cfg.LoaderTable, cfg.LoaderWorkers)

	return &Loader{
		Service: service,
		DB:      db,
	}, nil
}

func processConfig(cfg config.Config) usecase.ProcessConfig {
	return usecase.ProcessConfig{
		Source:         cfg.Source,
		KeyExpiresAt:   cfg.APIKeyExpiresAt,
		FlushThreshold: cfg.FlushThreshold,
		PutRetries:     cfg.WindowPutRetries,
		PutDelay:       cfg.WindowPutDelay,
	}
}

func newStore(ctx context.Context, cfg config.Config) (window.Store, error) {
	store, err := objectstore.NewS3Store(ctx, cfg.Bucket, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return store, nil
}

func newRiotClient(ctx context.Context, cfg config.Config, logger *logging.Logger) (*riot.Client, error) {
	token, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   cfg.RiotTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return riot.NewClient(riot.ClientConfig{
		HTTPClient:      httpClient,
		PlatformBaseURL: riotHostURL(cfg.RiotPlatformHost),
		RegionBaseURL:   riotHostURL(cfg.RiotRegionHost),
		Token:           token,
		MaxRetries:      cfg.MaxRetries,
		ThrottleDelay:   cfg.ThrottleDelay,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		Logger:          logger,
		CircuitBreaker:  resilience.DefaultCircuitBreakerConfig(),
	}), nil
}

// riotHostURL accepts either a bare platform/region host like "na1" or a full
// base URL for tests against a local stub.
func riotHostURL(host string) string {
	host = strings.TrimSpace(host)
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", host)
}

func resolveAPIKey(ctx context.Context, cfg config.Config) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}

	param := strings.TrimSpace(cfg.APIKeySSMParam)
	if param == "" {
		return "", fmt.Errorf("API_KEY or API_KEY_SSM_PARAM must be set")
	}

	resolver, err := secrets.NewResolver(ctx, cfg.AWSRegion)
	if err != nil {
		return "", fmt.Errorf("open secrets resolver: %w", err)
	}
	key, err := resolver.Parameter(ctx, param)
	if err != nil {
		return "", fmt.Errorf("resolve api key from %s: %w", param, err)
	}
	return key, nil
}

func openWarehouse(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := otelsqlx.Open("postgres", normalizeDBURL(dsn, cfg.DBDisablePreparedBinary),
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(dsn)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping warehouse: %v", usecase.ErrDependencyUnavailable, err)
	}

	return db, nil
}
