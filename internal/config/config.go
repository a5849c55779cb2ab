package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

// Config stores runtime configuration for the backfill binaries.
type Config struct {
	AppEnv         string `validate:"required"`
	ServiceName    string `validate:"required"`
	ServiceVersion string

	Source     string `validate:"required"`
	StartEpoch int64  `validate:"gte=0"`
	EndEpoch   int64  `validate:"gte=0"`

	APIKey          string
	APIKeySSMParam  string
	APIKeyExpiresAt time.Time

	Bucket           string
	AWSRegion        string        `validate:"required"`
	RiotPlatformHost string        `validate:"required"`
	RiotRegionHost   string        `validate:"required"`
	RiotTimeout      time.Duration `validate:"gt=0"`

	ThrottleDelay  time.Duration `validate:"gt=0"`
	MaxRetries     int           `validate:"gte=0"`
	RateLimitRPS   float64       `validate:"gt=0"`
	RateLimitBurst int           `validate:"gte=1"`

	PlayerLimit      int           `validate:"gte=1"`
	FlushThreshold   int           `validate:"gte=1"`
	UploadWorkers    int           `validate:"gte=1"`
	WindowPutRetries int           `validate:"gte=1"`
	WindowPutDelay   time.Duration `validate:"gt=0"`

	DatabaseURL             string
	DBDisablePreparedBinary bool
	LoaderWorkers           int    `validate:"gte=1"`
	LoaderTable             string `validate:"required"`
	LoaderPrefix            string

	StatusAddr string

	PprofEnabled bool
	PprofAddr    string

	UptraceEnabled     bool
	UptraceDSN         string
	UptraceLogsEnabled bool

	BetterStackEnabled  bool
	BetterStackEndpoint string
	BetterStackToken    string
	BetterStackTimeout  time.Duration
	BetterStackMinLevel logging.Level

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	source := firstEnv("source", "SOURCE")
	if source == "" {
		source = "prod"
	}

	startEpoch, err := parseEpoch(firstEnv("start_epoch", "START_EPOCH"))
	if err != nil {
		return Config{}, fmt.Errorf("parse start_epoch: %w", err)
	}
	endEpoch, err := parseEpoch(firstEnv("end_epoch", "END_EPOCH"))
	if err != nil {
		return Config{}, fmt.Errorf("parse end_epoch: %w", err)
	}
	if endEpoch != 0 && startEpoch >= endEpoch {
		return Config{}, fmt.Errorf("end_epoch must be greater than start_epoch")
	}

	apiKeyExpiration, err := parseEpoch(getEnv("API_KEY_EXPIRATION", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_KEY_EXPIRATION: %w", err)
	}
	var apiKeyExpiresAt time.Time
	if apiKeyExpiration > 0 {
		apiKeyExpiresAt = time.Unix(apiKeyExpiration, 0).UTC()
	}

	riotTimeout, err := time.ParseDuration(getEnv("RIOT_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse RIOT_TIMEOUT: %w", err)
	}

	throttleDelay, err := time.ParseDuration(getEnv("THROTTLE_DELAY", "120s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse THROTTLE_DELAY: %w", err)
	}

	maxRetries, err := getEnvAsInt("MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_RETRIES: %w", err)
	}

	rateLimitRPS, err := getEnvAsFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_RPS: %w", err)
	}
	rateLimitBurst, err := getEnvAsInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_BURST: %w", err)
	}

	playerLimit, err := getEnvAsInt("PLAYER_LIMIT", 100000)
	if err != nil {
		return Config{}, fmt.Errorf("parse PLAYER_LIMIT: %w", err)
	}

	flushThreshold, err := getEnvAsInt("FLUSH_THRESHOLD", 500)
	if err != nil {
		return Config{}, fmt.Errorf("parse FLUSH_THRESHOLD: %w", err)
	}

	uploadWorkers, err := getEnvAsInt("UPLOAD_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse UPLOAD_WORKERS: %w", err)
	}

	windowPutRetries, err := getEnvAsInt("WINDOW_PUT_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse WINDOW_PUT_RETRIES: %w", err)
	}
	windowPutDelay, err := time.ParseDuration(getEnv("WINDOW_PUT_DELAY", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse WINDOW_PUT_DELAY: %w", err)
	}

	loaderWorkers, err := getEnvAsInt("LOADER_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse LOADER_WORKERS: %w", err)
	}

	dbDisablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	betterStackEnabled, err := strconv.ParseBool(getEnv("BETTERSTACK_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BETTERSTACK_ENABLED: %w", err)
	}
	betterStackEndpoint := strings.TrimSpace(getEnv("BETTERSTACK_ENDPOINT", ""))
	if betterStackEnabled && betterStackEndpoint == "" {
		return Config{}, fmt.Errorf("BETTERSTACK_ENDPOINT is required when BETTERSTACK_ENABLED=true")
	}
	betterStackTimeout, err := time.ParseDuration(getEnv("BETTERSTACK_TIMEOUT", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BETTERSTACK_TIMEOUT: %w", err)
	}
	if betterStackTimeout <= 0 {
		return Config{}, fmt.Errorf("BETTERSTACK_TIMEOUT must be > 0")
	}
	betterStackMinLevel := parseLogLevel(getEnv("BETTERSTACK_MIN_LEVEL", "error"))

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("SERVICE_NAME", "rift-backfill"),
		ServiceVersion:             getEnv("SERVICE_VERSION", "dev"),
		Source:                     source,
		StartEpoch:                 startEpoch,
		EndEpoch:                   endEpoch,
		APIKey:                     strings.TrimSpace(getEnv("API_KEY", "")),
		APIKeySSMParam:             strings.TrimSpace(getEnv("API_KEY_SSM_PARAM", "")),
		APIKeyExpiresAt:            apiKeyExpiresAt,
		Bucket:                     strings.TrimSpace(getEnv("BUCKET", "")),
		AWSRegion:                  getEnv("AWS_REGION", "us-east-2"),
		RiotPlatformHost:           getEnv("RIOT_PLATFORM_HOST", "na1"),
		RiotRegionHost:             getEnv("RIOT_REGION_HOST", "americas"),
		RiotTimeout:                riotTimeout,
		ThrottleDelay:              throttleDelay,
		MaxRetries:                 maxRetries,
		RateLimitRPS:               rateLimitRPS,
		RateLimitBurst:             rateLimitBurst,
		PlayerLimit:                playerLimit,
		FlushThreshold:             flushThreshold,
		UploadWorkers:              uploadWorkers,
		WindowPutRetries:           windowPutRetries,
		WindowPutDelay:             windowPutDelay,
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		DBDisablePreparedBinary:    dbDisablePreparedBinary,
		LoaderWorkers:              loaderWorkers,
		LoaderTable:                getEnv("LOADER_TABLE", "matches"),
		LoaderPrefix:               strings.TrimSpace(getEnv("LOADER_PREFIX", "")),
		StatusAddr:                 strings.TrimSpace(getEnv("STATUS_ADDR", "")),
		PprofEnabled:               pprofEnabled,
		PprofAddr:                  pprofAddr,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		UptraceLogsEnabled:         uptraceLogsEnabled,
		BetterStackEnabled:         betterStackEnabled,
		BetterStackEndpoint:        betterStackEndpoint,
		BetterStackToken:           strings.TrimSpace(getEnv("BETTERSTACK_TOKEN", "")),
		BetterStackTimeout:         betterStackTimeout,
		BetterStackMinLevel:        betterStackMinLevel,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
		LogLevel:                   parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Redacted returns a copy with secrets masked, safe for startup logging.
func (c Config) Redacted() Config {
	out := c
	out.APIKey = redactSecret(c.APIKey)
	out.UptraceDSN = redactSecret(c.UptraceDSN)
	out.BetterStackToken = redactSecret(c.BetterStackToken)
	out.PyroscopeAuthToken = redactSecret(c.PyroscopeAuthToken)
	out.PyroscopeBasicAuthPassword = redactSecret(c.PyroscopeBasicAuthPassword)
	out.DatabaseURL = redactDBURL(c.DatabaseURL)
	return out
}

func redactSecret(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}

func redactDBURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil || parsed.User == nil {
		return raw
	}
	if _, has := parsed.User.Password(); has {
		parsed.User = url.UserPassword(parsed.User.Username(), "***")
	}
	return parsed.String()
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

// firstEnv returns the first non-empty value among the given keys. The run
// parameters historically used lowercase names, so both spellings work.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}

	return ""
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func parseEpoch(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}

	out, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if out < 0 {
		return 0, fmt.Errorf("epoch must be >= 0")
	}

	return out, nil
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
