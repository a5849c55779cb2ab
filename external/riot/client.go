package riot

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/riskibarqy/rift-backfill/internal/platform/resilience"
	"github.com/riskibarqy/rift-backfill/internal/usecase"
	"golang.org/x/time/rate"
)

const (
	defaultPlatformBaseURL = "https://na1.api.riotgames.com"
	defaultRegionBaseURL   = "https://americas.api.riotgames.com"
	defaultThrottleDelay   = 120 * time.Second
	defaultRateLimitRPS    = 20
	defaultRateLimitBurst  = 40
	maxBackoff             = 30 * time.Second
	maxResponseBytes       = 6 << 20

	headerToken = "X-Riot-Token"

	// Queue 420 is ranked solo/duo on the match-v5 side; league-v4 uses the
	// queue name instead.
	queueRankedSoloID = "420"
	matchIDPageSize   = "100"
)

var errRiotTransient = crerr.New("riot transient failure")

var apexLeaguePathByTier = map[string]string{
	"master":      "/lol/league/v4/masterleagues/by-queue/",
	"grandmaster": "/lol/league/v4/grandmasterleagues/by-queue/",
	"challenger":  "/lol/league/v4/challengerleagues/by-queue/",
}

type ClientConfig struct {
	HTTPClient      *http.Client
	PlatformBaseURL string
	RegionBaseURL   string
	Token           string
	Timeout         time.Duration
	MaxRetries      int
	ThrottleDelay   time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	Logger          *logging.Logger
	CircuitBreaker  resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient      *http.Client
	platformBaseURL string
	regionBaseURL   string
	token           string
	maxRetries      int
	throttleDelay   time.Duration
	limiter         *rate.Limiter
	logger          *logging.Logger
	breaker         *resilience.CircuitBreaker
	circuitEnabled  bool
	flight          resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	platformBaseURL := strings.TrimRight(strings.TrimSpace(cfg.PlatformBaseURL), "/")
	if platformBaseURL == "" {
		platformBaseURL = defaultPlatformBaseURL
	}
	regionBaseURL := strings.TrimRight(strings.TrimSpace(cfg.RegionBaseURL), "/")
	if regionBaseURL == "" {
		regionBaseURL = defaultRegionBaseURL
	}

	throttleDelay := cfg.ThrottleDelay
	if throttleDelay <= 0 {
		throttleDelay = defaultThrottleDelay
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:      httpClient,
		platformBaseURL: platformBaseURL,
		regionBaseURL:   regionBaseURL,
		token:           strings.TrimSpace(cfg.Token),
		maxRetries:      maxInt(cfg.MaxRetries, 0),
		throttleDelay:   throttleDelay,
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		logger:          logger,
		breaker:         resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled:  breakerCfg.Enabled,
	}
}

// FetchApexLeague returns every entry of one apex ladder (master, grandmaster
// or challenger). The apex endpoints carry no per-entry division, so the
// returned entries have an empty Division.
func (c *Client) FetchApexLeague(ctx context.Context, tier string) ([]usecase.ExternalLeagueEntry, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	basePath, ok := apexLeaguePathByTier[tier]
	if !ok {
		return nil, fmt.Errorf("unknown apex tier %q", tier)
	}

	var envelope leagueListResponse
	if err := c.doJSON(ctx, c.platformBaseURL, basePath+roster.QueueRankedSolo, nil, &envelope); err != nil {
		return nil, fmt.Errorf("fetch %s league: %w", tier, err)
	}

	tierName := strings.ToUpper(strings.TrimSpace(envelope.Tier))
	if tierName == "" {
		tierName = strings.ToUpper(tier)
	}

	out := make([]usecase.ExternalLeagueEntry, 0, len(envelope.Entries))
	for _, item := range envelope.Entries {
		if strings.TrimSpace(item.PUUID) == "" {
			continue
		}
		out = append(out, usecase.ExternalLeagueEntry{
			PUUID:        item.PUUID,
			Tier:         tierName,
			LeaguePoints: item.LeaguePoints,
		})
	}
	return out, nil
}

// FetchLeagueEntries returns one page of a sub-apex ladder. An empty page
// signals the end of the ladder to the caller.
func (c *Client) FetchLeagueEntries(ctx context.Context, tier, division string, page int) ([]usecase.ExternalLeagueEntry, error) {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	division = strings.ToUpper(strings.TrimSpace(division))
	if tier == "" || division == "" {
		return nil, fmt.Errorf("tier and division are required")
	}
	if page <= 0 {
		page = 1
	}

	path := fmt.Sprintf("/lol/league/v4/entries/%s/%s/%s", roster.QueueRankedSolo, tier, division)
	query := map[string]string{"page": strconv.Itoa(page)}

	var items []leagueEntryItem
	if err := c.doJSON(ctx, c.platformBaseURL, path, query, &items); err != nil {
		return nil, fmt.Errorf("fetch entries tier=%s division=%s page=%d: %w", tier, division, page, err)
	}

	out := make([]usecase.ExternalLeagueEntry, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.PUUID) == "" {
			continue
		}
		entryTier := strings.ToUpper(strings.TrimSpace(item.Tier))
		if entryTier == "" {
			entryTier = tier
		}
		entryDivision := strings.TrimSpace(item.Rank)
		if entryDivision == "" {
			entryDivision = division
		}
		out = append(out, usecase.ExternalLeagueEntry{
			PUUID:        item.PUUID,
			Tier:         entryTier,
			Division:     entryDivision,
			LeaguePoints: item.LeaguePoints,
		})
	}
	return out, nil
}

// FetchMatchIDs returns the ranked solo match ids for one player inside the
// epoch window, newest first as served by the API.
func (c *Client) FetchMatchIDs(ctx context.Context, puuid string, startEpoch, endEpoch int64) ([]string, error) {
	puuid = strings.TrimSpace(puuid)
	if puuid == "" {
		return nil, fmt.Errorf("puuid is required")
	}

	path := "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids"
	query := map[string]string{
		"startTime": strconv.FormatInt(startEpoch, 10),
		"endTime":   strconv.FormatInt(endEpoch, 10),
		"queue":     queueRankedSoloID,
		"type":      "ranked",
		"start":     "0",
		"count":     matchIDPageSize,
	}

	var ids []string
	if err := c.doJSON(ctx, c.regionBaseURL, path, query, &ids); err != nil {
		return nil, fmt.Errorf("fetch match ids puuid=%s: %w", abbreviateID(puuid), err)
	}
	return ids, nil
}

// FetchMatch returns the raw match document. Callers must not assume any
// shape beyond "decoded JSON object": the document is enriched and stored
// as-is.
func (c *Client) FetchMatch(ctx context.Context, matchID string) (map[string]any, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, fmt.Errorf("match id is required")
	}

	var doc map[string]any
	if err := c.doJSON(ctx, c.regionBaseURL, "/lol/match/v5/matches/"+url.PathEscape(matchID), nil, &doc); err != nil {
		return nil, fmt.Errorf("fetch match %s: %w", matchID, err)
	}
	return doc, nil
}

func (c *Client) doJSON(ctx context.Context, baseURL, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "riot circuit breaker rejected request", "state", c.breaker.State())
			return fmt.Errorf("%w: match data provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	c.logger.DebugContext(ctx, "riot request", "curl_preview", buildRiotCurlPreview(fullURL))

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isRiotCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode riot payload: %w", err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set(headerToken, c.token)
		}

		delay := backoffDelay(attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errRiotTransient, sanitizeSensitiveText(err.Error(), c.token))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errRiotTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else {
				code, message := parseStatusEnvelope(raw, resp.StatusCode)
				if code >= http.StatusTooManyRequests {
					lastErr = fmt.Errorf("%w: status=%d message=%s", errRiotTransient, code, message)
					delay = c.retryDelay(resp, code, attempt)
				} else {
					lastErr = fmt.Errorf("%w: status=%d message=%s", usecase.ErrNoData, code, message)
					c.logger.WarnContext(ctx, "riot rejected request",
						"status", code,
						"message", message,
						"url", redactAPIURL(fullURL),
					)
					return nil, lastErr
				}
			}
		}

		if attempt == c.maxRetries {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: request failed", errRiotTransient)
	}
	c.logger.WarnContext(ctx, "riot request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

// retryDelay picks how long to sleep before retrying a throttled or failing
// upstream: the server's Retry-After hint wins, a bare 429 gets the
// conservative fixed delay, server errors back off exponentially.
func (c *Client) retryDelay(resp *http.Response, code, attempt int) time.Duration {
	if hint := parseRetryAfter(resp.Header.Get("Retry-After")); hint > 0 {
		return hint
	}
	if code == http.StatusTooManyRequests {
		return c.throttleDelay
	}
	return backoffDelay(attempt)
}

// IsTransient reports whether err is a retriable upstream failure whose
// retries were already exhausted inside the client.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errRiotTransient)
}

// IsPermanent reports whether err is the upstream's definitive "no data for
// this entity" answer. Callers skip the entity instead of retrying.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, usecase.ErrNoData)
}

func isRiotCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errRiotTransient)
}

func maxInt(left, right int) int {
	if left > right {
		return left
	}
	return right
}
