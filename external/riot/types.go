package riot

import (
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
)

var apiKeyParamRegex = regexp.MustCompile(`api_key=[^&\s"']+`)

type leagueListResponse struct {
	Tier    string            `json:"tier"`
	Queue   string            `json:"queue"`
	Entries []leagueEntryItem `json:"entries"`
}

type leagueEntryItem struct {
	PUUID        string `json:"puuid"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// statusEnvelope is the error body the API returns instead of data:
// {"status":{"status_code":404,"message":"..."}}.
type statusEnvelope struct {
	Status *statusBody `json:"status"`
}

type statusBody struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// parseStatusEnvelope extracts the upstream status code and message from an
// error body, falling back to the HTTP status when the body is not the
// envelope shape.
func parseStatusEnvelope(raw []byte, httpStatus int) (int, string) {
	var envelope statusEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err == nil && envelope.Status != nil {
		code := envelope.Status.StatusCode
		if code == 0 {
			code = httpStatus
		}
		return code, strings.TrimSpace(envelope.Status.Message)
	}
	return httpStatus, abbreviateBody(raw)
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// backoffDelay grows exponentially per attempt, capped, with up to 500ms of
// jitter so simultaneous workers do not retry in lockstep.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Second
	for i := 0; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
}

func buildRiotCurlPreview(fullURL string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	appendPart := func(part string) {
		if buf.Len() > 0 {
			_ = buf.WriteByte(' ')
		}
		_, _ = buf.WriteString(part)
	}

	appendPart("curl")
	appendPart(shellQuote(redactAPIURL(fullURL)))
	appendPart("-H")
	appendPart(shellQuote(headerToken + ": ***"))
	return buf.String()
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "'\"'\"'") + "'"
}

func sanitizeSensitiveText(value, token string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if token != "" {
		value = strings.ReplaceAll(value, token, "REDACTED")
	}
	value = apiKeyParamRegex.ReplaceAllString(value, "api_key=REDACTED")
	return value
}

// redactAPIURL strips a credential that leaked into the query string. The
// client itself only ever sends the key as a header.
func redactAPIURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if query.Has("api_key") {
		query.Set("api_key", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

// abbreviateID shortens a puuid for logs; full ids are 78 characters and add
// noise without aiding debugging.
func abbreviateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
