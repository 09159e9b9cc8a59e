// Package automation fetches upkeep state from the Chainlink Automation API.
package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"vault-monitor/internal/keeper"
)

const (
	// DefaultBaseURL is the public Automation API root.
	DefaultBaseURL = "https://automation.chain.link/api/v1"

	defaultStatus      = "unknown"
	defaultGasLimit    = "500000"
	defaultTriggerType = "time-based"
)

// ErrMissingAPIKey is returned for every fetch when no API key is configured.
var ErrMissingAPIKey = errors.New("automation api key not configured")

// Fetcher retrieves the raw upkeep state for one keeper.
type Fetcher interface {
	FetchUpkeep(ctx context.Context, upkeepID string) (keeper.Upkeep, error)
}

// Options parameterise the automation client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string
}

// Client talks to the Automation API.
type Client struct {
	opts    Options
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient constructs a client. A non-positive rate disables client-side limiting.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With().Str("component", "automation_client").Logger(),
	}
}

// FetchUpkeep GETs /upkeeps/{id}. A missing key or non-2xx response is an error; absent fields take defaults.
func (c *Client) FetchUpkeep(ctx context.Context, upkeepID string) (keeper.Upkeep, error) {
	if strings.TrimSpace(c.opts.APIKey) == "" {
		return keeper.Upkeep{}, ErrMissingAPIKey
	}
	if upkeepID == "" {
		return keeper.Upkeep{}, errors.New("upkeep id is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return keeper.Upkeep{}, fmt.Errorf("wait for rate limiter: %w", err)
	}

	endpoint := c.baseURL + "/upkeeps/" + url.PathEscape(upkeepID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return keeper.Upkeep{}, fmt.Errorf("create upkeep request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "vaultwatch/1.0")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return keeper.Upkeep{}, fmt.Errorf("request upkeep %s: %w", upkeepID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return keeper.Upkeep{}, fmt.Errorf("read upkeep response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return keeper.Upkeep{}, parseHTTPError(resp.StatusCode, payload)
	}
	if !gjson.ValidBytes(payload) {
		return keeper.Upkeep{}, fmt.Errorf("upkeep %s: invalid json response", upkeepID)
	}

	c.logger.Debug().Str("upkeep", upkeepID).Dur("elapsed", time.Since(start)).Msg("upkeep fetched")
	return ParseUpkeep(payload), nil
}

// ParseUpkeep maps an API document onto keeper.Upkeep, filling the documented defaults.
func ParseUpkeep(payload []byte) keeper.Upkeep {
	doc := gjson.ParseBytes(payload)

	return keeper.Upkeep{
		Status:         stringOr(doc.Get("status"), defaultStatus),
		LastRun:        parseTime(doc.Get("lastRun")),
		NextRun:        parseTime(doc.Get("nextRun")),
		Balance:        stringOr(doc.Get("balance"), "0"),
		TotalSpent:     stringOr(doc.Get("totalSpent"), "0"),
		GasLimit:       stringOr(doc.Get("gasLimit"), defaultGasLimit),
		GasPrice:       stringOr(doc.Get("gasPrice"), "0"),
		TriggerType:    stringOr(doc.Get("triggerType"), defaultTriggerType),
		ExecutionCount: doc.Get("executionCount").Int(),
		SuccessCount:   doc.Get("successCount").Int(),
		FailureCount:   doc.Get("failureCount").Int(),
		Raw:            append([]byte(nil), payload...),
	}
}

// stringOr accepts string or numeric JSON values; empty/zero-like values fall back.
func stringOr(v gjson.Result, fallback string) string {
	switch v.Type {
	case gjson.String:
		if s := strings.TrimSpace(v.Str); s != "" {
			return s
		}
	case gjson.Number:
		if v.Raw != "0" {
			return v.Raw
		}
	}
	return fallback
}

// parseTime accepts RFC 3339 strings and unix seconds or milliseconds.
func parseTime(v gjson.Result) *time.Time {
	var t time.Time
	switch v.Type {
	case gjson.String:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v.Str))
		if err != nil {
			return nil
		}
		t = parsed
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return nil
		}
		if n > 1e12 {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

func parseHTTPError(status int, payload []byte) error {
	if gjson.ValidBytes(payload) {
		doc := gjson.ParseBytes(payload)
		for _, path := range []string{"error.message", "message", "error", "description"} {
			if msg := doc.Get(path); msg.Type == gjson.String && msg.Str != "" {
				return fmt.Errorf("automation api error (%d): %s", status, msg.Str)
			}
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		return fmt.Errorf("automation api error (%d): %s", status, body)
	}
	return fmt.Errorf("automation api error (%d)", status)
}

var _ Fetcher = (*Client)(nil)
