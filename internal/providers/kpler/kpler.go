// Package kpler is the client for the trade provenance service: bearer-token
// authenticated JSON endpoints for trades, daily flow aggregates and the
// reference catalogues. All calls are idempotent reads.
package kpler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "https://api.kpler.com/v1/"
	defaultTradesPath      = "trades"
	defaultFlowsPath       = "flows"
	defaultProductsPath    = "products"
	defaultZonesPath       = "zones"
	defaultInstallsPath    = "installations"
	defaultVesselsPath     = "vessels"
	defaultPageSize        = 1000
	defaultMaxRetries      = 4
	defaultTimeoutSeconds  = 60
	defaultRateLimitPerSec = 2
	defaultRateLimitBurst  = 2
	defaultUserAgent       = "fueltracker/0.1"

	// tokenLeeway is how long before expiry a refresh is attempted.
	tokenLeeway = 60 * time.Second
)

var (
	ErrNoRecords      = errors.New("kpler: no records found")
	ErrWindowTooLarge = errors.New("kpler: result window too large")
	ErrAuthExpired    = errors.New("kpler: authentication expired")
)

type Config struct {
	BaseURL         string
	TradesPath      string
	FlowsPath       string
	ProductsPath    string
	ZonesPath       string
	InstallsPath    string
	VesselsPath     string
	PageSize        int
	MaxRetries      int
	Timeout         time.Duration
	RateLimitPerSec int
	RateLimitBurst  int
	UserAgent       string
	Email           string
	Password        string
	OTPSeed         string
}

type Client struct {
	config  Config
	client  *http.Client
	limiter *rateLimiter
	tokens  *tokenSource
}

func New(auth Authenticator) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, auth)
}

func NewWithConfig(cfg Config, auth Authenticator) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.TradesPath) == "" {
		cfg.TradesPath = defaultTradesPath
	}
	if strings.TrimSpace(cfg.FlowsPath) == "" {
		cfg.FlowsPath = defaultFlowsPath
	}
	if strings.TrimSpace(cfg.ProductsPath) == "" {
		cfg.ProductsPath = defaultProductsPath
	}
	if strings.TrimSpace(cfg.ZonesPath) == "" {
		cfg.ZonesPath = defaultZonesPath
	}
	if strings.TrimSpace(cfg.InstallsPath) == "" {
		cfg.InstallsPath = defaultInstallsPath
	}
	if strings.TrimSpace(cfg.VesselsPath) == "" {
		cfg.VesselsPath = defaultVesselsPath
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if auth == nil {
		return nil, errors.New("kpler: authenticator is required")
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		tokens:  newTokenSource(auth),
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      getenv("KPLER_BASE_URL", defaultBaseURL),
		TradesPath:   getenv("KPLER_TRADES_PATH", defaultTradesPath),
		FlowsPath:    getenv("KPLER_FLOWS_PATH", defaultFlowsPath),
		ProductsPath: getenv("KPLER_PRODUCTS_PATH", defaultProductsPath),
		ZonesPath:    getenv("KPLER_ZONES_PATH", defaultZonesPath),
		InstallsPath: getenv("KPLER_INSTALLATIONS_PATH", defaultInstallsPath),
		VesselsPath:  getenv("KPLER_VESSELS_PATH", defaultVesselsPath),
		UserAgent:    getenv("KPLER_USER_AGENT", defaultUserAgent),
		Email:        strings.TrimSpace(os.Getenv("KPLER_EMAIL")),
		Password:     strings.TrimSpace(os.Getenv("KPLER_PASSWORD")),
		OTPSeed:      strings.TrimSpace(os.Getenv("KPLER_OTP_SEED")),
	}
	cfg.PageSize = getenvInt("KPLER_PAGE_SIZE", defaultPageSize)
	cfg.MaxRetries = getenvInt("KPLER_MAX_RETRIES", defaultMaxRetries)
	cfg.Timeout = time.Duration(getenvInt("KPLER_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	cfg.RateLimitPerSec = getenvInt("KPLER_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec)
	cfg.RateLimitBurst = getenvInt("KPLER_RATE_LIMIT_BURST", defaultRateLimitBurst)
	return cfg, nil
}

// doJSON performs one authenticated GET with the full retry ladder: bounded
// exponential backoff on 5xx and connection errors, Retry-After on 429, a
// one-shot re-login on 401, and the explicit window-overflow marker mapped to
// ErrWindowTooLarge.
func (c *Client) doJSON(ctx context.Context, path string, params url.Values, dest any) error {
	endpoint := c.config.BaseURL + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	reloggedIn := false
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, backoffDelay(attempt)); err != nil {
				return err
			}
		}

		body, status, retryAfter, err := c.doOnce(ctx, endpoint)
		if err == nil {
			return json.Unmarshal(body, dest)
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrWindowTooLarge), errors.Is(err, ErrNoRecords):
			return err
		case status == http.StatusUnauthorized:
			if reloggedIn {
				return fmt.Errorf("%w: re-login did not take", ErrAuthExpired)
			}
			reloggedIn = true
			if loginErr := c.tokens.ForceLogin(ctx); loginErr != nil {
				return fmt.Errorf("%w: %v", ErrAuthExpired, loginErr)
			}
		case status == http.StatusTooManyRequests:
			if retryAfter > 0 {
				if err := sleepWithContext(ctx, retryAfter); err != nil {
					return err
				}
			}
		case status >= 400 && status < 500:
			return err
		}
		// 5xx and connection errors fall through to the next attempt.
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, endpoint string) ([]byte, int, time.Duration, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, 0, err
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if isWindowOverflow(body) {
			return nil, resp.StatusCode, 0, fmt.Errorf("%w: %s", ErrWindowTooLarge, strings.TrimSpace(string(body)))
		}
		retryAfter := parseRetryAfter(resp)
		return nil, resp.StatusCode, retryAfter, fmt.Errorf("kpler: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, 0, nil
}

func isWindowOverflow(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if message, ok := payload["message"].(string); ok {
			return strings.Contains(strings.ToLower(message), "result window")
		}
	}
	return strings.Contains(strings.ToLower(string(body)), "result window")
}

func parseRetryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Second << (attempt - 1)
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

type rateLimiter struct {
	tokens chan struct{}
}

func newRateLimiter(ratePerSec, burst int) *rateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := &rateLimiter{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		limiter.tokens <- struct{}{}
	}
	interval := time.Second / time.Duration(ratePerSec)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case limiter.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return limiter
}

func (l *rateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
