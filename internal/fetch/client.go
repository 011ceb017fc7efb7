// Package fetch provides the resilient HTTP client shared by every data
// source adapter: bounded retries with exponential backoff, per-provider
// rate-limit self-throttling, and a TTL response cache consulted before any
// network call.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// RetryConfig bounds the retry schedule for one provider.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultRetry is the schedule used when a provider does not override it:
// 3 attempts, 1s initial delay, doubling, capped at 10s.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Second,
	}
}

// Config holds per-provider settings for a Client.
type Config struct {
	// Provider names the upstream API; every terminal error carries it.
	Provider string
	Timeout  time.Duration
	Retry    RetryConfig
	// RequestsPerMinute and RequestsPerHour self-throttle outgoing calls.
	// Zero disables the corresponding limiter.
	RequestsPerMinute int
	RequestsPerHour   int
	CacheEnabled      bool
	CacheTTL          time.Duration
}

// Request describes one provider call. CacheKey, when non-empty and caching
// is enabled, makes the response cacheable.
type Request struct {
	Method   string
	URL      string
	Body     []byte
	Headers  map[string]string
	CacheKey string
}

// Client is a resilient HTTP client bound to one provider.
type Client struct {
	cfg     Config
	http    *http.Client
	perMin  *rate.Limiter
	perHour *rate.Limiter
	cache   domain.ResponseCache
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for the given provider configuration. The cache
// may be nil, which disables response caching regardless of cfg.CacheEnabled.
func NewClient(cfg Config, cache domain.ResponseCache, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetry()
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = 2
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger.With(slog.String("component", "fetch"), slog.String("provider", cfg.Provider)),
		sleep:  sleepCtx,
	}
	if cfg.RequestsPerMinute > 0 {
		// rate.Every spaces requests by 60s/rpm, which is exactly the
		// "sleep the remainder since the last request" throttle.
		c.perMin = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	if cfg.RequestsPerHour > 0 {
		c.perHour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RequestsPerHour)), 1)
	}
	return c
}

// Provider returns the provider name this client is bound to.
func (c *Client) Provider() string { return c.cfg.Provider }

// ClearCache drops every cached response. Used for test isolation.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// Do performs the request with cache lookup, self-throttling, and bounded
// retries. The returned bytes are the response body of a 2xx reply.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	cacheable := c.cfg.CacheEnabled && c.cache != nil && req.CacheKey != "" && req.Method == http.MethodGet

	if cacheable {
		body, ok, err := c.cache.Get(ctx, c.cacheKey(req.CacheKey))
		if err != nil {
			c.logger.WarnContext(ctx, "cache lookup failed", slog.String("error", err.Error()))
		} else if ok {
			return body, nil
		}
	}

	body, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := c.cache.Set(ctx, c.cacheKey(req.CacheKey), body, c.cfg.CacheTTL); err != nil {
			c.logger.WarnContext(ctx, "cache store failed", slog.String("error", err.Error()))
		}
	}
	return body, nil
}

func (c *Client) cacheKey(key string) string {
	return c.cfg.Provider + ":" + key
}

// doWithRetry walks the backoff schedule. 429 honours Retry-After when
// present; 5xx, timeouts, and transport errors retry on the schedule; any
// other status fails immediately.
func (c *Client) doWithRetry(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	delay := c.cfg.Retry.InitialDelay

	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, c.terminal(req, err)
			}
			delay = time.Duration(float64(delay) * c.cfg.Retry.BackoffMultiplier)
			if delay > c.cfg.Retry.MaxDelay {
				delay = c.cfg.Retry.MaxDelay
			}
		}

		if err := c.throttle(ctx); err != nil {
			return nil, c.terminal(req, err)
		}

		body, retryIn, err := c.doOnce(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryableKind(err) {
			return nil, c.terminal(req, err)
		}
		if retryIn > 0 {
			// Retry-After overrides the backoff schedule for this round.
			delay = retryIn
		}

		c.logger.DebugContext(ctx, "request failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("next_delay", delay),
			slog.String("error", err.Error()),
		)
	}

	return nil, c.terminal(req, lastErr)
}

// throttle waits on both limiters so the client never exceeds the provider's
// per-minute or per-hour quota.
func (c *Client) throttle(ctx context.Context) error {
	if c.perMin != nil {
		if err := c.perMin.Wait(ctx); err != nil {
			return err
		}
	}
	if c.perHour != nil {
		if err := c.perHour.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// doOnce performs a single HTTP round trip and classifies the failure. The
// returned duration is a server-requested retry delay (Retry-After), when
// given.
func (c *Client) doOnce(ctx context.Context, req Request) ([]byte, time.Duration, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", domain.ErrNetwork)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrInvalidResponse)
	default:
		return nil, 0, fmt.Errorf("HTTP %d: %s: %w", resp.StatusCode, truncate(respBody, 256), domain.ErrInvalidResponse)
	}
}

// terminal wraps the final failure with the provider name and the call shape
// so the adapter error carries enough context to reconstruct the request.
func (c *Client) terminal(req Request, err error) error {
	return fmt.Errorf("fetch %s: %s %s: %w", c.cfg.Provider, req.Method, req.URL, err)
}

// retryableKind reports whether the error kind participates in the backoff
// schedule. 4xx responses other than 429 do not.
func retryableKind(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrSourceTimeout) || errors.Is(err, domain.ErrNetwork) {
		return true
	}
	// 5xx carries ErrInvalidResponse and is retryable; other statuses carry a
	// body excerpt and are not. Distinguish by the HTTP prefix.
	if errors.Is(err, domain.ErrInvalidResponse) {
		var code int
		if _, scanErr := fmt.Sscanf(err.Error(), "HTTP %d", &code); scanErr == nil {
			return code >= 500
		}
	}
	return false
}

func classifyTransportErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%v: %w", err, domain.ErrSourceTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, domain.ErrSourceTimeout)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrNetwork)
}

// parseRetryAfter handles the delay-seconds form of the header. The HTTP-date
// form is rare on the APIs we call and falls back to the backoff schedule.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
