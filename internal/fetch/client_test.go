package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veritaslabs/oraclebot/internal/cache/memory"
	"github.com/veritaslabs/oraclebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// noSleep replaces the backoff sleep and records requested delays.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func newTestClient(t *testing.T, cfg Config, cache domain.ResponseCache) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(cfg, cache, testLogger())
	var delays []time.Duration
	c.sleep = noSleep(&delays)
	return c, &delays
}

func TestDoRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, Config{Provider: "test"}, nil)

	body, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
	// The Retry-After header must override the backoff schedule.
	if len(*delays) != 1 || (*delays)[0] != 7*time.Second {
		t.Errorf("expected one 7s delay from Retry-After, got %v", *delays)
	}
}

func TestDoExhaustsRetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{Provider: "test"}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDoExhaustsRetriesOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{Provider: "test"}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{Provider: "test"}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("404 must not retry, got %d attempts", got)
	}
}

func TestDoBackoffScheduleGrowsAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, delays := newTestClient(t, Config{
		Provider: "test",
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialDelay:      time.Second,
			BackoffMultiplier: 4,
			MaxDelay:          5 * time.Second,
		},
	}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err == nil {
		t.Fatal("expected failure")
	}
	want := []time.Duration{time.Second, 4 * time.Second, 5 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay %d: want %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestDoServesFromCacheWithinTTL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"price":42}`))
	}))
	defer srv.Close()

	cache := memory.NewResponseCache()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	c, _ := newTestClient(t, Config{
		Provider:     "test",
		CacheEnabled: true,
		CacheTTL:     60 * time.Second,
	}, cache)

	req := Request{Method: http.MethodGet, URL: srv.URL, CacheKey: "btc:price"}

	for i := 0; i < 2; i++ {
		if _, err := c.Do(context.Background(), req); err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("second call must hit the cache, got %d requests", got)
	}

	// Just before expiry: still cached.
	now = now.Add(60*time.Second - time.Millisecond)
	if _, err := c.Do(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("t+TTL-eps must still be cached, got %d requests", got)
	}

	// Just after expiry: refetch.
	now = now.Add(2 * time.Millisecond)
	if _, err := c.Do(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("t+TTL+eps must refetch, got %d requests", got)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{
		Provider:     "test",
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	}, memory.NewResponseCache())

	req := Request{Method: http.MethodGet, URL: srv.URL, CacheKey: "k"}
	ctx := context.Background()

	if _, err := c.Do(ctx, req); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected refetch after ClearCache, got %d requests", got)
	}
}

func TestTerminalErrorCarriesProviderAndCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{Provider: "sportsfeed"}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/scores"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, part := range []string{"sportsfeed", "GET", "/scores"} {
		if !strings.Contains(msg, part) {
			t.Errorf("terminal error %q missing %q", msg, part)
		}
	}
}
