package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/fetch"
)

// coinTable maps question keywords to CoinGecko coin ids. Scanning is
// word-boundary based, so "bitcoin" matches but "bitcoincash" does not match
// the "bitcoin" entry by substring accident.
var coinTable = []struct {
	keywords []string
	coinID   string
	symbol   string
}{
	{[]string{"bitcoin", "btc"}, "bitcoin", "BTC"},
	{[]string{"ethereum", "ether", "eth"}, "ethereum", "ETH"},
	{[]string{"solana", "sol"}, "solana", "SOL"},
	{[]string{"dogecoin", "doge"}, "dogecoin", "DOGE"},
	{[]string{"ripple", "xrp"}, "ripple", "XRP"},
	{[]string{"cardano", "ada"}, "cardano", "ADA"},
	{[]string{"chainlink", "link"}, "chainlink", "LINK"},
	{[]string{"polygon", "matic"}, "matic-network", "MATIC"},
	{[]string{"litecoin", "ltc"}, "litecoin", "LTC"},
	{[]string{"avalanche", "avax"}, "avalanche-2", "AVAX"},
}

// CoinForQuestion maps a free-text market question to a trading pair. It is
// a pure function; exhaustive tests live next to it.
func CoinForQuestion(question string) (coinID, symbol string, ok bool) {
	words := tokenize(question)
	for _, entry := range coinTable {
		for _, kw := range entry.keywords {
			if words[kw] {
				return entry.coinID, entry.symbol, true
			}
		}
	}
	return "", "", false
}

// tokenize lowercases and splits a question into a word set.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// PriceConfig configures the price feed adapter.
type PriceConfig struct {
	BaseURL  string
	APIKey   string
	Priority int
}

// PriceAdapter resolves crypto and finance price questions against a
// CoinGecko-compatible API.
type PriceAdapter struct {
	cfg    PriceConfig
	client *fetch.Client
	logger *slog.Logger
}

// priceTrustBase is the provider trust baseline for the price feed. The
// heuristic adjustments below are relative to it.
const priceTrustBase = 9500

// NewPriceAdapter creates the price feed adapter.
func NewPriceAdapter(cfg PriceConfig, client *fetch.Client, logger *slog.Logger) *PriceAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	return &PriceAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "adapter"), slog.String("adapter", "coingecko")),
	}
}

func (a *PriceAdapter) Name() string { return "coingecko" }

func (a *PriceAdapter) Categories() []domain.Category {
	return []domain.Category{domain.CategoryCrypto, domain.CategoryFinance}
}

func (a *PriceAdapter) Priority() int { return a.cfg.Priority }

// FetchData maps the question to a coin id and fetches its spot price. When
// no coin is recognized it returns a low-confidence unmapped payload so the
// fan-out keeps whatever coverage the other adapters provide.
func (a *PriceAdapter) FetchData(ctx context.Context, q domain.Query) (domain.SourceData, error) {
	coinID, symbol, ok := CoinForQuestion(q.Question)
	if !ok {
		a.logger.DebugContext(ctx, "no coin mapping for question", slog.String("market_id", q.MarketID))
		return a.unmapped(q, "no trading pair recognized in question"), nil
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_vol", "true")
	params.Set("include_last_updated_at", "true")

	headers := map[string]string{}
	if a.cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = a.cfg.APIKey
	}

	body, err := a.client.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      a.cfg.BaseURL + "/simple/price?" + params.Encode(),
		Headers:  headers,
		CacheKey: coinID + ":spot",
	})
	if err != nil {
		return domain.SourceData{}, fmt.Errorf("price adapter: %w", err)
	}

	var resp map[string]struct {
		USD           float64 `json:"usd"`
		USD24hVol     float64 `json:"usd_24h_vol"`
		LastUpdatedAt int64   `json:"last_updated_at"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SourceData{}, fmt.Errorf("price adapter: decode: %w", domain.ErrInvalidResponse)
	}
	quote, ok := resp[coinID]
	if !ok {
		return domain.SourceData{}, fmt.Errorf("price adapter: coin %s missing from response: %w", coinID, domain.ErrInvalidResponse)
	}

	quotedAt := time.Unix(quote.LastUpdatedAt, 0).UTC()
	payload := domain.PricePayload{
		Symbol:    symbol,
		PriceUSD:  quote.USD,
		Volume24h: quote.USD24hVol,
		Timestamp: quotedAt,
	}

	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       payload,
		Confidence: priceConfidence(payload, time.Now().UTC()),
		Metadata:   domain.SourceMetadata{APIVersion: "v3"},
	}, nil
}

// priceConfidence scores a quote: provider trust baseline, aged down for
// stale quotes, nudged by volume presence.
func priceConfidence(p domain.PricePayload, now time.Time) int {
	score := priceTrustBase

	age := now.Sub(p.Timestamp)
	switch {
	case age > time.Hour:
		score -= 1500
	case age > 5*time.Minute:
		score -= 500
	}

	if p.Volume24h > 0 {
		score += 200
	} else {
		score -= 300
	}

	return domain.ClampConfidence(score)
}

// Validate rejects malformed price payloads before they reach the analyzer.
func (a *PriceAdapter) Validate(d domain.SourceData) bool {
	switch p := d.Data.(type) {
	case domain.PricePayload:
		return p.Symbol != "" && p.PriceUSD > 0 && !p.Timestamp.IsZero()
	case domain.UnmappedPayload:
		return p.Note != ""
	default:
		return false
	}
}

// IsAvailable pings the provider.
func (a *PriceAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Do(ctx, fetch.Request{Method: http.MethodGet, URL: a.cfg.BaseURL + "/ping"})
	return err == nil
}

func (a *PriceAdapter) unmapped(q domain.Query, note string) domain.SourceData {
	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       domain.UnmappedPayload{Question: q.Question, Note: note},
		Confidence: 500,
	}
}

// Compile-time interface check.
var _ domain.Adapter = (*PriceAdapter)(nil)
