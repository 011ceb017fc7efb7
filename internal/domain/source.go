package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Confidence scores are fixed-point basis-points-of-percent: 0-10000 maps to
// 0-100.00%.
const MaxConfidence = 10000

// ClampConfidence bounds a raw heuristic score to the valid [0, 10000] range.
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// PayloadKind tags the provider-specific variant carried by a SourceData.
type PayloadKind string

const (
	PayloadPrice    PayloadKind = "price"
	PayloadScore    PayloadKind = "score"
	PayloadWeather  PayloadKind = "weather"
	PayloadNews     PayloadKind = "news"
	PayloadUnmapped PayloadKind = "unmapped"
)

// Payload is the tagged variant holding one provider's normalized data. Each
// adapter owns the decode and validation of its own variant; the rest of the
// pipeline only relies on this interface.
type Payload interface {
	Kind() PayloadKind
	// NumericValue returns the payload's primary numeric observation (price,
	// temperature, score margin) when one exists. Cross-source agreement is
	// computed over these values.
	NumericValue() (float64, bool)
}

// PricePayload is a spot price observation from a price-feed provider.
type PricePayload struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	Volume24h float64   `json:"volume_24h,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (PricePayload) Kind() PayloadKind { return PayloadPrice }

func (p PricePayload) NumericValue() (float64, bool) { return p.PriceUSD, true }

// ScorePayload is a game result from a sports scores provider.
type ScorePayload struct {
	League    string    `json:"league,omitempty"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

func (ScorePayload) Kind() PayloadKind { return PayloadScore }

// NumericValue reports the home-minus-away margin, which is comparable
// across providers covering the same game.
func (p ScorePayload) NumericValue() (float64, bool) {
	return float64(p.HomeScore - p.AwayScore), true
}

// WeatherPayload is a current-conditions reading for one location.
type WeatherPayload struct {
	City      string    `json:"city"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	TempC     float64   `json:"temp_c"`
	WindKph   float64   `json:"wind_kph,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (WeatherPayload) Kind() PayloadKind { return PayloadWeather }

func (p WeatherPayload) NumericValue() (float64, bool) { return p.TempC, true }

// Article is one news search hit.
type Article struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsPayload is a keyword-search result set from a news provider.
type NewsPayload struct {
	Keywords []string  `json:"keywords"`
	Articles []Article `json:"articles"`
}

func (NewsPayload) Kind() PayloadKind { return PayloadNews }

func (NewsPayload) NumericValue() (float64, bool) { return 0, false }

// UnmappedPayload is the low-confidence fallback an adapter returns when it
// cannot derive a provider query from the market question. It keeps the
// fan-out degrading gracefully instead of failing the source outright.
type UnmappedPayload struct {
	Question string `json:"question"`
	Note     string `json:"note"`
}

func (UnmappedPayload) Kind() PayloadKind { return PayloadUnmapped }

func (UnmappedPayload) NumericValue() (float64, bool) { return 0, false }

// SourceMetadata carries provider bookkeeping captured at fetch time.
type SourceMetadata struct {
	RateLimitRemaining int    `json:"rate_limit_remaining,omitempty"`
	APIVersion         string `json:"api_version,omitempty"`
	Cached             bool   `json:"cached,omitempty"`
}

// SourceData is one adapter's normalized observation for a market. It is
// produced once per adapter invocation and never mutated afterwards.
type SourceData struct {
	Source     string         `json:"source"`
	Category   Category       `json:"category"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Data       Payload        `json:"data"`
	Confidence int            `json:"confidence"`
	Metadata   SourceMetadata `json:"metadata,omitempty"`
}

// payloadEnvelope is the wire form of the Payload variant: a kind tag plus
// exactly one populated branch. Evidence packages round-trip through it.
type payloadEnvelope struct {
	Kind     PayloadKind      `json:"kind"`
	Price    *PricePayload    `json:"price,omitempty"`
	Score    *ScorePayload    `json:"score,omitempty"`
	Weather  *WeatherPayload  `json:"weather,omitempty"`
	News     *NewsPayload     `json:"news,omitempty"`
	Unmapped *UnmappedPayload `json:"unmapped,omitempty"`
}

// MarshalJSON encodes the tagged payload variant.
func (s SourceData) MarshalJSON() ([]byte, error) {
	type alias SourceData
	env := payloadEnvelope{}
	switch p := s.Data.(type) {
	case nil:
		// leave every branch empty
	case PricePayload:
		env.Kind, env.Price = PayloadPrice, &p
	case ScorePayload:
		env.Kind, env.Score = PayloadScore, &p
	case WeatherPayload:
		env.Kind, env.Weather = PayloadWeather, &p
	case NewsPayload:
		env.Kind, env.News = PayloadNews, &p
	case UnmappedPayload:
		env.Kind, env.Unmapped = PayloadUnmapped, &p
	default:
		return nil, fmt.Errorf("domain: unknown payload type %T", s.Data)
	}
	return json.Marshal(struct {
		alias
		Data payloadEnvelope `json:"data"`
	}{alias(s), env})
}

// UnmarshalJSON decodes the tagged payload variant.
func (s *SourceData) UnmarshalJSON(data []byte) error {
	type alias SourceData
	aux := struct {
		*alias
		Data payloadEnvelope `json:"data"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.Data.Kind {
	case PayloadPrice:
		if aux.Data.Price != nil {
			s.Data = *aux.Data.Price
		}
	case PayloadScore:
		if aux.Data.Score != nil {
			s.Data = *aux.Data.Score
		}
	case PayloadWeather:
		if aux.Data.Weather != nil {
			s.Data = *aux.Data.Weather
		}
	case PayloadNews:
		if aux.Data.News != nil {
			s.Data = *aux.Data.News
		}
	case PayloadUnmapped:
		if aux.Data.Unmapped != nil {
			s.Data = *aux.Data.Unmapped
		}
	case "":
		s.Data = nil
	default:
		return fmt.Errorf("domain: unknown payload kind %q", aux.Data.Kind)
	}
	return nil
}

// Adapter is the contract every data source provider integration satisfies.
// Implementations must be independently swappable and safe to invoke
// concurrently with other adapters (internal state is per-adapter).
type Adapter interface {
	// Name identifies the provider, e.g. "coingecko".
	Name() string
	// Categories lists the market categories this adapter can serve.
	Categories() []Category
	// Priority orders adapters covering the same category; lower is
	// preferred.
	Priority() int
	// FetchData turns the market question into a provider query, performs the
	// fetch, and normalizes the response. When no provider query can be
	// derived it returns a low-confidence UnmappedPayload rather than an
	// error.
	FetchData(ctx context.Context, q Query) (SourceData, error)
	// Validate structurally checks a payload before it reaches the analyzer.
	Validate(d SourceData) bool
	// IsAvailable reports whether the adapter is configured and reachable.
	IsAvailable(ctx context.Context) bool
}
