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
	"unicode"

	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/fetch"
)

// CityForQuestion extracts a location from a weather question by taking the
// capitalized token run after the last " in ". Pure function.
func CityForQuestion(question string) (string, bool) {
	idx := strings.LastIndex(strings.ToLower(question), " in ")
	if idx < 0 {
		return "", false
	}
	rest := question[idx+len(" in "):]

	var city []string
	for _, word := range strings.Fields(rest) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if trimmed == "" || !unicode.IsUpper([]rune(trimmed)[0]) {
			break
		}
		city = append(city, trimmed)
	}
	if len(city) == 0 {
		return "", false
	}
	return strings.Join(city, " "), true
}

// weatherConditions maps WMO weather codes to a short description.
var weatherConditions = map[int]string{
	0:  "clear",
	1:  "mostly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	51: "drizzle",
	61: "rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "snow",
	75: "heavy snow",
	80: "rain showers",
	95: "thunderstorm",
	96: "thunderstorm with hail",
}

// WeatherConfig configures the weather adapter.
type WeatherConfig struct {
	// GeocodeURL and ForecastURL default to the public Open-Meteo hosts.
	GeocodeURL  string
	ForecastURL string
	Priority    int
}

// WeatherAdapter resolves weather questions via geocoding plus a
// current-conditions lookup against an Open-Meteo-compatible API.
type WeatherAdapter struct {
	cfg    WeatherConfig
	client *fetch.Client
	logger *slog.Logger
}

const weatherTrustBase = 8500

// NewWeatherAdapter creates the weather adapter.
func NewWeatherAdapter(cfg WeatherConfig, client *fetch.Client, logger *slog.Logger) *WeatherAdapter {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = "https://geocoding-api.open-meteo.com/v1"
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = "https://api.open-meteo.com/v1"
	}
	return &WeatherAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "adapter"), slog.String("adapter", "openmeteo")),
	}
}

func (a *WeatherAdapter) Name() string { return "openmeteo" }

func (a *WeatherAdapter) Categories() []domain.Category {
	return []domain.Category{domain.CategoryWeather}
}

func (a *WeatherAdapter) Priority() int { return a.cfg.Priority }

// FetchData geocodes the city then reads current conditions. Both calls go
// through the resilient client and share its retry budget per call.
func (a *WeatherAdapter) FetchData(ctx context.Context, q domain.Query) (domain.SourceData, error) {
	city, ok := CityForQuestion(q.Question)
	if !ok {
		a.logger.DebugContext(ctx, "no city in question", slog.String("market_id", q.MarketID))
		return a.unmapped(q, "no location recognized in question"), nil
	}

	lat, lon, resolved, err := a.geocode(ctx, city)
	if err != nil {
		return domain.SourceData{}, fmt.Errorf("weather adapter: %w", err)
	}
	if resolved == "" {
		return a.unmapped(q, fmt.Sprintf("location %q could not be geocoded", city)), nil
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("current", "temperature_2m,wind_speed_10m,weather_code")

	body, err := a.client.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      a.cfg.ForecastURL + "/forecast?" + params.Encode(),
		CacheKey: resolved + ":current",
	})
	if err != nil {
		return domain.SourceData{}, fmt.Errorf("weather adapter: %w", err)
	}

	var resp struct {
		Current struct {
			Time        string  `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SourceData{}, fmt.Errorf("weather adapter: decode: %w", domain.ErrInvalidResponse)
	}

	observedAt, _ := time.Parse("2006-01-02T15:04", resp.Current.Time)
	payload := domain.WeatherPayload{
		City:      resolved,
		Latitude:  lat,
		Longitude: lon,
		TempC:     resp.Current.Temperature,
		WindKph:   resp.Current.WindSpeed,
		Condition: weatherConditions[resp.Current.WeatherCode],
		Timestamp: observedAt,
	}

	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       payload,
		Confidence: weatherConfidence(payload, time.Now().UTC()),
		Metadata:   domain.SourceMetadata{APIVersion: "v1"},
	}, nil
}

func (a *WeatherAdapter) geocode(ctx context.Context, city string) (lat, lon float64, name string, err error) {
	params := url.Values{}
	params.Set("name", city)
	params.Set("count", "1")

	body, err := a.client.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      a.cfg.GeocodeURL + "/search?" + params.Encode(),
		CacheKey: "geocode:" + strings.ToLower(city),
	})
	if err != nil {
		return 0, 0, "", err
	}

	var resp struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, "", fmt.Errorf("decode geocode: %w", domain.ErrInvalidResponse)
	}
	if len(resp.Results) == 0 {
		return 0, 0, "", nil
	}
	r := resp.Results[0]
	return r.Latitude, r.Longitude, r.Name, nil
}

// weatherConfidence scores a reading. Current-conditions data is near-live;
// a missing observation time or very stale reading loses trust.
func weatherConfidence(p domain.WeatherPayload, now time.Time) int {
	score := weatherTrustBase
	if p.Timestamp.IsZero() {
		score -= 1000
	} else if now.Sub(p.Timestamp) > 2*time.Hour {
		score -= 1500
	}
	if p.Condition != "" {
		score += 300
	}
	if p.WindKph > 0 {
		score += 100
	}
	return domain.ClampConfidence(score)
}

// Validate rejects readings with no location or an impossible temperature.
func (a *WeatherAdapter) Validate(d domain.SourceData) bool {
	switch p := d.Data.(type) {
	case domain.WeatherPayload:
		return p.City != "" && p.TempC > -95 && p.TempC < 60
	case domain.UnmappedPayload:
		return p.Note != ""
	default:
		return false
	}
}

// IsAvailable probes the forecast host.
func (a *WeatherAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    a.cfg.ForecastURL + "/forecast?latitude=0&longitude=0&current=temperature_2m",
	})
	return err == nil
}

func (a *WeatherAdapter) unmapped(q domain.Query, note string) domain.SourceData {
	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       domain.UnmappedPayload{Question: q.Question, Note: note},
		Confidence: 500,
	}
}

// Compile-time interface check.
var _ domain.Adapter = (*WeatherAdapter)(nil)
