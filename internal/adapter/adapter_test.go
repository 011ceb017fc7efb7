package adapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/fetch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, provider string) *fetch.Client {
	t.Helper()
	return fetch.NewClient(fetch.Config{
		Provider: provider,
		Retry:    fetch.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, nil, testLogger())
}

func TestPriceAdapterFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("ids = %q, want bitcoin", got)
		}
		w.Write([]byte(`{"bitcoin":{"usd":97123.5,"usd_24h_vol":31000000000,"last_updated_at":` +
			"1735600000" + `}}`))
	}))
	defer srv.Close()

	a := NewPriceAdapter(PriceConfig{BaseURL: srv.URL}, testClient(t, "coingecko"), testLogger())
	data, err := a.FetchData(context.Background(), domain.Query{
		MarketID: "m1",
		Question: "Will BTC exceed $100,000?",
		Category: domain.CategoryCrypto,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}

	p, ok := data.Data.(domain.PricePayload)
	if !ok {
		t.Fatalf("payload type %T, want PricePayload", data.Data)
	}
	if p.Symbol != "BTC" || p.PriceUSD != 97123.5 {
		t.Errorf("payload = %+v", p)
	}
	if !a.Validate(data) {
		t.Error("valid payload rejected")
	}
	if data.Confidence <= 0 || data.Confidence > domain.MaxConfidence {
		t.Errorf("confidence %d out of range", data.Confidence)
	}
}

func TestPriceAdapterUnmappedQuestion(t *testing.T) {
	a := NewPriceAdapter(PriceConfig{BaseURL: "http://unused"}, testClient(t, "coingecko"), testLogger())
	data, err := a.FetchData(context.Background(), domain.Query{
		MarketID: "m1",
		Question: "Will it rain tomorrow?",
		Category: domain.CategoryCrypto,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if _, ok := data.Data.(domain.UnmappedPayload); !ok {
		t.Fatalf("payload type %T, want UnmappedPayload", data.Data)
	}
	if data.Confidence != 500 {
		t.Errorf("unmapped confidence = %d, want 500", data.Confidence)
	}
	if !a.Validate(data) {
		t.Error("unmapped payload with a note must validate")
	}
}

func TestPriceAdapterBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum":{"usd":1}}`))
	}))
	defer srv.Close()

	a := NewPriceAdapter(PriceConfig{BaseURL: srv.URL}, testClient(t, "coingecko"), testLogger())
	_, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will BTC exceed $100,000?",
		Category: domain.CategoryCrypto,
	})
	if err == nil {
		t.Fatal("expected error when requested coin is missing from response")
	}
}

func TestPriceConfidence(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	fresh := domain.PricePayload{Symbol: "BTC", PriceUSD: 1, Volume24h: 100, Timestamp: now.Add(-time.Minute)}
	if got := priceConfidence(fresh, now); got != priceTrustBase+200 {
		t.Errorf("fresh with volume = %d, want %d", got, priceTrustBase+200)
	}

	stale := domain.PricePayload{Symbol: "BTC", PriceUSD: 1, Timestamp: now.Add(-2 * time.Hour)}
	if got := priceConfidence(stale, now); got != priceTrustBase-1500-300 {
		t.Errorf("stale without volume = %d, want %d", got, priceTrustBase-1500-300)
	}

	aging := domain.PricePayload{Symbol: "BTC", PriceUSD: 1, Volume24h: 1, Timestamp: now.Add(-10 * time.Minute)}
	if got := priceConfidence(aging, now); got != priceTrustBase-500+200 {
		t.Errorf("aging quote = %d, want %d", got, priceTrustBase-500+200)
	}
}

func TestPriceValidateRejects(t *testing.T) {
	a := NewPriceAdapter(PriceConfig{}, testClient(t, "coingecko"), testLogger())
	bad := domain.SourceData{Data: domain.PricePayload{Symbol: "BTC", PriceUSD: 0, Timestamp: time.Now()}}
	if a.Validate(bad) {
		t.Error("zero price must not validate")
	}
	wrong := domain.SourceData{Data: domain.WeatherPayload{City: "Denver", TempC: 20}}
	if a.Validate(wrong) {
		t.Error("foreign payload kind must not validate")
	}
}

func TestSportsAdapterFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("e"); got != "Los_Angeles_Lakers_vs_Boston_Celtics" {
			t.Errorf("e = %q", got)
		}
		w.Write([]byte(`{"event":[{
			"strLeague":"NBA",
			"strHomeTeam":"Los Angeles Lakers","strAwayTeam":"Boston Celtics",
			"intHomeScore":"112","intAwayScore":"104",
			"strStatus":"Match Finished","dateEvent":"2026-08-28"}]}`))
	}))
	defer srv.Close()

	a := NewSportsAdapter(SportsConfig{BaseURL: srv.URL}, testClient(t, "sportsdb"), testLogger())
	data, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will the Lakers beat the Celtics?",
		Category: domain.CategorySports,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}

	p, ok := data.Data.(domain.ScorePayload)
	if !ok {
		t.Fatalf("payload type %T, want ScorePayload", data.Data)
	}
	if p.HomeScore != 112 || p.AwayScore != 104 {
		t.Errorf("score = %d-%d", p.HomeScore, p.AwayScore)
	}
	if margin, ok := p.NumericValue(); !ok || margin != 8 {
		t.Errorf("NumericValue = %v, %v; want 8, true", margin, ok)
	}
	if data.Confidence != domain.ClampConfidence(sportsTrustBase+500) {
		t.Errorf("finished game confidence = %d", data.Confidence)
	}
	if !a.Validate(data) {
		t.Error("valid payload rejected")
	}
}

func TestSportsAdapterNoEventFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"event":null}`))
	}))
	defer srv.Close()

	a := NewSportsAdapter(SportsConfig{BaseURL: srv.URL}, testClient(t, "sportsdb"), testLogger())
	data, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will the Lakers beat the Celtics?",
		Category: domain.CategorySports,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if _, ok := data.Data.(domain.UnmappedPayload); !ok {
		t.Fatalf("payload type %T, want UnmappedPayload", data.Data)
	}
}

func TestSportsConfidence(t *testing.T) {
	finished := domain.ScorePayload{Status: "FT", HomeScore: 2, AwayScore: 1}
	if got := sportsConfidence(finished); got != domain.ClampConfidence(sportsTrustBase+500) {
		t.Errorf("finished = %d", got)
	}

	live := domain.ScorePayload{Status: "2nd Half", HomeScore: 1, AwayScore: 0}
	if got := sportsConfidence(live); got != sportsTrustBase-2500 {
		t.Errorf("live = %d, want %d", got, sportsTrustBase-2500)
	}

	empty := domain.ScorePayload{}
	if got := sportsConfidence(empty); got != sportsTrustBase-2500-2000 {
		t.Errorf("unplayed = %d, want %d", got, sportsTrustBase-2500-2000)
	}
}

func TestWeatherAdapterFetchData(t *testing.T) {
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"time":"2026-08-31T11:45","temperature_2m":21.4,` +
			`"wind_speed_10m":12.3,"weather_code":61}}`))
	}))
	defer forecast.Close()

	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Denver" {
			t.Errorf("name = %q, want Denver", got)
		}
		w.Write([]byte(`{"results":[{"name":"Denver","latitude":39.7392,"longitude":-104.9847}]}`))
	}))
	defer geocode.Close()

	a := NewWeatherAdapter(WeatherConfig{
		GeocodeURL:  geocode.URL,
		ForecastURL: forecast.URL,
	}, testClient(t, "openmeteo"), testLogger())

	data, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will it rain in Denver tomorrow?",
		Category: domain.CategoryWeather,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}

	p, ok := data.Data.(domain.WeatherPayload)
	if !ok {
		t.Fatalf("payload type %T, want WeatherPayload", data.Data)
	}
	if p.City != "Denver" || p.TempC != 21.4 || p.Condition != "rain" {
		t.Errorf("payload = %+v", p)
	}
	if !a.Validate(data) {
		t.Error("valid payload rejected")
	}
}

func TestWeatherAdapterGeocodeMiss(t *testing.T) {
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer geocode.Close()

	a := NewWeatherAdapter(WeatherConfig{
		GeocodeURL:  geocode.URL,
		ForecastURL: "http://unused",
	}, testClient(t, "openmeteo"), testLogger())

	data, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will it snow in Atlantis this winter?",
		Category: domain.CategoryWeather,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if _, ok := data.Data.(domain.UnmappedPayload); !ok {
		t.Fatalf("payload type %T, want UnmappedPayload", data.Data)
	}
	if data.Confidence != 500 {
		t.Errorf("confidence = %d, want 500", data.Confidence)
	}
}

func TestWeatherConfidence(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	fresh := domain.WeatherPayload{Timestamp: now.Add(-15 * time.Minute), Condition: "clear", WindKph: 5}
	if got := weatherConfidence(fresh, now); got != weatherTrustBase+300+100 {
		t.Errorf("fresh = %d, want %d", got, weatherTrustBase+300+100)
	}

	noObs := domain.WeatherPayload{}
	if got := weatherConfidence(noObs, now); got != weatherTrustBase-1000 {
		t.Errorf("missing observation time = %d, want %d", got, weatherTrustBase-1000)
	}

	stale := domain.WeatherPayload{Timestamp: now.Add(-3 * time.Hour)}
	if got := weatherConfidence(stale, now); got != weatherTrustBase-1500 {
		t.Errorf("stale = %d, want %d", got, weatherTrustBase-1500)
	}
}

func TestWeatherValidateRejectsImpossibleTemp(t *testing.T) {
	a := NewWeatherAdapter(WeatherConfig{}, testClient(t, "openmeteo"), testLogger())
	bad := domain.SourceData{Data: domain.WeatherPayload{City: "Denver", TempC: 120}}
	if a.Validate(bad) {
		t.Error("120C reading must not validate")
	}
}

func TestNewsAdapterFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "president sign infrastructure bill march" {
			t.Errorf("q = %q", got)
		}
		w.Write([]byte(`{"totalArticles":2,"articles":[
			{"title":"Bill signed","url":"https://example.com/a","publishedAt":"2026-08-30T09:00:00Z","source":{"name":"Example Wire"}},
			{"title":"Signing expected","url":"https://example.com/b","publishedAt":"2026-08-29T18:00:00Z","source":{"name":"Example Post"}}]}`))
	}))
	defer srv.Close()

	a := NewNewsAdapter(NewsConfig{BaseURL: srv.URL, APIKey: "k"}, testClient(t, "gnews"), testLogger())
	data, err := a.FetchData(context.Background(), domain.Query{
		Question: "Will the president sign the infrastructure bill before March?",
		Category: domain.CategoryPolitics,
	})
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}

	p, ok := data.Data.(domain.NewsPayload)
	if !ok {
		t.Fatalf("payload type %T, want NewsPayload", data.Data)
	}
	if len(p.Articles) != 2 || p.Articles[0].Source != "Example Wire" {
		t.Errorf("articles = %+v", p.Articles)
	}
	if !a.Validate(data) {
		t.Error("valid payload rejected")
	}
	if _, ok := p.NumericValue(); ok {
		t.Error("news payload must not report a numeric value")
	}
}

func TestNewsConfidence(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if got := newsConfidence(domain.NewsPayload{Keywords: []string{"x"}}, now); got != 2000 {
		t.Errorf("no coverage = %d, want 2000", got)
	}

	recent := domain.NewsPayload{Articles: []domain.Article{
		{PublishedAt: now.Add(-24 * time.Hour)},
		{PublishedAt: now.Add(-48 * time.Hour)},
	}}
	if got := newsConfidence(recent, now); got != newsTrustBase+200 {
		t.Errorf("two recent articles = %d, want %d", got, newsTrustBase+200)
	}

	many := domain.NewsPayload{Articles: make([]domain.Article, 10)}
	for i := range many.Articles {
		many.Articles[i].PublishedAt = now.Add(-time.Hour)
	}
	if got := newsConfidence(many, now); got != newsTrustBase+500 {
		t.Errorf("article bonus must cap at 500, got %d", got)
	}

	old := domain.NewsPayload{Articles: []domain.Article{{PublishedAt: now.Add(-30 * 24 * time.Hour)}}}
	if got := newsConfidence(old, now); got != newsTrustBase+100-1500 {
		t.Errorf("month-old coverage = %d, want %d", got, newsTrustBase+100-1500)
	}
}

func TestRegistryForCategory(t *testing.T) {
	logger := testLogger()
	client := testClient(t, "test")

	price := NewPriceAdapter(PriceConfig{Priority: 10}, client, logger)
	news := NewNewsAdapter(NewsConfig{Priority: 50, APIKey: "k"}, client, logger)
	sports := NewSportsAdapter(SportsConfig{Priority: 20}, client, logger)

	reg := NewRegistry()
	reg.Register(news)
	reg.Register(price)
	reg.Register(sports)

	crypto := reg.ForCategory(domain.CategoryCrypto)
	if len(crypto) != 2 {
		t.Fatalf("crypto adapters = %d, want 2", len(crypto))
	}
	if crypto[0].Name() != "coingecko" || crypto[1].Name() != "gnews" {
		t.Errorf("priority order = [%s %s]", crypto[0].Name(), crypto[1].Name())
	}

	if got := reg.ForCategory(domain.CategorySports); len(got) != 1 || got[0].Name() != "sportsdb" {
		t.Errorf("sports adapters = %v", got)
	}

	if got := reg.ForCategory(domain.CategoryWeather); len(got) != 0 {
		t.Errorf("expected no weather adapters, got %d", len(got))
	}
}
