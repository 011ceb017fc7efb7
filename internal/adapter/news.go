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

// stopWords are stripped from questions before building a news search query.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "will": true, "be": true, "by": true,
	"in": true, "on": true, "at": true, "of": true, "to": true, "is": true,
	"are": true, "was": true, "were": true, "do": true, "does": true,
	"did": true, "has": true, "have": true, "had": true, "before": true,
	"after": true, "than": true, "this": true, "that": true, "it": true,
	"and": true, "or": true, "for": true, "with": true, "happen": true,
	"occur": true, "win": true, "there": true, "their": true, "its": true,
}

// maxNewsKeywords bounds the search query length.
const maxNewsKeywords = 6

// KeywordsForQuestion strips stop words and punctuation from a question and
// returns up to maxNewsKeywords search terms in question order. Pure
// function.
func KeywordsForQuestion(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	seen := make(map[string]bool)
	var keywords []string
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
		if len(keywords) == maxNewsKeywords {
			break
		}
	}
	return keywords
}

// NewsConfig configures the news search adapter.
type NewsConfig struct {
	BaseURL     string
	APIKey      string
	Priority    int
	MaxArticles int
}

// NewsAdapter searches recent news coverage for the broad market categories
// that have no structured data provider: politics, entertainment, and
// technology. It also backs up the structured adapters for crypto and
// finance.
type NewsAdapter struct {
	cfg    NewsConfig
	client *fetch.Client
	logger *slog.Logger
}

const newsTrustBase = 7000

// NewNewsAdapter creates the news search adapter.
func NewNewsAdapter(cfg NewsConfig, client *fetch.Client, logger *slog.Logger) *NewsAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gnews.io/api/v4"
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 5
	}
	return &NewsAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "adapter"), slog.String("adapter", "gnews")),
	}
}

func (a *NewsAdapter) Name() string { return "gnews" }

func (a *NewsAdapter) Categories() []domain.Category {
	return []domain.Category{
		domain.CategoryPolitics,
		domain.CategoryEntertainment,
		domain.CategoryTechnology,
		domain.CategoryCrypto,
		domain.CategoryFinance,
		domain.CategoryOther,
	}
}

func (a *NewsAdapter) Priority() int { return a.cfg.Priority }

// FetchData searches news coverage for the question's keywords.
func (a *NewsAdapter) FetchData(ctx context.Context, q domain.Query) (domain.SourceData, error) {
	keywords := KeywordsForQuestion(q.Question)
	if len(keywords) == 0 {
		a.logger.DebugContext(ctx, "no keywords in question", slog.String("market_id", q.MarketID))
		return a.unmapped(q, "no searchable keywords in question"), nil
	}

	params := url.Values{}
	params.Set("q", strings.Join(keywords, " "))
	params.Set("max", fmt.Sprintf("%d", a.cfg.MaxArticles))
	params.Set("lang", "en")
	if a.cfg.APIKey != "" {
		params.Set("apikey", a.cfg.APIKey)
	}

	body, err := a.client.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      a.cfg.BaseURL + "/search?" + params.Encode(),
		CacheKey: strings.Join(keywords, "+") + ":news",
	})
	if err != nil {
		return domain.SourceData{}, fmt.Errorf("news adapter: %w", err)
	}

	var resp struct {
		TotalArticles int `json:"totalArticles"`
		Articles      []struct {
			Title       string    `json:"title"`
			URL         string    `json:"url"`
			PublishedAt time.Time `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SourceData{}, fmt.Errorf("news adapter: decode: %w", domain.ErrInvalidResponse)
	}

	articles := make([]domain.Article, 0, len(resp.Articles))
	for _, art := range resp.Articles {
		articles = append(articles, domain.Article{
			Title:       art.Title,
			Source:      art.Source.Name,
			URL:         art.URL,
			PublishedAt: art.PublishedAt,
		})
	}

	payload := domain.NewsPayload{Keywords: keywords, Articles: articles}

	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       payload,
		Confidence: newsConfidence(payload, time.Now().UTC()),
		Metadata:   domain.SourceMetadata{APIVersion: "v4"},
	}, nil
}

// newsConfidence scores a result set by coverage breadth and recency. News
// is corroborating evidence, never definitive, so the baseline sits below
// the structured providers.
func newsConfidence(p domain.NewsPayload, now time.Time) int {
	if len(p.Articles) == 0 {
		return 2000
	}

	score := newsTrustBase
	bonus := len(p.Articles) * 100
	if bonus > 500 {
		bonus = 500
	}
	score += bonus

	newest := p.Articles[0].PublishedAt
	for _, art := range p.Articles[1:] {
		if art.PublishedAt.After(newest) {
			newest = art.PublishedAt
		}
	}
	if !newest.IsZero() && now.Sub(newest) > 7*24*time.Hour {
		score -= 1500
	}

	return domain.ClampConfidence(score)
}

// Validate accepts any result set with keywords; an empty article list is
// valid low-confidence evidence of absence.
func (a *NewsAdapter) Validate(d domain.SourceData) bool {
	switch p := d.Data.(type) {
	case domain.NewsPayload:
		return len(p.Keywords) > 0
	case domain.UnmappedPayload:
		return p.Note != ""
	default:
		return false
	}
}

// IsAvailable reports whether the adapter is configured. The provider has no
// unauthenticated probe endpoint.
func (a *NewsAdapter) IsAvailable(_ context.Context) bool {
	return a.cfg.APIKey != ""
}

func (a *NewsAdapter) unmapped(q domain.Query, note string) domain.SourceData {
	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       domain.UnmappedPayload{Question: q.Question, Note: note},
		Confidence: 500,
	}
}

// Compile-time interface check.
var _ domain.Adapter = (*NewsAdapter)(nil)
