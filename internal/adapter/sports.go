package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/fetch"
)

// leagueKeywords maps sport keywords in a question to the league name used
// by the scores provider.
var leagueKeywords = map[string]string{
	"nba":        "NBA",
	"basketball": "NBA",
	"nfl":        "NFL",
	"football":   "NFL",
	"mlb":        "MLB",
	"baseball":   "MLB",
	"nhl":        "NHL",
	"hockey":     "NHL",
	"premier":    "English Premier League",
	"soccer":     "English Premier League",
	"laliga":     "Spanish La Liga",
}

// knownTeams is the team-name matching table. Keys are lowercase team
// identifiers as they appear in questions; values are the provider's
// canonical team names.
var knownTeams = map[string]string{
	"lakers":     "Los Angeles Lakers",
	"celtics":    "Boston Celtics",
	"warriors":   "Golden State Warriors",
	"knicks":     "New York Knicks",
	"bulls":      "Chicago Bulls",
	"heat":       "Miami Heat",
	"nuggets":    "Denver Nuggets",
	"chiefs":     "Kansas City Chiefs",
	"eagles":     "Philadelphia Eagles",
	"cowboys":    "Dallas Cowboys",
	"patriots":   "New England Patriots",
	"49ers":      "San Francisco 49ers",
	"bills":      "Buffalo Bills",
	"yankees":    "New York Yankees",
	"dodgers":    "Los Angeles Dodgers",
	"red sox":    "Boston Red Sox",
	"arsenal":    "Arsenal",
	"liverpool":  "Liverpool",
	"chelsea":    "Chelsea",
	"man city":   "Manchester City",
	"manchester": "Manchester United",
	"barcelona":  "Barcelona",
	"madrid":     "Real Madrid",
}

// MatchupForQuestion extracts the two team names referenced by a question,
// in order of appearance. Pure function.
func MatchupForQuestion(question string) (home, away string, ok bool) {
	lower := strings.ToLower(question)

	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for key, canonical := range knownTeams {
		if pos := strings.Index(lower, key); pos >= 0 {
			hits = append(hits, hit{pos: pos, name: canonical})
		}
	}
	if len(hits) < 2 {
		return "", "", false
	}
	// Earliest two mentions, question order.
	first, second := hits[0], hits[1]
	if second.pos < first.pos {
		first, second = second, first
	}
	for _, h := range hits[2:] {
		if h.pos < first.pos {
			second = first
			first = h
		} else if h.pos < second.pos {
			second = h
		}
	}
	return first.name, second.name, true
}

// LeagueForQuestion detects the sport league mentioned in a question. Pure
// function; empty when no sport keyword is present.
func LeagueForQuestion(question string) string {
	words := tokenize(question)
	for kw, league := range leagueKeywords {
		if words[kw] {
			return league
		}
	}
	return ""
}

// SportsConfig configures the sports scores adapter.
type SportsConfig struct {
	BaseURL  string
	APIKey   string
	Priority int
}

// SportsAdapter resolves game-outcome questions against a
// TheSportsDB-compatible scores API.
type SportsAdapter struct {
	cfg    SportsConfig
	client *fetch.Client
	logger *slog.Logger
}

const sportsTrustBase = 9000

// NewSportsAdapter creates the sports scores adapter.
func NewSportsAdapter(cfg SportsConfig, client *fetch.Client, logger *slog.Logger) *SportsAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.thesportsdb.com/api/v1/json/3"
	}
	return &SportsAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "adapter"), slog.String("adapter", "sportsdb")),
	}
}

func (a *SportsAdapter) Name() string { return "sportsdb" }

func (a *SportsAdapter) Categories() []domain.Category {
	return []domain.Category{domain.CategorySports}
}

func (a *SportsAdapter) Priority() int { return a.cfg.Priority }

// FetchData extracts the matchup from the question and looks the game up.
func (a *SportsAdapter) FetchData(ctx context.Context, q domain.Query) (domain.SourceData, error) {
	home, away, ok := MatchupForQuestion(q.Question)
	if !ok {
		a.logger.DebugContext(ctx, "no matchup in question", slog.String("market_id", q.MarketID))
		return a.unmapped(q, "no team matchup recognized in question"), nil
	}

	event := strings.ReplaceAll(home, " ", "_") + "_vs_" + strings.ReplaceAll(away, " ", "_")
	params := url.Values{}
	params.Set("e", event)

	body, err := a.client.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      a.cfg.BaseURL + "/searchevents.php?" + params.Encode(),
		CacheKey: event + ":score",
	})
	if err != nil {
		return domain.SourceData{}, fmt.Errorf("sports adapter: %w", err)
	}

	var resp struct {
		Event []struct {
			League    string `json:"strLeague"`
			HomeTeam  string `json:"strHomeTeam"`
			AwayTeam  string `json:"strAwayTeam"`
			HomeScore string `json:"intHomeScore"`
			AwayScore string `json:"intAwayScore"`
			Status    string `json:"strStatus"`
			DateEvent string `json:"dateEvent"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SourceData{}, fmt.Errorf("sports adapter: decode: %w", domain.ErrInvalidResponse)
	}
	if len(resp.Event) == 0 {
		return a.unmapped(q, fmt.Sprintf("no event found for %s vs %s", home, away)), nil
	}

	ev := resp.Event[0]
	homeScore, _ := strconv.Atoi(ev.HomeScore)
	awayScore, _ := strconv.Atoi(ev.AwayScore)
	startedAt, _ := time.Parse("2006-01-02", ev.DateEvent)

	payload := domain.ScorePayload{
		League:    ev.League,
		HomeTeam:  ev.HomeTeam,
		AwayTeam:  ev.AwayTeam,
		HomeScore: homeScore,
		AwayScore: awayScore,
		Status:    ev.Status,
		StartedAt: startedAt,
	}

	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       payload,
		Confidence: sportsConfidence(payload),
		Metadata:   domain.SourceMetadata{APIVersion: "v1"},
	}, nil
}

// sportsConfidence scores a game result. A finished game is near-definitive;
// anything in progress or unscored is weak evidence for an outcome question.
func sportsConfidence(p domain.ScorePayload) int {
	score := sportsTrustBase
	if strings.EqualFold(p.Status, "Match Finished") || strings.EqualFold(p.Status, "FT") {
		score += 500
	} else {
		score -= 2500
	}
	if p.HomeScore == 0 && p.AwayScore == 0 && p.Status == "" {
		score -= 2000
	}
	return domain.ClampConfidence(score)
}

// Validate rejects score payloads missing both teams or a status.
func (a *SportsAdapter) Validate(d domain.SourceData) bool {
	switch p := d.Data.(type) {
	case domain.ScorePayload:
		return p.HomeTeam != "" && p.AwayTeam != ""
	case domain.UnmappedPayload:
		return p.Note != ""
	default:
		return false
	}
}

// IsAvailable probes the provider with a cheap lookup.
func (a *SportsAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    a.cfg.BaseURL + "/all_leagues.php",
	})
	return err == nil
}

func (a *SportsAdapter) unmapped(q domain.Query, note string) domain.SourceData {
	return domain.SourceData{
		Source:     a.Name(),
		Category:   q.Category,
		FetchedAt:  time.Now().UTC(),
		Data:       domain.UnmappedPayload{Question: q.Question, Note: note},
		Confidence: 500,
	}
}

// Compile-time interface check.
var _ domain.Adapter = (*SportsAdapter)(nil)
