package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

const basePrompt = `You adjudicate prediction market questions. You are given the question,
its category, and data collected from external sources. Decide whether the
question resolves YES (true) or NO (false).

Respond with a single JSON object, nothing else:
{
  "outcome": true or false,
  "confidence": integer 0-10000 where 10000 is certainty,
  "reasoning": ["step by step reasoning", "..."],
  "data_points": ["the specific facts the verdict rests on", "..."],
  "warnings": ["caveats, stale data, source disagreement", "..."],
  "alternative_outcomes": [{"outcome": false, "probability": 0.1, "reasoning": "..."}]
}

Rules:
- Base the verdict only on the provided data. Never invent facts.
- Report low confidence when the data is stale, thin, or contradictory.
- data_points must cite concrete values from the sources.`

// categoryGuidance sharpens the prompt per market category.
var categoryGuidance = map[domain.Category]string{
	domain.CategoryCrypto:   "Price questions: compare the quoted spot price against the question's threshold. Mind the quote timestamp.",
	domain.CategoryFinance:  "Price questions: compare the quoted value against the question's threshold. Mind the quote timestamp.",
	domain.CategorySports:   "Game questions: only a finished game decides a winner. An in-progress or scheduled game cannot resolve the question.",
	domain.CategoryWeather:  "Weather questions: current conditions describe now, not the question's target date. Check that the observation window matches.",
	domain.CategoryPolitics: "Event questions: require corroboration across independent news sources before a confident verdict.",
}

func systemPrompt(cat domain.Category) string {
	if extra, ok := categoryGuidance[cat]; ok {
		return basePrompt + "\n\n" + extra
	}
	return basePrompt
}

// promptSource is the view of one source given to the model. Confidence is
// the adapter's own heuristic score, included so the model can weigh
// sources against each other.
type promptSource struct {
	Source     string          `json:"source"`
	FetchedAt  time.Time       `json:"fetched_at"`
	Confidence int             `json:"confidence"`
	Data       json.RawMessage `json:"data"`
}

func buildUserPrompt(m domain.Market, sources []domain.SourceData) (string, error) {
	views := make([]promptSource, 0, len(sources))
	for _, s := range sources {
		data, err := json.Marshal(s.Data)
		if err != nil {
			return "", fmt.Errorf("marshal source %s: %w", s.Source, err)
		}
		views = append(views, promptSource{
			Source:     s.Source,
			FetchedAt:  s.FetchedAt,
			Confidence: s.Confidence,
			Data:       data,
		})
	}
	blob, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", m.Question)
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	fmt.Fprintf(&b, "Category: %s\n", m.Category)
	if !m.EndTime.IsZero() {
		fmt.Fprintf(&b, "Market end time: %s\n", m.EndTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nSource data:\n%s\n", blob)
	return b.String(), nil
}
