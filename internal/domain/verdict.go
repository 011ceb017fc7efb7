package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AlternativeOutcome records a verdict branch the model considered but did
// not choose, with its estimated probability.
type AlternativeOutcome struct {
	Outcome     bool    `json:"outcome"`
	Probability float64 `json:"probability"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Verdict is the structured adjudication returned by the AI analyzer.
// Outcome and Confidence are always set together; Reasoning and DataPoints
// are non-empty whenever the verdict gates a resolution.
type Verdict struct {
	Outcome      bool                 `json:"outcome"`
	Confidence   int                  `json:"confidence"`
	Reasoning    []string             `json:"reasoning"`
	DataPoints   []string             `json:"data_points"`
	Warnings     []string             `json:"warnings,omitempty"`
	Alternatives []AlternativeOutcome `json:"alternative_outcomes,omitempty"`
	Model        string               `json:"model"`
	TokensUsed   int                  `json:"tokens_used"`
	CostUSD      decimal.Decimal      `json:"cost_usd"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Valid reports whether the verdict satisfies the structural gate: confidence
// in range and non-empty reasoning and data points.
func (v Verdict) Valid() bool {
	if v.Confidence < 0 || v.Confidence > MaxConfidence {
		return false
	}
	return len(v.Reasoning) > 0 && len(v.DataPoints) > 0
}

// Analyzer produces a verdict from a market snapshot and the source data the
// fan-out collected. A confidence below the configured floor is an error
// (ErrLowConfidence), never a degraded success.
type Analyzer interface {
	Analyze(ctx context.Context, m Market, sources []SourceData) (Verdict, error)
}
