// Package analyzer adjudicates market questions with an OpenAI-compatible
// chat model. It is the only component allowed to decide an outcome; every
// verdict carries the structured reasoning that later lands in the evidence
// package.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

const (
	defaultModel         = "gpt-4o-mini"
	defaultMaxTokens     = 1200
	defaultTimeout       = 60 * time.Second
	defaultMinConfidence = 8000
)

// chatClient is the slice of the OpenAI client the analyzer uses. Tests
// substitute a scripted implementation.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds analyzer settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	// MinConfidence is the floor below which a verdict becomes
	// ErrLowConfidence. Defaults to 8000 of 10000.
	MinConfidence int
}

// Analyzer implements domain.Analyzer on top of a chat completion API.
type Analyzer struct {
	api           chatClient
	model         string
	temperature   float32
	maxTokens     int
	timeout       time.Duration
	minConfidence int
	logger        *slog.Logger
}

// New creates an Analyzer from config.
func New(cfg Config, logger *slog.Logger) (*Analyzer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("analyzer: API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	minConfidence := cfg.MinConfidence
	if minConfidence <= 0 {
		minConfidence = defaultMinConfidence
	}

	openaiCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}

	return &Analyzer{
		api:           openai.NewClientWithConfig(openaiCfg),
		model:         model,
		temperature:   cfg.Temperature,
		maxTokens:     maxTokens,
		timeout:       timeout,
		minConfidence: minConfidence,
		logger:        logger.With(slog.String("component", "analyzer")),
	}, nil
}

// MinConfidence returns the configured verdict floor.
func (a *Analyzer) MinConfidence() int { return a.minConfidence }

// Analyze builds a category-aware prompt over the collected source data and
// parses the model's structured verdict. A well-formed verdict below the
// confidence floor returns the verdict together with ErrLowConfidence so
// callers can record what the model actually said.
func (a *Analyzer) Analyze(ctx context.Context, m domain.Market, sources []domain.SourceData) (domain.Verdict, error) {
	if len(sources) == 0 {
		return domain.Verdict{}, fmt.Errorf("analyzer: no source data for market %s: %w", m.ID, domain.ErrInsufficientData)
	}

	userPrompt, err := buildUserPrompt(m, sources)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("analyzer: build prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(m.Category)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("analyzer: chat completion: %v: %w", err, domain.ErrAnalysisFailed)
	}
	if len(resp.Choices) == 0 {
		return domain.Verdict{}, fmt.Errorf("analyzer: empty response: %w", domain.ErrAnalysisFailed)
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("analyzer: %w", err)
	}

	verdict.Model = a.model
	verdict.TokensUsed = resp.Usage.TotalTokens
	verdict.CostUSD = costUSD(a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	verdict.Timestamp = time.Now().UTC()

	a.logger.InfoContext(ctx, "verdict",
		slog.String("market_id", m.ID),
		slog.Bool("outcome", verdict.Outcome),
		slog.Int("confidence", verdict.Confidence),
		slog.Int("tokens", verdict.TokensUsed),
	)

	if verdict.Confidence < a.minConfidence {
		return verdict, fmt.Errorf("analyzer: confidence %d below floor %d: %w",
			verdict.Confidence, a.minConfidence, domain.ErrLowConfidence)
	}
	return verdict, nil
}

// parseVerdict decodes the model's JSON verdict, tolerating prose around a
// JSON object, and enforces the structural requirements.
func parseVerdict(content string) (domain.Verdict, error) {
	var raw struct {
		Outcome      *bool                       `json:"outcome"`
		Confidence   *int                        `json:"confidence"`
		Reasoning    []string                    `json:"reasoning"`
		DataPoints   []string                    `json:"data_points"`
		Warnings     []string                    `json:"warnings"`
		Alternatives []domain.AlternativeOutcome `json:"alternative_outcomes"`
	}

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		extracted, ok := extractJSON(content)
		if !ok {
			return domain.Verdict{}, fmt.Errorf("no JSON object in response: %w", domain.ErrAnalysisFailed)
		}
		if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
			return domain.Verdict{}, fmt.Errorf("decode verdict: %v: %w", err, domain.ErrAnalysisFailed)
		}
	}

	if raw.Outcome == nil || raw.Confidence == nil {
		return domain.Verdict{}, fmt.Errorf("verdict missing outcome or confidence: %w", domain.ErrAnalysisFailed)
	}
	if *raw.Confidence < 0 || *raw.Confidence > domain.MaxConfidence {
		return domain.Verdict{}, fmt.Errorf("confidence %d out of range: %w", *raw.Confidence, domain.ErrAnalysisFailed)
	}

	v := domain.Verdict{
		Outcome:      *raw.Outcome,
		Confidence:   *raw.Confidence,
		Reasoning:    raw.Reasoning,
		DataPoints:   raw.DataPoints,
		Warnings:     raw.Warnings,
		Alternatives: raw.Alternatives,
	}
	if !v.Valid() {
		return domain.Verdict{}, fmt.Errorf("verdict missing reasoning or data points: %w", domain.ErrAnalysisFailed)
	}
	return v, nil
}

// extractJSON pulls the outermost JSON object out of a free-text response.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// tokenRate is the USD price per single token.
type tokenRate struct {
	match  string
	input  decimal.Decimal
	output decimal.Decimal
}

var modelRates = []tokenRate{
	{"gpt-4o-mini", decimal.NewFromFloat(0.00000015), decimal.NewFromFloat(0.0000006)},
	{"gpt-4o", decimal.NewFromFloat(0.0000025), decimal.NewFromFloat(0.00001)},
	{"gpt-4", decimal.NewFromFloat(0.00003), decimal.NewFromFloat(0.00006)},
	{"gpt-3.5", decimal.NewFromFloat(0.0000005), decimal.NewFromFloat(0.0000015)},
}

var fallbackRate = tokenRate{
	input:  decimal.NewFromFloat(0.000005),
	output: decimal.NewFromFloat(0.000015),
}

// costUSD estimates the request cost from usage counts. Order in modelRates
// matters: more specific prefixes come first.
func costUSD(model string, promptTokens, completionTokens int) decimal.Decimal {
	rate := fallbackRate
	lower := strings.ToLower(model)
	for _, r := range modelRates {
		if strings.HasPrefix(lower, r.match) {
			rate = r
			break
		}
	}
	in := rate.input.Mul(decimal.NewFromInt(int64(promptTokens)))
	out := rate.output.Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out)
}

// Compile-time interface check.
var _ domain.Analyzer = (*Analyzer)(nil)
