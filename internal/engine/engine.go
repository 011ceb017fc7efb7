// Package engine runs the resolution state machine: fetch source data,
// adjudicate, compile and store evidence, then submit on-chain, with one
// audit row per attempt. Gates are ordered so that cheap failures happen
// before expensive ones and evidence survives a gas deferral.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritaslabs/oraclebot/internal/adapter"
	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/evidence"
	"github.com/veritaslabs/oraclebot/internal/metrics"
	"github.com/veritaslabs/oraclebot/internal/notify"
)

// Config holds engine tuning.
type Config struct {
	// FetchTimeout bounds each adapter's FetchData call.
	FetchTimeout time.Duration
	// MaxGasWei is the gas price ceiling; nil disables the gate.
	MaxGasWei *big.Int
	// MinConfidence is the verdict confidence floor, re-checked here even
	// though the analyzer enforces its own. Zero disables only the floor
	// check; structural verdict validation always runs.
	MinConfidence int
	// LockTTL covers the longest plausible attempt when a LockManager is
	// configured.
	LockTTL time.Duration
	// Workers sizes the job queue worker pool.
	Workers int
}

func (c *Config) defaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Engine coordinates one resolution attempt end to end.
type Engine struct {
	cfg      Config
	registry *adapter.Registry
	analyzer domain.Analyzer
	evidence domain.EvidenceStore
	ledger   domain.Ledger
	attempts domain.AttemptStore
	locks    domain.LockManager
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	resolver string
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// Options carries the optional collaborators. Any nil field disables that
// concern rather than failing.
type Options struct {
	Attempts domain.AttemptStore
	Locks    domain.LockManager
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// New creates an Engine. resolver is the submitting address recorded in
// evidence packages.
func New(cfg Config, registry *adapter.Registry, analyzer domain.Analyzer, store domain.EvidenceStore,
	ledger domain.Ledger, resolver string, opts Options, logger *slog.Logger) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:      cfg,
		registry: registry,
		analyzer: analyzer,
		evidence: store,
		ledger:   ledger,
		attempts: opts.Attempts,
		locks:    opts.Locks,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "engine")),
		inFlight: make(map[string]bool),
	}
}

// Resolve runs the full pipeline for one market. Exactly one attempt row is
// recorded whether it succeeds or fails, and a second call for the same
// market while one is running returns ErrInFlight immediately.
func (e *Engine) Resolve(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	if err := e.acquire(marketID); err != nil {
		return domain.ResolutionResult{}, err
	}
	defer e.release(marketID)

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "resolve:"+marketID, e.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ResolutionResult{}, domain.NewStageError(domain.StageFetching, marketID, domain.ErrInFlight)
			}
			return domain.ResolutionResult{}, fmt.Errorf("engine: lock %s: %w", marketID, err)
		}
		defer unlock()
	}

	if e.metrics != nil {
		e.metrics.InFlight.Inc()
		defer e.metrics.InFlight.Dec()
	}

	start := time.Now()
	res, attempt, err := e.run(ctx, marketID)
	attempt.MarketID = marketID
	attempt.Duration = time.Since(start)
	e.record(ctx, attempt)

	if e.metrics != nil {
		e.metrics.ObserveOutcome(err, time.Since(start).Seconds())
	}
	if e.notifier != nil {
		if err != nil {
			e.notifier.ResolutionFailed(ctx, marketID, err)
		} else {
			e.notifier.ResolutionSucceeded(ctx, res)
		}
	}
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	res.Duration = attempt.Duration
	return res, nil
}

// run executes the stages and builds the attempt record as it goes. The
// returned attempt always reflects how far the pipeline got.
func (e *Engine) run(ctx context.Context, marketID string) (domain.ResolutionResult, domain.Attempt, error) {
	attempt := domain.Attempt{Stage: domain.StageFetching}
	stageStart := time.Now()

	enter := func(stage domain.Stage) {
		if e.metrics != nil {
			e.metrics.StageDuration.WithLabelValues(string(attempt.Stage)).
				Observe(time.Since(stageStart).Seconds())
		}
		attempt.Stage = stage
		stageStart = time.Now()
	}
	fail := func(stage domain.Stage, err error) (domain.ResolutionResult, domain.Attempt, error) {
		attempt.Stage = stage
		attempt.ErrorKind = domain.ErrorKind(err)
		return domain.ResolutionResult{}, attempt, err
	}

	market, err := e.ledger.GetMarket(ctx, marketID)
	if err != nil {
		return fail(domain.StageFetching, domain.NewStageError(domain.StageFetching, marketID, err))
	}
	if market.Resolved {
		return fail(domain.StageFetching,
			domain.NewStageError(domain.StageFetching, marketID, fmt.Errorf("market already resolved")))
	}

	sources, srcErrs := e.fanOut(ctx, market)
	if len(sources) == 0 {
		err := error(domain.ErrInsufficientData)
		if len(srcErrs) > 0 {
			err = fmt.Errorf("%w: %w", domain.ErrInsufficientData, errors.Join(srcErrs...))
		}
		return fail(domain.StageFetching, domain.NewStageError(domain.StageFetching, marketID, err))
	}

	enter(domain.StageAnalyzing)
	verdict, err := e.analyzer.Analyze(ctx, market, sources)
	if err != nil {
		// A low-confidence verdict is still worth auditing.
		attempt.Confidence = verdict.Confidence
		attempt.CostUSD = verdict.CostUSD
		if errors.Is(err, domain.ErrLowConfidence) {
			return fail(domain.StageConfidenceGate,
				domain.NewStageError(domain.StageConfidenceGate, marketID, err))
		}
		return fail(domain.StageAnalyzing, domain.NewStageError(domain.StageAnalyzing, marketID, err))
	}
	attempt.Outcome = &verdict.Outcome
	attempt.Confidence = verdict.Confidence
	attempt.CostUSD = verdict.CostUSD
	if e.metrics != nil {
		e.metrics.VerdictConfidence.Observe(float64(verdict.Confidence))
		e.metrics.TokensUsed.Add(float64(verdict.TokensUsed))
		cost, _ := verdict.CostUSD.Float64()
		e.metrics.AnalysisCostUSD.Add(cost)
	}

	// The analyzer gates on its own floor, but the engine does not trust it:
	// nothing reaches the chain on a weak or structurally empty verdict.
	enter(domain.StageConfidenceGate)
	if !verdict.Valid() {
		return fail(domain.StageConfidenceGate,
			domain.NewStageError(domain.StageConfidenceGate, marketID,
				fmt.Errorf("verdict missing reasoning or data points: %w", domain.ErrLowConfidence)))
	}
	if verdict.Confidence < e.cfg.MinConfidence {
		return fail(domain.StageConfidenceGate,
			domain.NewStageError(domain.StageConfidenceGate, marketID,
				fmt.Errorf("verdict confidence %d below floor %d: %w",
					verdict.Confidence, e.cfg.MinConfidence, domain.ErrLowConfidence)))
	}

	enter(domain.StageCompiling)
	pkg := evidence.Compile(market, sources, verdict, e.resolver)

	enter(domain.StageStoring)
	cid, err := e.evidence.Store(ctx, pkg)
	if err != nil {
		return fail(domain.StageStoring, domain.NewStageError(domain.StageStoring, marketID, err))
	}
	attempt.EvidenceCID = cid
	if e.metrics != nil && pkg.Metadata.SizeBytes > 0 {
		e.metrics.EvidenceBytes.Observe(float64(pkg.Metadata.SizeBytes))
	}

	// Gas gate runs after storage: a deferral leaves the evidence CID valid
	// for a cheap retry.
	enter(domain.StageGasGate)
	if e.cfg.MaxGasWei != nil {
		price, err := e.ledger.GasPrice(ctx)
		if err != nil {
			return fail(domain.StageGasGate, domain.NewStageError(domain.StageGasGate, marketID, err))
		}
		if e.metrics != nil {
			f, _ := new(big.Float).SetInt(price).Float64()
			e.metrics.GasPriceWei.Set(f)
		}
		if price.Cmp(e.cfg.MaxGasWei) > 0 {
			return fail(domain.StageGasGate,
				domain.NewStageError(domain.StageGasGate, marketID,
					fmt.Errorf("gas %s wei above ceiling %s: %w", price, e.cfg.MaxGasWei, domain.ErrGasTooHigh)))
		}
	}

	enter(domain.StageSubmitting)
	receipt, err := e.ledger.SubmitResolution(ctx, marketID, verdict.Outcome, verdict.Confidence, cid)
	if err != nil {
		return fail(domain.StageSubmitting, domain.NewStageError(domain.StageSubmitting, marketID, err))
	}
	attempt.TxHash = receipt.TxHash
	attempt.GasUsed = receipt.GasUsed
	enter(domain.StageDone)
	if e.metrics != nil {
		e.metrics.GasUsed.Add(float64(receipt.GasUsed))
	}

	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.Bool("outcome", verdict.Outcome),
		slog.Int("confidence", verdict.Confidence),
		slog.String("cid", cid),
		slog.String("tx_hash", receipt.TxHash),
	)

	return domain.ResolutionResult{
		MarketID:    marketID,
		Outcome:     verdict.Outcome,
		Confidence:  verdict.Confidence,
		EvidenceCID: cid,
		TxHash:      receipt.TxHash,
		GasUsed:     receipt.GasUsed,
		CostUSD:     verdict.CostUSD,
	}, attempt, nil
}

// fanOut queries every adapter for the market's category in parallel. It
// returns the validated results plus a source-tagged error for each adapter
// that failed or produced rejected data; the pipeline degrades to whatever
// coverage remains and only escalates when nothing survives.
func (e *Engine) fanOut(ctx context.Context, market domain.Market) ([]domain.SourceData, []error) {
	adapters := e.registry.ForCategory(market.Category)
	if len(adapters) == 0 {
		return nil, nil
	}
	query := domain.QueryForMarket(market)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []domain.SourceData
		srcErrs []error
	)
	for _, a := range adapters {
		wg.Add(1)
		go func(a domain.Adapter) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()

			data, err := a.FetchData(fetchCtx, query)
			if err != nil {
				e.logger.WarnContext(ctx, "source fetch failed",
					slog.String("market_id", market.ID),
					slog.String("source", a.Name()),
					slog.String("error", err.Error()),
				)
				if e.metrics != nil {
					e.metrics.SourceFetches.WithLabelValues(a.Name(), "error").Inc()
				}
				mu.Lock()
				srcErrs = append(srcErrs, &domain.StageError{
					Stage: domain.StageFetching, MarketID: market.ID, Source: a.Name(), Err: err,
				})
				mu.Unlock()
				return
			}
			if !a.Validate(data) {
				e.logger.WarnContext(ctx, "source data failed validation",
					slog.String("market_id", market.ID),
					slog.String("source", a.Name()),
				)
				if e.metrics != nil {
					e.metrics.SourceFetches.WithLabelValues(a.Name(), "invalid").Inc()
				}
				mu.Lock()
				srcErrs = append(srcErrs, &domain.StageError{
					Stage: domain.StageFetching, MarketID: market.ID, Source: a.Name(),
					Err: domain.ErrInvalidResponse,
				})
				mu.Unlock()
				return
			}
			if e.metrics != nil {
				e.metrics.SourceFetches.WithLabelValues(a.Name(), "ok").Inc()
				e.metrics.SourceConfidence.WithLabelValues(a.Name()).Observe(float64(data.Confidence))
			}

			mu.Lock()
			results = append(results, data)
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return results, srcErrs
}

// RunWorkers consumes the job queue with the configured pool size until ctx
// is cancelled. Resolution failures are logged, not fatal.
func (e *Engine) RunWorkers(ctx context.Context, queue domain.JobQueue) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				job, err := queue.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					e.logger.ErrorContext(ctx, "job queue read failed",
						slog.Int("worker", worker), slog.String("error", err.Error()))
					continue
				}
				if _, err := e.Resolve(ctx, job.MarketID); err != nil {
					e.logger.WarnContext(ctx, "resolution failed",
						slog.Int("worker", worker),
						slog.String("market_id", job.MarketID),
						slog.String("kind", domain.ErrorKind(err)),
						slog.String("error", err.Error()),
					)
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) acquire(marketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[marketID] {
		return domain.NewStageError(domain.StageFetching, marketID, domain.ErrInFlight)
	}
	e.inFlight[marketID] = true
	return nil
}

func (e *Engine) release(marketID string) {
	e.mu.Lock()
	delete(e.inFlight, marketID)
	e.mu.Unlock()
}

func (e *Engine) record(ctx context.Context, attempt domain.Attempt) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.Record(ctx, attempt); err != nil {
		e.logger.ErrorContext(ctx, "attempt record failed",
			slog.String("market_id", attempt.MarketID), slog.String("error", err.Error()))
	}
}
