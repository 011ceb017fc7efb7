package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Attempt is the audit record of one resolution attempt, successful or not.
// Every run of the state machine produces exactly one row.
type Attempt struct {
	ID          string
	MarketID    string
	Stage       Stage
	ErrorKind   string
	Outcome     *bool
	Confidence  int
	EvidenceCID string
	TxHash      string
	GasUsed     uint64
	CostUSD     decimal.Decimal
	Duration    time.Duration
	CreatedAt   time.Time
}

// Succeeded reports whether the attempt reached the Done stage.
func (a Attempt) Succeeded() bool { return a.Stage == StageDone && a.ErrorKind == "" }

// AttemptStore persists the resolution audit trail.
type AttemptStore interface {
	Record(ctx context.Context, a Attempt) error
	// Latest returns the most recent attempt for a market, or ErrNotFound.
	Latest(ctx context.Context, marketID string) (Attempt, error)
	History(ctx context.Context, marketID string, limit int) ([]Attempt, error)
}

// ResolutionJob is one unit of work for the engine's worker pool: resolve the
// given market. External triggers enqueue jobs instead of binding the engine
// to a live chain event feed.
type ResolutionJob struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobQueue connects resolution triggers to the worker pool.
type JobQueue interface {
	Enqueue(ctx context.Context, job ResolutionJob) error
	// Next blocks until a job is available or the context is done.
	Next(ctx context.Context) (ResolutionJob, error)
}
