package domain

import (
	"errors"
	"fmt"
)

// Error kinds of the resolution pipeline. Terminal failures wrap one of these
// sentinels inside a StageError so callers can classify with errors.Is while
// operators see the stage and market context.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrSourceTimeout    = errors.New("data source timeout")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInvalidResponse  = errors.New("invalid response")
	ErrNetwork          = errors.New("network error")
	ErrAnalysisFailed   = errors.New("ai analysis failed")
	ErrLowConfidence    = errors.New("confidence below floor")
	ErrStorageUpload    = errors.New("storage upload failed")
	ErrGasTooHigh       = errors.New("gas price above ceiling")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTxFailed         = errors.New("transaction failed")
	ErrInFlight         = errors.New("resolution already in flight")
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
)

// Stage labels one step of the resolution state machine.
type Stage string

const (
	StageFetching       Stage = "fetching"
	StageAnalyzing      Stage = "analyzing"
	StageConfidenceGate Stage = "confidence_gate"
	StageCompiling      Stage = "compiling"
	StageStoring        Stage = "storing"
	StageGasGate        Stage = "gas_gate"
	StageSubmitting     Stage = "submitting"
	StageDone           Stage = "done"
)

// StageError is a pipeline failure with enough structured context to
// reconstruct a remediation path: which market, which stage, and (for source
// failures) which provider. It wraps a sentinel error kind.
type StageError struct {
	Stage    Stage
	MarketID string
	Source   string
	Err      error
}

func (e *StageError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("resolution %s [market %s, source %s]: %v", e.Stage, e.MarketID, e.Source, e.Err)
	}
	return fmt.Sprintf("resolution %s [market %s]: %v", e.Stage, e.MarketID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage and market context.
func NewStageError(stage Stage, marketID string, err error) *StageError {
	return &StageError{Stage: stage, MarketID: marketID, Err: err}
}

// Retryable reports whether a terminal pipeline error can be retried without
// new evidence: a gas deferral keeps its evidence valid, and a failed
// transaction can be resubmitted. Everything else needs fresh data or
// operator action.
func Retryable(err error) bool {
	return errors.Is(err, ErrGasTooHigh) || errors.Is(err, ErrTxFailed)
}

// ErrorKind maps a pipeline error to its taxonomy label for audit rows,
// metrics, and operator messages.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrSourceTimeout):
		return "source_timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, ErrAnalysisFailed):
		return "analysis_failed"
	case errors.Is(err, ErrStorageUpload):
		return "storage_upload_failed"
	case errors.Is(err, ErrGasTooHigh):
		return "gas_too_high"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTxFailed):
		return "transaction_failed"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	default:
		return "internal"
	}
}
