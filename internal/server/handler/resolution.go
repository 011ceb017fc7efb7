package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// ResolutionHandler serves the resolution trigger and audit endpoints.
type ResolutionHandler struct {
	queue    domain.JobQueue
	attempts domain.AttemptStore
	logger   *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler. attempts may be nil when
// no audit store is configured; the history endpoints then return 404.
func NewResolutionHandler(queue domain.JobQueue, attempts domain.AttemptStore, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{queue: queue, attempts: attempts, logger: logHandler(logger, "resolution")}
}

type triggerRequest struct {
	MarketID string `json:"market_id"`
}

// Trigger enqueues a resolution job for the worker pool.
// POST /api/resolutions
func (h *ResolutionHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "market_id is required")
		return
	}

	job := domain.ResolutionJob{
		ID:         uuid.New().String(),
		MarketID:   req.MarketID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.ErrorContext(r.Context(), "enqueue failed",
			slog.String("market_id", req.MarketID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to enqueue resolution")
		return
	}

	h.logger.InfoContext(r.Context(), "resolution enqueued",
		slog.String("job_id", job.ID), slog.String("market_id", job.MarketID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"market_id":   job.MarketID,
		"enqueued_at": job.EnqueuedAt.Format(time.RFC3339),
	})
}

// attemptResponse is the wire form of a resolution attempt.
type attemptResponse struct {
	ID          string `json:"id"`
	MarketID    string `json:"market_id"`
	Stage       string `json:"stage"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Outcome     *bool  `json:"outcome,omitempty"`
	Confidence  int    `json:"confidence"`
	EvidenceCID string `json:"evidence_cid,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	CostUSD     string `json:"cost_usd"`
	DurationMS  int64  `json:"duration_ms"`
	CreatedAt   string `json:"created_at"`
	Succeeded   bool   `json:"succeeded"`
}

func toAttemptResponse(a domain.Attempt) attemptResponse {
	return attemptResponse{
		ID:          a.ID,
		MarketID:    a.MarketID,
		Stage:       string(a.Stage),
		ErrorKind:   a.ErrorKind,
		Outcome:     a.Outcome,
		Confidence:  a.Confidence,
		EvidenceCID: a.EvidenceCID,
		TxHash:      a.TxHash,
		GasUsed:     a.GasUsed,
		CostUSD:     a.CostUSD.String(),
		DurationMS:  a.Duration.Milliseconds(),
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		Succeeded:   a.Succeeded(),
	}
}

// History returns the attempt trail for a market, most recent first.
// GET /api/resolutions/{marketID}
func (h *ResolutionHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeError(w, http.StatusNotFound, "attempt history is not configured")
		return
	}
	marketID := pathParam(r, "marketID")

	attempts, err := h.attempts.History(r.Context(), marketID, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed",
			slog.String("market_id", marketID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load attempt history")
		return
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, toAttemptResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"attempts":  out,
	})
}

// Latest returns the most recent attempt for a market.
// GET /api/resolutions/{marketID}/latest
func (h *ResolutionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeError(w, http.StatusNotFound, "attempt history is not configured")
		return
	}
	marketID := pathParam(r, "marketID")

	attempt, err := h.attempts.Latest(r.Context(), marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no attempts for market")
			return
		}
		h.logger.ErrorContext(r.Context(), "latest query failed",
			slog.String("market_id", marketID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load latest attempt")
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}
