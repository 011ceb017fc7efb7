package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// EvidenceHandler serves the evidence audit endpoints.
type EvidenceHandler struct {
	store  domain.EvidenceStore
	logger *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler over the given store.
func NewEvidenceHandler(store domain.EvidenceStore, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{store: store, logger: logHandler(logger, "evidence")}
}

// Get retrieves a stored evidence package by content ID, verifying its digest.
// GET /api/evidence/{cid}
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	cid := pathParam(r, "cid")

	pkg, err := h.store.Retrieve(r.Context(), cid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "evidence not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "evidence retrieval failed",
			slog.String("cid", cid), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to retrieve evidence")
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// Verify reports whether a content ID is retrievable from storage.
// GET /api/evidence/{cid}/verify
func (h *EvidenceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	cid := pathParam(r, "cid")

	ok, err := h.store.Verify(r.Context(), cid)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "evidence verify failed",
			slog.String("cid", cid), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to verify evidence")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cid": cid, "verified": ok})
}
