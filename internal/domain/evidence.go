package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EvidenceVersion is the current evidence package schema version.
const EvidenceVersion = "1.0"

// ResolutionClaim is the outcome the resolver asserts inside an evidence
// package.
type ResolutionClaim struct {
	Outcome     bool      `json:"outcome"`
	Confidence  int       `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	SubmittedBy string    `json:"submitted_by"`
}

// Verification is the cross-source audit block of an evidence package.
type Verification struct {
	// MultiSourceAgreement is true when fewer than two numeric sources exist
	// (vacuous) or when all numeric observations deviate from their mean by
	// less than one percent.
	MultiSourceAgreement bool `json:"multi_source_agreement"`
	SourcesUsed          int  `json:"sources_used"`
	// DataFreshnessSec is the age in seconds of the oldest source used.
	DataFreshnessSec int64  `json:"data_freshness_sec"`
	BiasCheck        string `json:"bias_check"`
}

// EvidenceMetadata is the only part of an evidence package written after
// creation: the content ID and canonical size once stored, then the chain
// receipt once submitted. Treat as append-only. The content ID is derived
// with this block zeroed, so none of these fields affect the address.
type EvidenceMetadata struct {
	ContentID   string `json:"content_id,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// EvidencePackage is the immutable, publishable artifact backing one
// resolution attempt. Its content ID is derived from its canonical JSON form
// with Metadata zeroed, so the same evidence always addresses the same
// object.
type EvidencePackage struct {
	Version      string           `json:"version"`
	MarketID     string           `json:"market_id"`
	Market       Market           `json:"market"`
	Resolution   ResolutionClaim  `json:"resolution"`
	Sources      []SourceData     `json:"sources"`
	AIAnalysis   Verdict          `json:"ai_analysis"`
	Verification Verification     `json:"verification"`
	Metadata     EvidenceMetadata `json:"metadata"`
}

// EvidenceStore persists evidence packages in content-addressed storage.
type EvidenceStore interface {
	// Store uploads the package and returns its content ID. Storing
	// byte-identical evidence for the same market is idempotent: the cached
	// content ID is returned without a second upload.
	Store(ctx context.Context, pkg *EvidencePackage) (string, error)
	// Retrieve fetches and decodes a stored package for audit and dispute
	// flows, verifying its digest against the content ID.
	Retrieve(ctx context.Context, contentID string) (*EvidencePackage, error)
	// Verify checks that the content ID is retrievable.
	Verify(ctx context.Context, contentID string) (bool, error)
}

// ResolutionResult is the terminal output of one successful pipeline run.
type ResolutionResult struct {
	MarketID    string          `json:"market_id"`
	Outcome     bool            `json:"outcome"`
	Confidence  int             `json:"confidence"`
	EvidenceCID string          `json:"evidence_cid"`
	TxHash      string          `json:"tx_hash"`
	GasUsed     uint64          `json:"gas_used"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
	Duration    time.Duration   `json:"duration"`
}
