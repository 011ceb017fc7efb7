// Package evidence builds and stores the auditable artifact behind every
// resolution: what the sources said, what the model concluded, and the
// cross-checks applied, addressed by the digest of its canonical form.
package evidence

import (
	"fmt"
	"math"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// agreementTolerance is the max relative deviation from the mean for numeric
// observations to count as agreeing.
const agreementTolerance = 0.01

// Compile assembles an evidence package from the pipeline's intermediate
// results. Metadata stays zero; Store fills the content ID afterwards.
func Compile(m domain.Market, sources []domain.SourceData, verdict domain.Verdict, resolver string) *domain.EvidencePackage {
	now := time.Now().UTC()
	return &domain.EvidencePackage{
		Version:  domain.EvidenceVersion,
		MarketID: m.ID,
		Market:   m,
		Resolution: domain.ResolutionClaim{
			Outcome:     verdict.Outcome,
			Confidence:  verdict.Confidence,
			Timestamp:   now,
			SubmittedBy: resolver,
		},
		Sources:    sources,
		AIAnalysis: verdict,
		Verification: domain.Verification{
			MultiSourceAgreement: multiSourceAgreement(sources),
			SourcesUsed:          len(sources),
			DataFreshnessSec:     oldestSourceAge(sources, now),
			BiasCheck:            biasCheck(sources, verdict),
		},
	}
}

// multiSourceAgreement reports whether the numeric observations across
// sources agree within tolerance of their mean. Fewer than two numeric
// observations is vacuous agreement.
func multiSourceAgreement(sources []domain.SourceData) bool {
	var values []float64
	for _, s := range sources {
		if s.Data == nil {
			continue
		}
		if v, ok := s.Data.NumericValue(); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return true
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		for _, v := range values {
			if v != 0 {
				return false
			}
		}
		return true
	}
	for _, v := range values {
		if math.Abs(v-mean)/math.Abs(mean) >= agreementTolerance {
			return false
		}
	}
	return true
}

// oldestSourceAge returns the age in seconds of the stalest source.
func oldestSourceAge(sources []domain.SourceData, now time.Time) int64 {
	var oldest time.Time
	for _, s := range sources {
		if s.FetchedAt.IsZero() {
			continue
		}
		if oldest.IsZero() || s.FetchedAt.Before(oldest) {
			oldest = s.FetchedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	age := now.Sub(oldest)
	if age < 0 {
		return 0
	}
	return int64(age.Seconds())
}

// biasCheck summarizes the diversity of the inputs behind the verdict so a
// reviewer can judge over-reliance on one provider at a glance.
func biasCheck(sources []domain.SourceData, verdict domain.Verdict) string {
	providers := make(map[string]bool, len(sources))
	for _, s := range sources {
		providers[s.Source] = true
	}
	switch {
	case len(providers) == 0:
		return "no sources"
	case len(providers) == 1:
		return fmt.Sprintf("single provider (%d observation(s)); verdict rests on one source", len(sources))
	default:
		return fmt.Sprintf("%d independent providers, %d observations, %d warning(s) from model",
			len(providers), len(sources), len(verdict.Warnings))
	}
}
