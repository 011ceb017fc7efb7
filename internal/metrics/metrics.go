// Package metrics provides Prometheus metrics for the resolution pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// Metrics collects resolution pipeline metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	InFlight           prometheus.Gauge

	SourceFetches    *prometheus.CounterVec
	SourceConfidence *prometheus.HistogramVec

	VerdictConfidence prometheus.Histogram
	TokensUsed        prometheus.Counter
	AnalysisCostUSD   prometheus.Counter

	GasPriceWei   prometheus.Gauge
	GasUsed       prometheus.Counter
	EvidenceBytes prometheus.Histogram
}

// New creates the pipeline metrics collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclebot_resolutions_total",
				Help: "Resolution attempts by terminal status",
			},
			[]string{"status"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oraclebot_resolution_duration_seconds",
				Help:    "End to end resolution latency",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oraclebot_stage_duration_seconds",
				Help:    "Per stage latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"stage"},
		),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oraclebot_resolutions_in_flight",
			Help: "Resolutions currently running",
		}),

		SourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclebot_source_fetches_total",
				Help: "Adapter fetches by source and result",
			},
			[]string{"source", "result"},
		),
		SourceConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oraclebot_source_confidence",
				Help:    "Adapter heuristic confidence scores",
				Buckets: prometheus.LinearBuckets(0, 1000, 11),
			},
			[]string{"source"},
		),

		VerdictConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oraclebot_verdict_confidence",
			Help:    "Model verdict confidence",
			Buckets: prometheus.LinearBuckets(0, 1000, 11),
		}),
		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oraclebot_analysis_tokens_total",
			Help: "Chat completion tokens consumed",
		}),
		AnalysisCostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oraclebot_analysis_cost_usd_total",
			Help: "Estimated model spend in USD",
		}),

		GasPriceWei: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oraclebot_gas_price_wei",
			Help: "Last observed network gas price",
		}),
		GasUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oraclebot_gas_used_total",
			Help: "Gas spent on confirmed resolutions",
		}),
		EvidenceBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oraclebot_evidence_bytes",
			Help:    "Stored evidence package sizes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}

	registry.MustRegister(
		m.ResolutionsTotal, m.ResolutionDuration, m.StageDuration, m.InFlight,
		m.SourceFetches, m.SourceConfidence,
		m.VerdictConfidence, m.TokensUsed, m.AnalysisCostUSD,
		m.GasPriceWei, m.GasUsed, m.EvidenceBytes,
	)
	return m
}

// Registry returns the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOutcome records the terminal status of one resolution.
func (m *Metrics) ObserveOutcome(err error, seconds float64) {
	status := "success"
	if err != nil {
		status = domain.ErrorKind(err)
	}
	m.ResolutionsTotal.WithLabelValues(status).Inc()
	m.ResolutionDuration.WithLabelValues(status).Observe(seconds)
}
