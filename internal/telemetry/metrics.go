package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	AnalysisDurationMs *prometheus.HistogramVec
	VerdictTotal       *prometheus.CounterVec
	RiskScore          *prometheus.HistogramVec
	InFlight           prometheus.Gauge
	PrescreenTotal     *prometheus.CounterVec
	ProviderTotal      *prometheus.CounterVec
	RateLimitTotal     *prometheus.CounterVec
	CacheTotal         *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"endpoint", "status"}),

		AnalysisDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptguard_analysis_duration_ms",
			Help:    "End-to-end analysis duration in milliseconds (including detector latency).",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"endpoint", "cache"}),

		VerdictTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_verdict_total",
			Help: "Total analysis verdicts by outcome.",
		}, []string{"status", "risk_level", "threat_category"}),

		RiskScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptguard_risk_score",
			Help:    "Distribution of aggregate risk scores on the unit scale.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"endpoint"}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "promptguard_in_flight_requests",
			Help: "Number of analysis requests currently being processed.",
		}),

		PrescreenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_prescreen_action_total",
			Help: "Total prescreen actions taken.",
		}, []string{"check", "action"}),

		ProviderTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_provider_request_total",
			Help: "Total upstream provider requests by outcome.",
		}, []string{"provider", "model", "outcome"}),

		RateLimitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_rate_limit_total",
			Help: "Total rate limit rejections.",
		}, []string{"dimension", "client"}),

		CacheTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptguard_cache_total",
			Help: "Verdict cache lookups by outcome.",
		}, []string{"outcome"}),
	}
}

// RecordAnalysis records metrics for a completed analysis request.
func (m *Metrics) RecordAnalysis(labels AnalysisLabels) {
	category := labels.ThreatCategory
	if category == "" {
		category = "none"
	}

	m.RequestTotal.WithLabelValues(labels.Endpoint, labels.Status).Inc()
	m.AnalysisDurationMs.WithLabelValues(labels.Endpoint, labels.Cache).Observe(labels.DurationMs)
	m.VerdictTotal.WithLabelValues(labels.Status, labels.RiskLevel, category).Inc()
	m.RiskScore.WithLabelValues(labels.Endpoint).Observe(labels.RiskScore)
	m.CacheTotal.WithLabelValues(labels.Cache).Inc()
}

// RecordPrescreenAction records a prescreen check outcome.
func (m *Metrics) RecordPrescreenAction(check, action string) {
	m.PrescreenTotal.WithLabelValues(check, action).Inc()
}

// RecordProviderRequest records an upstream provider call outcome.
func (m *Metrics) RecordProviderRequest(provider, model, outcome string) {
	m.ProviderTotal.WithLabelValues(provider, model, outcome).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(dimension, client string) {
	m.RateLimitTotal.WithLabelValues(dimension, client).Inc()
}

// AnalysisLabels holds the label values for recording an analysis request.
type AnalysisLabels struct {
	Endpoint       string
	Status         string
	RiskLevel      string
	ThreatCategory string
	Cache          string
	DurationMs     float64
	RiskScore      float64
}
