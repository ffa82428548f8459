// Package telemetry exposes the daemon's Prometheus metrics. One Metrics
// value is shared by the pollers, the ingest client, and the monitor server;
// all methods are nil-safe so offline commands can run without a registry.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by tick and source-request counters.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Metrics holds all Prometheus collectors for flockwatch.
type Metrics struct {
	Ticks             *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	CommentsIngested  *prometheus.CounterVec
	WindowsScored     *prometheus.CounterVec
	Alerts            *prometheus.CounterVec
	CoordinationScore *prometheus.GaugeVec
	SourceRequests    *prometheus.CounterVec
	BudgetRemaining   prometheus.Gauge
}

// NewMetrics creates the collector set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockwatch_ticks_total",
				Help: "Poll ticks executed per video by outcome",
			},
			[]string{"video_id", "status"},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flockwatch_tick_duration_seconds",
				Help:    "Duration of poll ticks in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		CommentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockwatch_comments_ingested_total",
				Help: "New comments persisted per video",
			},
			[]string{"video_id"},
		),

		WindowsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockwatch_windows_scored_total",
				Help: "Windows evaluated against a warm baseline per video",
			},
			[]string{"video_id"},
		),

		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockwatch_alerts_total",
				Help: "Alerts raised per video by category",
			},
			[]string{"video_id", "category"},
		),

		CoordinationScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flockwatch_coordination_score",
				Help: "Most recent coordination score per video",
			},
			[]string{"video_id"},
		),

		SourceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockwatch_source_requests_total",
				Help: "Comment source API requests by outcome",
			},
			[]string{"status"},
		),

		BudgetRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flockwatch_budget_remaining",
				Help: "Source API requests left in today's budget",
			},
		),
	}

	reg.MustRegister(
		m.Ticks,
		m.TickDuration,
		m.CommentsIngested,
		m.WindowsScored,
		m.Alerts,
		m.CoordinationScore,
		m.SourceRequests,
		m.BudgetRemaining,
	)

	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics registered on the default
// Prometheus registry, creating it on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick counts one poll tick and its duration.
func (m *Metrics) RecordTick(videoID, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(videoID, status).Inc()
	m.TickDuration.Observe(seconds)
}

// RecordIngested counts newly persisted comments.
func (m *Metrics) RecordIngested(videoID string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CommentsIngested.WithLabelValues(videoID).Add(float64(n))
}

// RecordScore counts a scored window and tracks the latest score.
func (m *Metrics) RecordScore(videoID string, score float64) {
	if m == nil {
		return
	}
	m.WindowsScored.WithLabelValues(videoID).Inc()
	m.CoordinationScore.WithLabelValues(videoID).Set(score)
}

// RecordAlerts counts raised alerts by category.
func (m *Metrics) RecordAlerts(videoID string, categories []string) {
	if m == nil {
		return
	}
	for _, category := range categories {
		m.Alerts.WithLabelValues(videoID, category).Inc()
	}
}

// RecordSourceRequest counts one source API request by outcome.
func (m *Metrics) RecordSourceRequest(status string) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(status).Inc()
}

// SetBudgetRemaining tracks how much of today's source budget is left.
func (m *Metrics) SetBudgetRemaining(remaining int64) {
	if m == nil {
		return
	}
	m.BudgetRemaining.Set(float64(remaining))
}
