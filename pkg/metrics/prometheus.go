package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheOps        *prometheus.CounterVec
	apiCalls        *prometheus.CounterVec
	apiCost         *prometheus.CounterVec
	budgetUsage     *prometheus.GaugeVec
	analysisLatency *prometheus.HistogramVec
	signalsCreated  *prometheus.CounterVec
	feedReconnects  *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	errorsTotal     *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cacheOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_cache_ops_total",
				Help: "Indicator cache operations by outcome",
			},
			[]string{"outcome"},
		),
		apiCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_provider_calls_total",
				Help: "Provider REST calls by endpoint",
			},
			[]string{"endpoint"},
		),
		apiCost: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_provider_call_cost_total",
				Help: "Provider budget units consumed by endpoint",
			},
			[]string{"endpoint"},
		),
		budgetUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_budget_usage_percent",
				Help: "Rate-limit window usage percentage",
			},
			[]string{"window"},
		),
		analysisLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_analysis_duration_seconds",
				Help:    "Per-layer analysis duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"layer"},
		),
		signalsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_signals_created_total",
				Help: "Persisted signals by market and strength",
			},
			[]string{"market", "strength"},
		),
		feedReconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_feed_reconnects_total",
				Help: "Feed reconnect attempts by segment",
			},
			[]string{"segment"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_scan_queue_depth",
				Help: "Scan candidate queue depth",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordCacheHit()   { r.cacheOps.WithLabelValues("hit").Inc() }
func (r *Recorder) RecordCacheMiss()  { r.cacheOps.WithLabelValues("miss").Inc() }
func (r *Recorder) RecordCacheError() { r.cacheOps.WithLabelValues("error").Inc() }

// RecordAPICall records one provider call and its budget cost.
func (r *Recorder) RecordAPICall(endpoint string, cost int) {
	r.apiCalls.WithLabelValues(endpoint).Inc()
	r.apiCost.WithLabelValues(endpoint).Add(float64(cost))
}

// RecordBudgetUsage records a window's usage percentage.
func (r *Recorder) RecordBudgetUsage(window string, usedPercent float64) {
	r.budgetUsage.WithLabelValues(window).Set(usedPercent)
}

// RecordAnalysisLatency records one layer run duration.
func (r *Recorder) RecordAnalysisLatency(layer string, seconds float64) {
	r.analysisLatency.WithLabelValues(layer).Observe(seconds)
}

// RecordSignalCreated counts a persisted signal.
func (r *Recorder) RecordSignalCreated(market string, strength string) {
	r.signalsCreated.WithLabelValues(market, strength).Inc()
}

// RecordFeedReconnect counts a reconnect attempt for a segment.
func (r *Recorder) RecordFeedReconnect(segment string) {
	r.feedReconnects.WithLabelValues(segment).Inc()
}

// RecordQueueDepth records the current scan queue depth.
func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
