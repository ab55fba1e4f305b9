package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	PoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgeassets_pool_size",
			Help: "Number of live slots per registered type",
		},
		[]string{"type_name"},
	)

	LeasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgeassets_leases_total",
			Help: "Total outstanding batch leases per type",
		},
		[]string{"type_name"},
	)

	// AssetIndex metrics
	IndexedAssetsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgeassets_indexed_assets_total",
			Help: "Total number of assets discovered by the last scan",
		},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forgeassets_scan_duration_seconds",
			Help:    "Time taken to scan the asset tree in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScanErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forgeassets_scan_errors_total",
			Help: "Total number of per-file errors encountered during a scan",
		},
	)

	// Resource load/bind metrics
	LoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forgeassets_load_duration_seconds",
			Help:    "Time taken to load an asset, by type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type_name"},
	)

	BindDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forgeassets_bind_duration_seconds",
			Help:    "Time taken to bind an asset's child references, by type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type_name"},
	)

	LoadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeassets_load_errors_total",
			Help: "Total number of failed asset loads, by type",
		},
		[]string{"type_name"},
	)

	// BatchRegistry metrics
	BatchesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgeassets_batches_total",
			Help: "Total number of batches by state",
		},
		[]string{"state"},
	)

	BatchLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forgeassets_batch_load_duration_seconds",
			Help:    "Time taken to fully load a batch (scan closure through bind) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchUnloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forgeassets_batch_unload_duration_seconds",
			Help:    "Time taken to fully unload a batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Strand metrics
	StrandQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgeassets_strand_queue_depth",
			Help: "Current number of queued jobs per strand",
		},
		[]string{"strand"},
	)
)

func init() {
	prometheus.MustRegister(PoolSize)
	prometheus.MustRegister(LeasesTotal)
	prometheus.MustRegister(IndexedAssetsTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScanErrorsTotal)
	prometheus.MustRegister(LoadDuration)
	prometheus.MustRegister(BindDuration)
	prometheus.MustRegister(LoadErrorsTotal)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchLoadDuration)
	prometheus.MustRegister(BatchUnloadDuration)
	prometheus.MustRegister(StrandQueueDepth)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
