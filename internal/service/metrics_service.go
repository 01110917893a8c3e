package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the transition
// engine and provides lightweight snapshots for operational checks.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	previewTotal    *prometheus.CounterVec
	closureTotal    *prometheus.CounterVec
	closureDuration prometheus.Observer
	chargesTotal    *prometheus.CounterVec
	batchOutcomes   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	previewCount         uint64
	closureCount         uint64
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	previewTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_previews_total",
		Help: "Total transition previews computed",
	}, []string{"source"})

	closureTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_closures_total",
		Help: "Total module closures by result",
	}, []string{"result"})

	closureDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "transition_closure_duration_seconds",
		Help:    "Duration of module closure transactions",
		Buckets: prometheus.DefBuckets,
	})

	chargesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_charges_total",
		Help: "Total billing charges attempted by outcome",
	}, []string{"outcome"})

	batchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_batch_cohorts_total",
		Help: "Total cohorts handled by batch runs, by terminal state",
	}, []string{"state"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio,
		cacheHits, cacheMisses, previewTotal, closureTotal, closureDuration,
		chargesTotal, batchOutcomes, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		previewTotal:    previewTotal,
		closureTotal:    closureTotal,
		closureDuration: closureDuration,
		chargesTotal:    chargesTotal,
		batchOutcomes:   batchOutcomes,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordPreview counts a computed preview. Source is "cache" or "computed".
func (m *MetricsService) RecordPreview(source string) {
	if m == nil {
		return
	}
	m.previewTotal.WithLabelValues(source).Inc()
	atomic.AddUint64(&m.previewCount, 1)
}

// RecordClosure counts a closure attempt by result and tracks its duration.
func (m *MetricsService) RecordClosure(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.closureTotal.WithLabelValues(result).Inc()
	m.closureDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.closureCount, 1)
}

// RecordCharge counts a billing charge attempt. Outcome is "created",
// "failed" or "reconciled".
func (m *MetricsService) RecordCharge(outcome string) {
	if m == nil {
		return
	}
	m.chargesTotal.WithLabelValues(outcome).Inc()
}

// RecordBatchOutcome counts one cohort's terminal state within a batch run.
func (m *MetricsService) RecordBatchOutcome(state string) {
	if m == nil {
		return
	}
	m.batchOutcomes.WithLabelValues(state).Inc()
}

// Snapshot returns aggregated metrics suitable for the status endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		PreviewsTotal:            atomic.LoadUint64(&m.previewCount),
		ClosuresTotal:            atomic.LoadUint64(&m.closureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
