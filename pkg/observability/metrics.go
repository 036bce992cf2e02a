package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Enforcement metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	BypassesTotal    *prometheus.CounterVec

	// Entitlement resolver metrics
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionDuration   *prometheus.HistogramVec
	CatalogMissesTotal   prometheus.Counter
	LegacyFallbacksTotal prometheus.Counter

	// Entitlement cache metrics
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal prometheus.Counter

	// Store metrics
	StoreErrorsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal  *prometheus.CounterVec
	AuditDropsTotal   prometheus.Counter
	AuditPurgedEvents prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_decisions_total",
				Help: "Total number of enforcement decisions by outcome",
			},
			[]string{"outcome"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_decision_duration_seconds",
				Help:    "Enforcement decision duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"outcome"},
		),
		BypassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_rbac_bypasses_total",
				Help: "Total number of RBAC bypasses by kind (super_admin, org_admin)",
			},
			[]string{"kind"},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_entitlement_resolutions_total",
				Help: "Total number of entitlement resolutions by source",
			},
			[]string{"source"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_entitlement_resolution_duration_seconds",
				Help:    "Entitlement resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cached"},
		),
		CatalogMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_catalog_misses_total",
				Help: "Total number of resolutions against module keys unknown to the catalog",
			},
		),
		LegacyFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_legacy_fallbacks_total",
				Help: "Total number of resolutions served from the legacy enabled_modules map",
			},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_entitlement_cache_hits_total",
				Help: "Total number of entitlement cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_entitlement_cache_misses_total",
				Help: "Total number of entitlement cache misses",
			},
		),
		CacheInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_entitlement_cache_invalidations_total",
				Help: "Total number of entitlement cache invalidations",
			},
		),

		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_store_errors_total",
				Help: "Total number of store errors",
			},
			[]string{"operation"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_audit_events_total",
				Help: "Total number of audit events recorded by type",
			},
			[]string{"event_type"},
		),
		AuditDropsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_audit_drops_total",
				Help: "Total number of audit events dropped because the sink failed",
			},
		),
		AuditPurgedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_audit_purged_events_total",
				Help: "Total number of decision audit events purged by retention",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.BypassesTotal,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.CatalogMissesTotal,
		m.LegacyFallbacksTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.StoreErrorsTotal,
		m.AuditEventsTotal,
		m.AuditDropsTotal,
		m.AuditPurgedEvents,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
