// Package metrics provides Prometheus instrumentation for the library server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "library"

// Metrics holds every collector exported by the server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Circulation
	LoansIssued       prometheus.Counter
	LoansReturned     prometheus.Counter
	FinesAssessed     prometheus.Counter
	LedgerRejections  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OverdueLoans      prometheus.Gauge
	ReportCacheHits   prometheus.Counter
	ReportCacheMisses prometheus.Counter

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LoansIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_issued_total",
			Help:      "Total number of books issued.",
		}),
		LoansReturned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_returned_total",
			Help:      "Total number of books returned.",
		}),
		FinesAssessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fines_assessed_total",
			Help:      "Total fines recorded on return, in currency units.",
		}),
		LedgerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rejections_total",
			Help:      "Issue and return requests rejected, by reason.",
		}, []string{"reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Duration of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		OverdueLoans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_loans",
			Help:      "Overdue loans at the last dashboard refresh.",
		}),
		ReportCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_hits_total",
			Help:      "Dashboard reads served from cache.",
		}),
		ReportCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_misses_total",
			Help:      "Dashboard reads computed from the database.",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIssue counts a successful issue.
func (m *Metrics) RecordIssue(d time.Duration) {
	if m == nil {
		return
	}
	m.LoansIssued.Inc()
	m.OperationDuration.WithLabelValues("issue").Observe(d.Seconds())
}

// RecordReturn counts a successful return and the fine it assessed.
func (m *Metrics) RecordReturn(d time.Duration, fine float64) {
	if m == nil {
		return
	}
	m.LoansReturned.Inc()
	if fine > 0 {
		m.FinesAssessed.Add(fine)
	}
	m.OperationDuration.WithLabelValues("return").Observe(d.Seconds())
}

// RecordRejection counts a ledger operation refused for reason.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.LedgerRejections.WithLabelValues(reason).Inc()
}

// RecordCacheLookup counts a report cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ReportCacheHits.Inc()
	} else {
		m.ReportCacheMisses.Inc()
	}
}

// SetOverdueLoans publishes the overdue count.
func (m *Metrics) SetOverdueLoans(n int64) {
	if m == nil {
		return
	}
	m.OverdueLoans.Set(float64(n))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
