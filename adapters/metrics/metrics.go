// Package metrics provides Prometheus metrics collection for coworkbill.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coworkbill"

// Collector holds all Prometheus metrics for coworkbill.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Recurring check metrics
	ChecksTotal       *prometheus.CounterVec
	CheckDuration     prometheus.Histogram
	LastCheck         prometheus.Gauge
	InvoicesOverdue   prometheus.Counter
	InvoicesGenerated prometheus.Counter
	DuplicatesAvoided prometheus.Counter
	GroupsSkipped     *prometheus.CounterVec
	TenantFailures    prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recurring_checks_total",
				Help:      "Recurring billing checks by result",
			},
			[]string{"result"},
		),
		CheckDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recurring_check_duration_seconds",
				Help:      "Duration of one recurring billing check",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		LastCheck: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recurring_last_check_timestamp",
				Help:      "Unix timestamp of the last completed check",
			},
		),
		InvoicesOverdue: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_marked_overdue_total",
				Help:      "Invoices transitioned from unpaid to overdue",
			},
		),
		InvoicesGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_generated_total",
				Help:      "Successor invoices created by the recurring check",
			},
		),
		DuplicatesAvoided: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_duplicates_avoided_total",
				Help:      "Successor invoices not created because the cycle already had one",
			},
		),
		GroupsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_groups_skipped_total",
				Help:      "Resource groups skipped by reason",
			},
			[]string{"reason"},
		),
		TenantFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_failures_total",
				Help:      "Tenants whose processing failed during a check",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}

// NormalizePath collapses IDs in billing paths to keep label cardinality
// bounded, e.g. /api/billing/u1/b2/pay -> /api/billing/{userId}/{billId}/pay.
func NormalizePath(path string) string {
	const prefix = "/api/billing"
	if !strings.HasPrefix(path, prefix) {
		if len(path) > 50 {
			return path[:50] + "..."
		}
		return path
	}

	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || rest == "stats" || rest == "check" {
		return path
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return prefix + "/{userId}"
	case 2:
		return prefix + "/{userId}/{billId}"
	default:
		return prefix + "/{userId}/{billId}/" + strings.Join(parts[2:], "/")
	}
}
