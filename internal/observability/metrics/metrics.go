package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblioteca_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biblioteca_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	checkoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biblioteca_checkout_duration_seconds",
		Help:    "Duration of checkout attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	returnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblioteca_returns_total",
		Help: "Count of return attempts by result",
	}, []string{"result"})

	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblioteca_ledger_reservations_total",
		Help: "Ledger reserve/release outcomes",
	}, []string{"outcome"})

	ledgerInconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblioteca_ledger_inconsistencies_total",
		Help: "Integrity violations detected by the availability ledger",
	}, []string{"kind"})

	activeLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "biblioteca_active_loans",
		Help: "Number of unreturned loans (logical state)",
	})

	overdueSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblioteca_overdue_sweep_total",
		Help: "Count of overdue sweep runs and marked loans",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCheckout records the duration of a checkout attempt with a result label.
func ObserveCheckout(result string, duration time.Duration) {
	checkoutDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveReturn increments the return counter for the given result.
func ObserveReturn(result string) {
	returnsTotal.WithLabelValues(result).Inc()
}

// ObserveReservation records a ledger reserve/release outcome.
func ObserveReservation(outcome string) {
	reservationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLedgerInconsistency records a detected integrity violation.
func ObserveLedgerInconsistency(kind string) {
	ledgerInconsistencies.WithLabelValues(kind).Inc()
}

// IncrementActiveLoans increments the active loan gauge.
func IncrementActiveLoans() {
	activeLoans.Inc()
}

// DecrementActiveLoans decrements the active loan gauge.
func DecrementActiveLoans() {
	activeLoans.Dec()
}

// SetActiveLoans sets the active loan gauge to a specific count.
func SetActiveLoans(count int) {
	if count < 0 {
		count = 0
	}
	activeLoans.Set(float64(count))
}

// ObserveOverdueSweep records an overdue sweep outcome.
func ObserveOverdueSweep(result string) {
	overdueSweeps.WithLabelValues(result).Inc()
}
