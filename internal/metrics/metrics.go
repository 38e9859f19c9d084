// Package metrics exposes Prometheus collectors for the gradewatch service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitorIterationsTotal       prometheus.Counter
	monitorAccountsTotal         *prometheus.CounterVec
	monitorActiveWorkers         prometheus.Gauge
	monitorChangesTotal          *prometheus.CounterVec
	monitorNotificationsTotal    *prometheus.CounterVec
	monitorFetchDurationSeconds  prometheus.Histogram
	monitorAlertsOutstandingVecs *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		monitorIterationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gradewatch_iterations_total",
				Help: "Total number of completed polling iterations.",
			},
		)

		monitorAccountsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradewatch_accounts_processed_total",
				Help: "Total per-account fetch cycles, labeled by result.",
			},
			[]string{"result"},
		)

		monitorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gradewatch_active_workers",
				Help: "Number of workers currently running a fetch cycle.",
			},
		)

		monitorChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradewatch_changes_total",
				Help: "Detected course changes, labeled by classification.",
			},
			[]string{"classification"},
		)

		monitorNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradewatch_notifications_total",
				Help: "Notification events dispatched, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		monitorFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gradewatch_fetch_duration_seconds",
				Help:    "Histogram of per-account fetch cycle latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		monitorAlertsOutstandingVecs = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gradewatch_alerts_outstanding",
				Help: "Outstanding persisted alerts, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIteration increments the completed-iteration counter.
func ObserveIteration() {
	monitorIterationsTotal.Inc()
}

// ObserveAccount records the outcome of one per-account fetch cycle.
func ObserveAccount(result string, duration time.Duration) {
	monitorAccountsTotal.WithLabelValues(result).Inc()
	monitorFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveChanges records counts from one ChangeSet.
func ObserveChanges(added, updated, removed int) {
	if added > 0 {
		monitorChangesTotal.WithLabelValues("new").Add(float64(added))
	}
	if updated > 0 {
		monitorChangesTotal.WithLabelValues("updated").Add(float64(updated))
	}
	if removed > 0 {
		monitorChangesTotal.WithLabelValues("removed").Add(float64(removed))
	}
}

// ObserveNotifications records dispatch results.
func ObserveNotifications(delivered, failed int) {
	if delivered > 0 {
		monitorNotificationsTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if failed > 0 {
		monitorNotificationsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// SetAlertsOutstanding publishes the current alert backlog per kind.
func SetAlertsOutstanding(kind string, count int) {
	monitorAlertsOutstandingVecs.WithLabelValues(kind).Set(float64(count))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	monitorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	monitorActiveWorkers.Dec()
}
