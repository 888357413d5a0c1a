// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterDatasetsTotal        *prometheus.CounterVec
	harvesterItemFailuresTotal    *prometheus.CounterVec
	harvesterFetchRetriesTotal    prometheus.Counter
	harvesterRecoveryBatchesTotal *prometheus.CounterVec
	harvesterActiveWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterDatasetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_datasets_total",
				Help: "Total number of ingested datasets, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		harvesterItemFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_item_failures_total",
				Help: "Total number of failed items, labeled by provider and error kind.",
			},
			[]string{"provider", "kind"},
		)

		harvesterFetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Total number of HTTP fetch retries.",
			},
		)

		harvesterRecoveryBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_recovery_batches_total",
				Help: "Total number of recovery batches, labeled by action (written, replayed).",
			},
			[]string{"action"},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently writing to the catalog.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDataset increments the dataset counter for one ingestion
// outcome.
func ObserveDataset(provider, outcome string) {
	harvesterDatasetsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveItemFailure increments the failure counter for one error
// kind.
func ObserveItemFailure(provider, kind string) {
	harvesterItemFailuresTotal.WithLabelValues(provider, kind).Inc()
}

// ObserveFetchRetry increments the fetch retry counter.
func ObserveFetchRetry() {
	harvesterFetchRetriesTotal.Inc()
}

// ObserveRecoveryBatch increments the recovery batch counter.
func ObserveRecoveryBatch(action string) {
	harvesterRecoveryBatchesTotal.WithLabelValues(action).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	harvesterActiveWorkers.Dec()
}
