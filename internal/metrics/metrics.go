// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	// Task metrics, labelled by nesting level ("dataset" | "chromosome" | "write")
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksAbandoned *prometheus.CounterVec
	InFlightTasks  *prometheus.GaugeVec

	// Wave metrics
	WaveDuration *prometheus.HistogramVec

	// Array metrics
	ArraysCreated prometheus.Counter
	ArraysUpdated prometheus.Counter

	// Write metrics
	BatchesWritten prometheus.Counter
	CellsWritten   prometheus.Counter

	// Teardown metrics
	CascadeCancellations prometheus.Counter
	ProcessesTerminated  prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // address for the metrics HTTP server (e.g. ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trackstore"
	}

	m := &Metrics{
		TasksCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed successfully",
			},
			[]string{"level"},
		),
		TasksFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that returned an error",
			},
			[]string{"level"},
		),
		TasksAbandoned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_abandoned_total",
				Help:      "Total number of queued tasks abandoned by pool shutdown",
			},
			[]string{"level"},
		),
		InFlightTasks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_tasks",
				Help:      "Tasks submitted but not yet resolved",
			},
			[]string{"level"},
		),
		WaveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wave_duration_seconds",
				Help:      "Time to fully drain one wave of tasks",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"level"},
		),
		ArraysCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "arrays_created_total",
				Help:      "Dense arrays created fresh",
			},
		),
		ArraysUpdated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "arrays_updated_total",
				Help:      "Existing dense arrays updated in place",
			},
		),
		BatchesWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_written_total",
				Help:      "Write batches committed to the array store",
			},
		),
		CellsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cells_written_total",
				Help:      "Coordinate cells written across all attributes",
			},
		),
		CascadeCancellations: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_cancellations_total",
				Help:      "Cascade cancellations triggered by failure or interrupt",
			},
		),
		ProcessesTerminated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processes_terminated_total",
				Help:      "Descendant OS processes signalled during teardown",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil if Init was never called.
// Callers must nil-check the result.
func Get() *Metrics {
	return defaultMetrics
}

// Serve starts the metrics HTTP server if enabled. Non-blocking.
func Serve(cfg Config) {
	if !cfg.Enabled {
		return
	}
	addr := cfg.Address
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
