// Package metrics provides Prometheus metrics for the tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attention_tracker"

// Metrics holds all Prometheus metrics of the tracker.
type Metrics struct {
	// Ingestion
	ScansIngested prometheus.Counter
	ScansDropped  *prometheus.CounterVec

	// Zones
	ZoneTransitions *prometheus.CounterVec
	ActiveTokens    prometheus.Gauge
	SweepDuration   prometheus.Histogram

	// Notifications
	Notifications       *prometheus.CounterVec
	CheckpointsNotified *prometheus.CounterVec

	// External calls
	ExternalErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all metrics and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ScansIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "scans_ingested_total",
			Help:      "Total number of scan events stored",
		}),
		ScansDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "scans_dropped_total",
			Help:      "Total number of scan events dropped",
		}, []string{"reason"}),

		ZoneTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "transitions_total",
			Help:      "Total number of applied zone entries and exits",
		}, []string{"zone", "direction"}),
		ActiveTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "active_tokens",
			Help:      "Tokens occupying at least one zone at the last sweep",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of reevaluation sweeps",
			Buckets:   prometheus.DefBuckets,
		}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Zone-entry notification attempts by result",
		}, []string{"zone", "result"}),
		CheckpointsNotified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "checkpoints_notified_total",
			Help:      "Checkpoint notifications delivered",
		}, []string{"multiple"}),

		ExternalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "errors_total",
			Help:      "Failed calls to external services",
		}, []string{"service"}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
