// Package telemetry exposes the counters of a swarm for offline analysis:
// export sizes, logs created and collected, delivery delay and ratio.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

const namespace = "warehouse"

// Metrics groups the collectors of one swarm. Each instance registers on its
// own registerer so that simulations and tests do not share state.
type Metrics struct {
	Rounds          prometheus.Counter
	ExportSize      prometheus.Histogram
	Oversized       prometheus.Counter
	LogsCreated     *prometheus.CounterVec
	LogsCollected   prometheus.Counter
	UniqueDelivered prometheus.Counter
	NonUnique       prometheus.Counter
	DeliveryDelay   prometheus.Histogram
	DeliveryRatio   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "total",
			Help:      "Rounds executed by all devices.",
		}),
		ExportSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "export_size_bytes",
			Help:      "Encoded size of round exports.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 9),
		}),
		Oversized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "oversized_total",
			Help:      "Exports dropped for exceeding the message size limit.",
		}),
		LogsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "created_total",
			Help:      "Log entries created, by type.",
		}, []string{"type"}),
		LogsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "collected_total",
			Help:      "Log entries output by sinks, repetitions included.",
		}),
		UniqueDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "delivered_unique_total",
			Help:      "Distinct log entries reaching at least one sink.",
		}),
		NonUnique: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "delivered_repeated_total",
			Help:      "Log entries output again after their first delivery.",
		}),
		DeliveryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "delivery_delay_seconds",
			Help:      "Shared clock time between creation and first delivery of a log.",
			Buckets:   prometheus.LinearBuckets(0.5, 0.5, 20),
		}),
		DeliveryRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "delivery_ratio",
			Help:      "Fraction of created logs delivered at least once.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Rounds, m.ExportSize, m.Oversized, m.LogsCreated, m.LogsCollected,
			m.UniqueDelivered, m.NonUnique, m.DeliveryDelay, m.DeliveryRatio)
	}
	return m
}

// ObserveExport records the size of an export handed to the radio
func (m *Metrics) ObserveExport(size int, oversized bool) {
	m.ExportSize.Observe(float64(size))
	if oversized {
		m.Oversized.Inc()
	}
}

// ObserveRound counts one executed round
func (m *Metrics) ObserveRound() {
	m.Rounds.Inc()
}

func typeLabel(e logset.Entry, names func(uint8) string) string {
	if names != nil {
		return names(e.Type)
	}
	return "unknown"
}
