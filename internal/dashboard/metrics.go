package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the dashboard pipeline
type Metrics struct {
	snapshots      *prometheus.CounterVec
	invalid        *prometheus.CounterVec
	redraws        *prometheus.CounterVec
	droppedSamples prometheus.Counter
	evicted        prometheus.Counter
	droppedEvents  prometheus.Counter
	actions        *prometheus.CounterVec
	locateFailures prometheus.Counter
	handlerLatency prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flight_snapshots_total",
			Help: "Telemetry snapshots handled, by topic.",
		}, []string{"topic"}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flight_snapshots_invalid_total",
			Help: "Telemetry payloads dropped because they failed to decode, by topic.",
		}, []string{"topic"}),
		redraws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flight_chart_redraws_total",
			Help: "Strip chart redraw decisions, by outcome.",
		}, []string{"outcome"}),
		droppedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flight_chart_samples_dropped_total",
			Help: "Chart samples dropped because no surface was present.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flight_chart_samples_evicted_total",
			Help: "Chart samples evicted from the sliding window.",
		}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flight_events_dropped_total",
			Help: "Events lost due to the event queue overflow policy.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flight_operator_actions_total",
			Help: "Operator actions issued, by action.",
		}, []string{"action"}),
		locateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flight_geolocation_failures_total",
			Help: "Come-here requests ignored because no position was available.",
		}),
		handlerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flight_handler_duration_seconds",
			Help:    "Time spent handling a single telemetry snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.snapshots,
			m.invalid,
			m.redraws,
			m.droppedSamples,
			m.evicted,
			m.droppedEvents,
			m.actions,
			m.locateFailures,
			m.handlerLatency,
		)
	}

	return &m
}
