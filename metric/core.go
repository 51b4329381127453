package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the engine-level metrics shared by the pipeline,
// dispatcher and gateway. Stage-specific metrics register themselves
// through the Registry.
type Metrics struct {
	// Pipeline metrics
	FramesProcessed *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	FrameErrors     *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec

	// Reconfiguration metrics
	HotReloads    *prometheus.CounterVec
	GraphRebuilds prometheus.Counter
	ConfigVersion prometheus.Gauge

	// Action metrics
	ActionTriggers *prometheus.CounterVec
	DriverFailures *prometheus.CounterVec
}

// NewMetrics creates the engine metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "pipeline",
				Name:      "frames_processed_total",
				Help:      "Total number of frames processed per stage",
			},
			[]string{"stage"},
		),

		FramesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "pipeline",
				Name:      "frames_dropped_total",
				Help:      "Frames dropped by the producer because the pipeline was busy",
			},
		),

		FrameErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "pipeline",
				Name:      "frame_errors_total",
				Help:      "Frame-scoped processing errors per stage and error class",
			},
			[]string{"stage", "class"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "photoacoustic",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Per-stage frame processing duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
			},
			[]string{"stage"},
		),

		HotReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "reload",
				Name:      "hot_reloads_total",
				Help:      "Per-node hot reload attempts by outcome",
			},
			[]string{"outcome"},
		),

		GraphRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "reload",
				Name:      "graph_rebuilds_total",
				Help:      "Full graph rebuilds performed by the dispatcher",
			},
		),

		ConfigVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "photoacoustic",
				Subsystem: "config",
				Name:      "revision",
				Help:      "Monotonic revision of the active configuration",
			},
		),

		ActionTriggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "action",
				Name:      "triggers_total",
				Help:      "Action stage trigger evaluations by node and kind",
			},
			[]string{"node", "kind"},
		),

		DriverFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "photoacoustic",
				Subsystem: "action",
				Name:      "driver_failures_total",
				Help:      "Driver delivery failures contained at the action boundary",
			},
			[]string{"node", "driver"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FramesProcessed,
		m.FramesDropped,
		m.FrameErrors,
		m.StageDuration,
		m.HotReloads,
		m.GraphRebuilds,
		m.ConfigVersion,
		m.ActionTriggers,
		m.DriverFailures,
	}
}
