// Package driver defines the outbound contract of action stages and the
// built-in driver implementations: HTTP callback, NATS key-value, Kafka
// event log and an embedded expression script. A driver's type is
// structural for its owning node; everything a driver does is contained
// at the action-stage boundary and never aborts a frame.
package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// Measurement is the numeric record delivered to a sink on cadence.
type Measurement struct {
	SourceNodeID     string            `json:"source_node_id"`
	ConcentrationPPM float64           `json:"concentration_ppm"`
	PeakFrequency    float64           `json:"peak_frequency"`
	PeakAmplitude    float64           `json:"peak_amplitude"`
	Timestamp        time.Time         `json:"timestamp"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Alert is the record delivered when a threshold is crossed.
type Alert struct {
	Kind      string         `json:"kind"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Status is the health document a driver reports on demand.
type Status struct {
	Kind         string         `json:"kind"`
	Healthy      bool           `json:"healthy"`
	Deliveries   uint64         `json:"deliveries"`
	Failures     uint64         `json:"failures"`
	LastDelivery time.Time      `json:"last_delivery,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Driver is the pluggable outbound capability of an action stage.
type Driver interface {
	// Initialize prepares external resources. Called once before the
	// first delivery.
	Initialize(ctx context.Context) error
	// UpdateAction delivers the latest measurement.
	UpdateAction(ctx context.Context, m Measurement) error
	// ShowAlert delivers an alert record.
	ShowAlert(ctx context.Context, a Alert) error
	// ClearAction withdraws a previously shown alert.
	ClearAction(ctx context.Context) error
	// Status reports driver health and delivery counters.
	Status() Status
	// Shutdown releases external resources.
	Shutdown(ctx context.Context) error
}

// Driver kind tags accepted in descriptors.
const (
	KindHTTP   = "http"
	KindKV     = "kv"
	KindKafka  = "kafka"
	KindScript = "script"
)

// New builds a driver from its kind tag and parameter document.
func New(kind string, params map[string]any, deps node.Dependencies) (Driver, error) {
	switch kind {
	case KindHTTP:
		return newHTTPDriver(params, deps)
	case KindKV:
		return newKVDriver(params, deps)
	case KindKafka:
		return newKafkaDriver(params, deps)
	case KindScript:
		return newScriptDriver(params, deps)
	default:
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: driver kind %q", errors.ErrInvalidConfig, kind),
			"driver", "create", "resolving driver kind")
	}
}

// stats tracks delivery counters shared by all driver implementations.
type stats struct {
	deliveries atomic.Uint64
	failures   atomic.Uint64
	lastOK     atomic.Int64 // unix nanos of last successful delivery
}

func (s *stats) recordSuccess() {
	s.deliveries.Add(1)
	s.lastOK.Store(time.Now().UnixNano())
}

func (s *stats) recordFailure() {
	s.failures.Add(1)
}

func (s *stats) fill(status *Status) {
	status.Deliveries = s.deliveries.Load()
	status.Failures = s.failures.Load()
	if nanos := s.lastOK.Load(); nanos > 0 {
		status.LastDelivery = time.Unix(0, nanos)
	}
}
