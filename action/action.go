// Package action implements the action stage: it watches the analytics
// scoreboard for monitored computing nodes, keeps a bounded history of
// measurements, and forwards measurements and threshold alerts to a
// pluggable driver on a configured cadence.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/action/driver"
	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
	"github.com/sctg-development/rust-photoacoustic-sub001/pkg/buffer"
)

// TypeAction is the catalog tag of the action stage.
const TypeAction = "action"

type actionParams struct {
	monitored      []string
	concThreshold  float64
	ampThreshold   float64
	updateInterval time.Duration
	severity       string
	driverTimeout  time.Duration
}

func parseActionParams(params map[string]any) (*actionParams, error) {
	monitored, err := node.StringSliceParam(params, "monitored_node_ids")
	if err != nil {
		return nil, err
	}
	if len(monitored) == 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: monitored_node_ids must not be empty", errors.ErrInvalidConfig),
			"action", "validate", "checking monitored nodes")
	}

	concThreshold, err := node.OptionalFloatParam(params, "concentration_threshold", 0)
	if err != nil {
		return nil, err
	}
	ampThreshold, err := node.OptionalFloatParam(params, "amplitude_threshold", 0)
	if err != nil {
		return nil, err
	}
	if concThreshold < 0 || ampThreshold < 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: thresholds must not be negative", errors.ErrInvalidConfig),
			"action", "validate", "checking thresholds")
	}

	intervalMS, err := node.OptionalIntParam(params, "update_interval_ms", 1000)
	if err != nil {
		return nil, err
	}
	if intervalMS < 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: update_interval_ms must not be negative", errors.ErrInvalidConfig),
			"action", "validate", "checking cadence")
	}

	severity, err := node.OptionalStringParam(params, "alert_severity", "warning")
	if err != nil {
		return nil, err
	}
	timeoutMS, err := node.OptionalIntParam(params, "driver_timeout_ms", 5000)
	if err != nil {
		return nil, err
	}
	if timeoutMS <= 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: driver_timeout_ms must be positive", errors.ErrInvalidConfig),
			"action", "validate", "checking driver timeout")
	}

	return &actionParams{
		monitored:      monitored,
		concThreshold:  concThreshold,
		ampThreshold:   ampThreshold,
		updateInterval: time.Duration(intervalMS) * time.Millisecond,
		severity:       severity,
		driverTimeout:  time.Duration(timeoutMS) * time.Millisecond,
	}, nil
}

// Stage watches monitored computing nodes and drives an external sink.
// Thresholds, cadence and the monitored set hot-reload behind one atomic
// pointer; the driver kind is structural.
type Stage struct {
	id         string
	driverKind string
	drv        driver.Driver
	shared     *analytics.State
	metrics    *metric.Registry
	logger     *slog.Logger

	params  atomic.Pointer[actionParams]
	history *buffer.Ring[driver.Measurement]

	// Pipeline-goroutine state.
	initialized bool
	alertActive bool
	lastUpdate  time.Time
}

// NewStage builds an action stage. Required parameters:
// "monitored_node_ids" and a "driver" document with a "type" tag; the
// rest of the driver document is handed to the driver factory.
func NewStage(id string, params map[string]any, deps node.Dependencies) (node.Stage, error) {
	p, err := parseActionParams(params)
	if err != nil {
		return nil, err
	}
	historySize, err := node.OptionalIntParam(params, "history_size", 64)
	if err != nil {
		return nil, err
	}
	if historySize < 1 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: history_size must be positive", errors.ErrInvalidConfig),
			"action", "validate", "checking history size")
	}

	driverDoc, err := node.MapParam(params, "driver")
	if err != nil {
		return nil, err
	}
	driverKind, err := node.StringParam(driverDoc, "type")
	if err != nil {
		return nil, err
	}
	drv, err := driver.New(driverKind, driverDoc, deps)
	if err != nil {
		return nil, err
	}
	if deps.Analytics == nil {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: analytics scoreboard", errors.ErrMissingConfig),
			"action", "create", "checking dependencies")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stage{
		id:         id,
		driverKind: driverKind,
		drv:        drv,
		shared:     deps.Analytics,
		metrics:    deps.Metrics,
		logger:     logger.With("node", id, "type", TypeAction),
		history:    buffer.NewRing[driver.Measurement](historySize),
	}
	s.params.Store(p)
	return s, nil
}

// ID returns the node id.
func (s *Stage) ID() string { return s.id }

// Type returns the catalog tag.
func (s *Stage) Type() string { return TypeAction }

// DriverKind returns the structural driver type tag.
func (s *Stage) DriverKind() string { return s.driverKind }

// Driver exposes the driver for status reporting.
func (s *Stage) Driver() driver.Driver { return s.drv }

// History returns the buffered measurements, oldest first.
func (s *Stage) History() []driver.Measurement { return s.history.Snapshot() }

// Accepts reports the shapes consumable by this stage.
func (s *Stage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeSingleChannel || shape == frame.ShapeAnalytic
}

// OutputShape returns the produced shape for an accepted input.
func (s *Stage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process evaluates thresholds and cadence, drives the sink, and forwards
// the frame unchanged. Driver failures are logged and counted here and
// never abort the frame.
func (s *Stage) Process(f frame.Frame) (frame.Frame, error) {
	p := s.params.Load()

	measurement, ok := s.collect(p, f.Timestamp)
	if !ok {
		return f, nil
	}

	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	cadenceElapsed := s.lastUpdate.IsZero() || now.Sub(s.lastUpdate) >= p.updateInterval

	crossed := s.thresholdCrossed(p, measurement)
	switch {
	case crossed && !s.alertActive && cadenceElapsed:
		s.alertActive = true
		s.countTrigger("alert")
		s.deliver(p, "show_alert", func(ctx context.Context) error {
			return s.drv.ShowAlert(ctx, s.buildTrigger(p, measurement))
		})
	case !crossed && s.alertActive:
		s.alertActive = false
		s.countTrigger("clear")
		s.deliver(p, "clear_action", s.drv.ClearAction)
	}

	// Measurements flow on cadence regardless of alert state.
	if cadenceElapsed {
		s.lastUpdate = now
		s.history.Push(measurement)
		s.countTrigger("measurement")
		s.deliver(p, "update_action", func(ctx context.Context) error {
			return s.drv.UpdateAction(ctx, measurement)
		})
	}
	return f, nil
}

// collect merges the monitored nodes' latest results into one
// measurement. The first monitored id with a concentration result wins;
// peak data fills the spectral fields.
func (s *Stage) collect(p *actionParams, ts time.Time) (driver.Measurement, bool) {
	m := driver.Measurement{Timestamp: ts}
	found := false

	for _, id := range p.monitored {
		if conc, ok := s.shared.Concentration(id); ok && m.SourceNodeID == "" {
			m.SourceNodeID = id
			m.ConcentrationPPM = conc.ConcentrationPPM
			m.PeakFrequency = float64(conc.SourceFrequency)
			m.PeakAmplitude = float64(conc.SourceAmplitude)
			found = true
			continue
		}
		if peak, ok := s.shared.Peak(id); ok {
			if m.SourceNodeID == "" {
				m.SourceNodeID = id
			}
			m.PeakFrequency = float64(peak.Frequency)
			m.PeakAmplitude = float64(peak.Amplitude)
			found = true
		}
	}
	return m, found
}

func (s *Stage) thresholdCrossed(p *actionParams, m driver.Measurement) bool {
	if p.concThreshold > 0 && m.ConcentrationPPM >= p.concThreshold {
		return true
	}
	if p.ampThreshold > 0 && m.PeakAmplitude >= p.ampThreshold {
		return true
	}
	return false
}

func (s *Stage) buildTrigger(p *actionParams, m driver.Measurement) driver.Alert {
	return driver.Alert{
		Kind:      "threshold_exceeded",
		Severity:  p.severity,
		Message:   fmt.Sprintf("node %s crossed threshold", m.SourceNodeID),
		Timestamp: m.Timestamp,
		Data: map[string]any{
			"source_node_id":    m.SourceNodeID,
			"concentration_ppm": m.ConcentrationPPM,
			"peak_amplitude":    m.PeakAmplitude,
			"peak_frequency":    m.PeakFrequency,
		},
	}
}

// deliver runs one driver call with a timeout, containing any failure.
func (s *Stage) deliver(p *actionParams, op string, call func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.driverTimeout)
	defer cancel()

	if !s.initialized {
		if err := s.drv.Initialize(ctx); err != nil {
			s.countFailure()
			s.logger.Warn("driver initialization failed", "driver", s.driverKind, "error", err)
			return
		}
		s.initialized = true
	}

	if err := call(ctx); err != nil {
		s.countFailure()
		s.logger.Warn("driver delivery failed",
			"driver", s.driverKind, "operation", op, "error", err)
	}
}

func (s *Stage) countTrigger(kind string) {
	if s.metrics != nil {
		s.metrics.Metrics.ActionTriggers.WithLabelValues(s.id, kind).Inc()
	}
}

func (s *Stage) countFailure() {
	if s.metrics != nil {
		s.metrics.Metrics.DriverFailures.WithLabelValues(s.id, s.driverKind).Inc()
	}
}

// Reconfigure swaps thresholds, cadence and the monitored set in place.
// A driver type change replaces the external capability and defers to a
// rebuild.
func (s *Stage) Reconfigure(params map[string]any) (node.Outcome, error) {
	if raw, ok := params["driver"]; ok {
		driverDoc, okMap := raw.(map[string]any)
		if !okMap {
			return node.OutcomeError, errors.WrapValidation(
				fmt.Errorf("%w: driver document must be a map", errors.ErrInvalidConfig),
				s.id, "update", "parsing driver document")
		}
		kind, err := node.StringParam(driverDoc, "type")
		if err != nil {
			return node.OutcomeError, err
		}
		if kind != s.driverKind {
			return node.OutcomeNotApplicable, nil
		}
	}

	p, err := parseActionParams(params)
	if err != nil {
		return node.OutcomeError, err
	}
	historySize, err := node.OptionalIntParam(params, "history_size", s.history.Capacity())
	if err != nil {
		return node.OutcomeError, err
	}
	if historySize < 1 {
		return node.OutcomeError, errors.WrapValidation(
			fmt.Errorf("%w: history_size must be positive", errors.ErrInvalidConfig),
			s.id, "update", "checking history size")
	}

	s.params.Store(p)
	if historySize != s.history.Capacity() {
		s.history.Resize(historySize)
	}
	return node.OutcomeApplied, nil
}

// Reset clears the measurement history and the alert edge tracker.
func (s *Stage) Reset() {
	s.history.Clear()
	s.alertActive = false
	s.lastUpdate = time.Time{}
}

// Flush shuts the driver down. Called on graph teardown.
func (s *Stage) Flush() error {
	p := s.params.Load()
	ctx, cancel := context.WithTimeout(context.Background(), p.driverTimeout)
	defer cancel()
	return s.drv.Shutdown(ctx)
}
