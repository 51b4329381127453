package graph

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// NodeStats are the per-node runtime counters exposed by the API.
type NodeStats struct {
	Processed    uint64        `json:"frames_processed"`
	Errors       uint64        `json:"frame_errors"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

type nodeStats struct {
	processed    atomic.Uint64
	errors       atomic.Uint64
	lastDuration atomic.Int64
}

func (s *nodeStats) snapshot() NodeStats {
	return NodeStats{
		Processed:    s.processed.Load(),
		Errors:       s.errors.Load(),
		LastDuration: time.Duration(s.lastDuration.Load()),
	}
}

// Graph is an instantiated processing graph: stages built from a
// descriptor, wired in topological order. Execute runs on a single
// pipeline goroutine; Reconfigure of individual stages may happen
// concurrently from the dispatcher.
type Graph struct {
	descMu  sync.RWMutex
	desc    Descriptor
	order   []string
	stages  map[string]node.Stage
	inbound map[string]string // node id -> id of its feeding upstream
	stats   map[string]*nodeStats
	metrics *metric.Registry
	logger  *slog.Logger
}

// Build validates the descriptor, instantiates every stage through the
// catalog and checks shape compatibility along every connection. Nothing
// is partially built: any failure returns an error and no graph.
func Build(desc Descriptor, catalog *node.Catalog, deps node.Dependencies) (*Graph, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	order, err := desc.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Graph{
		desc:    desc,
		order:   order,
		stages:  make(map[string]node.Stage, len(desc.Nodes)),
		inbound: make(map[string]string, len(desc.Nodes)),
		stats:   make(map[string]*nodeStats, len(desc.Nodes)),
		metrics: deps.Metrics,
		logger:  logger,
	}

	for _, n := range desc.Nodes {
		stage, err := catalog.Create(n.Type, n.ID, n.Parameters, deps)
		if err != nil {
			g.teardownPartial()
			return nil, err
		}
		g.stages[n.ID] = stage
		g.stats[n.ID] = &nodeStats{}
	}

	// Validate guarantees each node has at most one inbound connection.
	for _, c := range desc.Connections {
		g.inbound[c.To] = c.From
	}

	if err := g.checkShapes(); err != nil {
		g.teardownPartial()
		return nil, err
	}
	return g, nil
}

// checkShapes propagates frame shapes from the input nodes and verifies
// every stage accepts what its upstream produces. Shape mismatches are
// build-time errors, never runtime.
func (g *Graph) checkShapes() error {
	produced := make(map[string]frame.Shape, len(g.order))

	for _, id := range g.order {
		stage := g.stages[id]

		var in frame.Shape
		if upstream, ok := g.inbound[id]; ok {
			in = produced[upstream]
		} else {
			in = frame.ShapeDualChannel
		}

		if !stage.Accepts(in) {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: node %q does not accept %s", apperrors.ErrShapeMismatch, id, in),
				"graph", "build", "checking shapes")
		}
		produced[id] = stage.OutputShape(in)
	}
	return nil
}

// Execute runs one ordered frame pass. A stage error aborts this frame's
// traversal only; the caller logs it and continues with the next frame.
func (g *Graph) Execute(f frame.Frame) error {
	outputs := make(map[string]frame.Frame, len(g.order))

	for _, id := range g.order {
		stage := g.stages[id]
		stats := g.stats[id]

		in := f
		if upstream, ok := g.inbound[id]; ok {
			in = outputs[upstream]
		}

		start := time.Now()
		out, err := stage.Process(in)
		elapsed := time.Since(start)

		stats.lastDuration.Store(int64(elapsed))
		if g.metrics != nil {
			g.metrics.Metrics.StageDuration.WithLabelValues(id).Observe(elapsed.Seconds())
		}

		if err != nil {
			stats.errors.Add(1)
			if g.metrics != nil {
				class := apperrors.Classify(err).String()
				g.metrics.Metrics.FrameErrors.WithLabelValues(id, class).Inc()
			}
			return apperrors.Wrap(err, id, "execute", fmt.Sprintf("processing frame %d", f.Sequence))
		}

		stats.processed.Add(1)
		if g.metrics != nil {
			g.metrics.Metrics.FramesProcessed.WithLabelValues(id).Inc()
		}
		outputs[id] = out
	}
	return nil
}

// ReconfigureNode forwards a parameter document to one stage.
func (g *Graph) ReconfigureNode(id string, params map[string]any) (node.Outcome, error) {
	stage, ok := g.stages[id]
	if !ok {
		return node.OutcomeError, apperrors.WrapValidation(
			fmt.Errorf("%w: %q", apperrors.ErrNodeNotFound, id),
			"graph", "reconfigure", "resolving node")
	}
	return stage.Reconfigure(params)
}

// Descriptor returns the descriptor this graph was built from. Safe to
// call while the dispatcher commits a hot reload.
func (g *Graph) Descriptor() Descriptor {
	g.descMu.RLock()
	defer g.descMu.RUnlock()
	return g.desc
}

// ExecutionOrder returns the node ids in execution order.
func (g *Graph) ExecutionOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Stage returns the stage instance for a node id.
func (g *Graph) Stage(id string) (node.Stage, bool) {
	s, ok := g.stages[id]
	return s, ok
}

// Stats returns a snapshot of all per-node counters.
func (g *Graph) Stats() map[string]NodeStats {
	out := make(map[string]NodeStats, len(g.stats))
	for id, s := range g.stats {
		out[id] = s.snapshot()
	}
	return out
}

// SetDescriptor replaces the stored descriptor after an in-place
// parameter swap, so introspection reflects the committed document.
func (g *Graph) SetDescriptor(desc Descriptor) {
	g.descMu.Lock()
	defer g.descMu.Unlock()
	g.desc = desc
}

// Reset clears every stage's transient state in execution order.
func (g *Graph) Reset() {
	for _, id := range g.order {
		g.stages[id].Reset()
	}
}

// Teardown resets all stages and releases external resources held by
// flushing stages (open files, drivers). Errors are logged, not returned:
// teardown always completes.
func (g *Graph) Teardown() {
	g.Reset()
	for _, id := range g.order {
		if flusher, ok := g.stages[id].(node.Flusher); ok {
			if err := flusher.Flush(); err != nil {
				g.logger.Warn("stage flush failed", "node", id, "error", err)
			}
		}
	}
}

func (g *Graph) teardownPartial() {
	for id, stage := range g.stages {
		if flusher, ok := stage.(node.Flusher); ok {
			if err := flusher.Flush(); err != nil {
				g.logger.Warn("stage flush failed during rollback", "node", id, "error", err)
			}
		}
	}
}
