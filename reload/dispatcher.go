// Package reload decides how a configuration change reaches the running
// pipeline: an in-place parameter swap on the live stages when the graph
// topology is unchanged and every affected stage accepts the new values,
// or a full rebuild otherwise. Validation always runs before any state is
// touched; a rejected document leaves the pipeline exactly as it was.
package reload

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	"github.com/sctg-development/rust-photoacoustic-sub001/engine"
	apperrors "github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// How a change was applied.
const (
	AppliedByHotReload = "hot_reload"
	AppliedByRebuild   = "rebuild"
)

// Result describes an accepted configuration change.
type Result struct {
	Revision  uint64            `json:"revision"`
	AppliedBy string            `json:"applied_by"`
	Outcomes  map[string]string `json:"node_outcomes,omitempty"`
}

// Dispatcher serializes configuration changes onto the pipeline. It is
// the single writer of the configuration store.
type Dispatcher struct {
	mu       sync.Mutex
	store    *config.Store
	consumer *engine.Consumer
	catalog  *node.Catalog
	deps     node.Dependencies
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. The dependency set is reused for
// every rebuilt graph.
func NewDispatcher(store *config.Store, consumer *engine.Consumer, catalog *node.Catalog, deps node.Dependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		consumer: consumer,
		catalog:  catalog,
		deps:     deps,
		logger:   logger.With("component", "dispatcher"),
	}
}

// ApplyGraph validates a new graph descriptor and applies it, preferring
// an in-place parameter swap over a rebuild.
func (d *Dispatcher) ApplyGraph(desc graph.Descriptor) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := desc.Validate(); err != nil {
		return Result{}, err
	}
	return d.apply(desc, func() uint64 { return d.store.ReplaceGraph(desc) })
}

// ApplyConfig validates a full configuration document and applies it.
// The graph portion follows the same hot-reload-or-rebuild decision as
// ApplyGraph; the rest of the document is committed alongside it.
func (d *Dispatcher) ApplyConfig(cfg *config.Config) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	return d.apply(cfg.Graph, func() uint64 { return d.store.Replace(cfg) })
}

// apply decides between the hot path and a rebuild, then commits through
// the provided store write. Callers hold d.mu and have validated the
// descriptor.
func (d *Dispatcher) apply(desc graph.Descriptor, commit func() uint64) (Result, error) {
	current := d.consumer.Graph()
	diff := graph.Compare(current.Descriptor(), desc)

	if diff.SameTopology {
		outcomes, allApplied := d.reconfigure(current, desc, diff.ChangedParams)
		if allApplied {
			current.SetDescriptor(desc)
			revision := commit()
			d.setRevisionGauge(revision)
			d.logger.Info("configuration hot-reloaded",
				"revision", revision, "changed_nodes", len(diff.ChangedParams))
			return Result{Revision: revision, AppliedBy: AppliedByHotReload, Outcomes: outcomes}, nil
		}

		result, err := d.rebuild(desc, commit, outcomes)
		if err != nil {
			// Nodes already swapped during the aborted hot path must not
			// outlive a rejected change.
			d.rollback(current, diff.ChangedParams)
			return Result{}, err
		}
		return result, nil
	}
	return d.rebuild(desc, commit, nil)
}

// reconfigure forwards new parameters to every changed node on the live
// graph. Returns the per-node outcomes and whether all were applied.
func (d *Dispatcher) reconfigure(g *graph.Graph, desc graph.Descriptor, changed []string) (map[string]string, bool) {
	outcomes := make(map[string]string, len(changed))
	allApplied := true

	for _, id := range changed {
		nd, ok := desc.Node(id)
		if !ok {
			// Compare only reports ids present in both descriptors.
			continue
		}

		outcome, err := g.ReconfigureNode(id, nd.Parameters)
		outcomes[id] = outcome.String()
		if d.deps.Metrics != nil {
			d.deps.Metrics.Metrics.HotReloads.WithLabelValues(outcome.String()).Inc()
		}

		switch outcome {
		case node.OutcomeApplied:
		case node.OutcomeError:
			allApplied = false
			d.logger.Warn("node rejected new parameters, escalating to rebuild",
				"node", id, "error", err)
		default:
			allApplied = false
			d.logger.Info("node cannot hot-reload this change, escalating to rebuild",
				"node", id)
		}
	}
	return outcomes, allApplied
}

// rollback restores the committed parameters on nodes touched by a
// failed change. The graph's descriptor still holds the last accepted
// document, so it is the source of truth.
func (d *Dispatcher) rollback(g *graph.Graph, changed []string) {
	committed := g.Descriptor()
	for _, id := range changed {
		nd, ok := committed.Node(id)
		if !ok {
			continue
		}
		if _, err := g.ReconfigureNode(id, nd.Parameters); err != nil {
			d.logger.Error("parameter rollback failed", "node", id, "error", err)
		}
	}
}

// rebuild constructs a fresh graph from the catalog and swaps it in.
// Build failures leave the running graph untouched.
func (d *Dispatcher) rebuild(desc graph.Descriptor, commit func() uint64, outcomes map[string]string) (Result, error) {
	next, err := graph.Build(desc, d.catalog, d.deps)
	if err != nil {
		return Result{}, apperrors.Wrap(err, "dispatcher", "rebuild",
			fmt.Sprintf("building graph with %d nodes", len(desc.Nodes)))
	}

	d.consumer.SwapGraph(next)

	// Results computed by the previous graph must not leak into stages of
	// the new one; the next frames repopulate the shared state.
	if d.deps.Analytics != nil {
		d.deps.Analytics.Clear()
	}

	if d.deps.Metrics != nil {
		d.deps.Metrics.Metrics.GraphRebuilds.Inc()
	}
	revision := commit()
	d.setRevisionGauge(revision)
	d.logger.Info("graph rebuilt", "revision", revision, "nodes", len(desc.Nodes))

	return Result{Revision: revision, AppliedBy: AppliedByRebuild, Outcomes: outcomes}, nil
}

func (d *Dispatcher) setRevisionGauge(revision uint64) {
	if d.deps.Metrics != nil {
		d.deps.Metrics.Metrics.ConfigVersion.Set(float64(revision))
	}
}
