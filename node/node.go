// Package node defines the stage contract of the processing graph and the
// catalog that maps descriptor type tags to stage factories. Stages are
// single-goroutine processors: Process and Reset run only on the pipeline
// goroutine, while Reconfigure may be called concurrently from the reload
// dispatcher and must publish parameter changes atomically.
package node

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/natsclient"
)

// Outcome is a stage's verdict on an in-place parameter update.
type Outcome int

const (
	// OutcomeApplied means the stage adopted the new parameters without
	// rebuilding.
	OutcomeApplied Outcome = iota
	// OutcomeNotApplicable means the change is structural for this stage
	// and requires a graph rebuild.
	OutcomeNotApplicable
	// OutcomeError means the parameters were rejected; the stage keeps its
	// previous configuration.
	OutcomeError
)

// String returns the outcome name used in API responses and logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNotApplicable:
		return "not_applicable"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stage is one node of the running graph.
type Stage interface {
	// ID returns the unique node id from the descriptor.
	ID() string
	// Type returns the catalog type tag this stage was created from.
	Type() string
	// Accepts reports whether the stage can consume frames of the shape.
	Accepts(shape frame.Shape) bool
	// OutputShape returns the shape produced for an accepted input shape.
	OutputShape(in frame.Shape) frame.Shape
	// Process consumes one frame and produces the next. Errors abort the
	// current frame's traversal only.
	Process(f frame.Frame) (frame.Frame, error)
	// Reconfigure attempts an in-place parameter update. On OutcomeError
	// the returned error explains the rejection and previous parameters
	// stay live.
	Reconfigure(params map[string]any) (Outcome, error)
	// Reset clears transient state (filter histories, buffers) without
	// touching configuration.
	Reset()
}

// Flusher is implemented by stages that hold external resources (open
// files, connections) that must be released on graph teardown.
type Flusher interface {
	Flush() error
}

// Dependencies carries the shared services handed to every stage factory.
type Dependencies struct {
	Logger    *slog.Logger
	Metrics   *metric.Registry
	Analytics *analytics.State
	NATS      *natsclient.Client
	// DataDir is the base directory for stages that persist to disk.
	DataDir string
}

// Factory builds a stage from its descriptor id and parameters.
type Factory func(id string, params map[string]any, deps Dependencies) (Stage, error)

// Catalog maps descriptor type tags to stage factories. Registration
// happens once at startup; lookups are concurrent.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under a type tag. Duplicate tags and nil
// factories are validation errors.
func (c *Catalog) Register(typeTag string, factory Factory) error {
	if typeTag == "" {
		return errors.WrapValidation(
			fmt.Errorf("%w: empty type tag", errors.ErrInvalidConfig),
			"Catalog", "Register", "validating type tag")
	}
	if factory == nil {
		return errors.WrapValidation(
			fmt.Errorf("%w: nil factory for %q", errors.ErrInvalidConfig, typeTag),
			"Catalog", "Register", "validating factory")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[typeTag]; exists {
		return errors.WrapValidation(
			fmt.Errorf("factory %q is already registered", typeTag),
			"Catalog", "Register", "duplicate factory check")
	}
	c.factories[typeTag] = factory
	return nil
}

// Create instantiates a stage for a descriptor node. Unknown type tags are
// a hard validation error, never silently skipped.
func (c *Catalog) Create(typeTag, id string, params map[string]any, deps Dependencies) (Stage, error) {
	c.mu.RLock()
	factory, ok := c.factories[typeTag]
	c.mu.RUnlock()

	if !ok {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: %q (node %q)", errors.ErrUnknownNodeType, typeTag, id),
			"Catalog", "Create", "resolving factory")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	stage, err := factory(id, params, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Catalog", "Create", fmt.Sprintf("building node %q", id))
	}
	return stage, nil
}

// Types returns the registered type tags in sorted order.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]string, 0, len(c.factories))
	for tag := range c.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
