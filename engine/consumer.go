// Package engine runs the processing pipeline: a single consumer
// goroutine pulls frames off a bounded queue and drives them through the
// active graph in execution order. Graph swaps pause the consumer between
// frames, never mid-traversal.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
)

const defaultQueueSize = 32

// Consumer owns the pipeline goroutine. Offer is the producer-facing
// entry point; Graph/SwapGraph are used by the reload dispatcher.
type Consumer struct {
	mu     sync.Mutex // held for the duration of each frame and across swaps
	graph  *graph.Graph
	frames chan frame.Frame
	logger *slog.Logger

	running atomic.Bool
	failed  atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithQueueSize sets the bounded frame queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.frames = make(chan frame.Frame, n)
		}
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger.With("component", "consumer")
		}
	}
}

// NewConsumer creates a consumer driving the given graph.
func NewConsumer(g *graph.Graph, opts ...Option) *Consumer {
	c := &Consumer{
		graph:  g,
		frames: make(chan frame.Frame, defaultQueueSize),
		logger: slog.Default().With("component", "consumer"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Offer enqueues a frame without blocking. Returns false when the queue
// is full or the consumer has stopped.
func (c *Consumer) Offer(f frame.Frame) bool {
	if !c.running.Load() {
		return false
	}
	select {
	case c.frames <- f:
		return true
	default:
		return false
	}
}

// Start launches the consumer goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.running.Store(true)
		go c.run(ctx)
	})
}

// Stop drains the queued frames, tears the graph down and waits for the
// goroutine to finish.
func (c *Consumer) Stop() {
	c.running.Store(false)
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Failed reports whether a fatal stage error stopped the pipeline.
func (c *Consumer) Failed() bool { return c.failed.Load() }

// Graph returns the active graph. Callers must not execute frames on it;
// introspection and per-node reconfiguration only.
func (c *Consumer) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

// SwapGraph replaces the active graph between frames. The old graph is
// torn down after the swap; in-flight work finishes on the old graph
// before the lock is acquired.
func (c *Consumer) SwapGraph(next *graph.Graph) {
	c.mu.Lock()
	old := c.graph
	c.graph = next
	c.mu.Unlock()

	if old != nil {
		old.Teardown()
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	defer c.teardown()

	for {
		select {
		case <-c.stop:
			c.drain()
			return
		case <-ctx.Done():
			return
		case f := <-c.frames:
			if !c.process(f) {
				return
			}
		}
	}
}

// process runs one frame. Frame-scoped errors are logged and absorbed;
// a fatal error stops the pipeline.
func (c *Consumer) process(f frame.Frame) bool {
	c.mu.Lock()
	err := c.graph.Execute(f)
	c.mu.Unlock()

	if err == nil {
		return true
	}
	if apperrors.IsFatal(err) {
		c.failed.Store(true)
		c.running.Store(false)
		c.logger.Error("fatal stage error, stopping pipeline",
			"sequence", f.Sequence, "error", err)
		return false
	}
	c.logger.Warn("frame processing failed",
		"sequence", f.Sequence, "error", err)
	return true
}

// drain processes frames already queued at shutdown.
func (c *Consumer) drain() {
	for {
		select {
		case f := <-c.frames:
			if !c.process(f) {
				return
			}
		default:
			return
		}
	}
}

func (c *Consumer) teardown() {
	c.mu.Lock()
	g := c.graph
	c.mu.Unlock()
	if g != nil {
		g.Teardown()
	}
}
