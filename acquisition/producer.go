package acquisition

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
)

// Sink receives produced frames. Offer must not block: it returns false
// when the pipeline is saturated, in which case the frame is dropped.
type Sink interface {
	Offer(f frame.Frame) bool
}

// Producer pulls frames from a Source at a fixed cadence and pushes them
// into a Sink. When the sink cannot keep up, frames are dropped and
// counted rather than queued without bound.
type Producer struct {
	source  Source
	sink    Sink
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metric.Registry

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProducer creates a producer pacing frames at framesPerSecond. A rate
// of zero or less disables pacing and produces as fast as the sink
// accepts.
func NewProducer(source Source, sink Sink, framesPerSecond float64, logger *slog.Logger, metrics *metric.Registry) *Producer {
	limit := rate.Inf
	if framesPerSecond > 0 {
		limit = rate.Limit(framesPerSecond)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		source:  source,
		sink:    sink,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "producer"),
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the production loop. The loop ends when ctx is cancelled
// or Stop is called.
func (p *Producer) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

// Stop ends the production loop and waits for it to finish.
func (p *Producer) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Producer) run(ctx context.Context) {
	defer close(p.done)

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := p.source.Next()
		if err != nil {
			p.logger.Warn("frame acquisition failed", "error", err)
			continue
		}

		if !p.sink.Offer(f) {
			if p.metrics != nil {
				p.metrics.Metrics.FramesDropped.Inc()
			}
			p.logger.Debug("frame dropped, pipeline busy", "sequence", f.Sequence)
		}
	}
}
