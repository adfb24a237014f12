package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/media"
)

// FrameSource supplies frames from the acquired camera stream.
type FrameSource interface {
	Frame(ctx context.Context) (*media.Frame, error)
}

// Analyzer samples the camera on a fixed tick and feeds each Sample to a
// sink. A tick whose frame read or analysis fails still emits a zero Sample,
// so the sample counter advances at wall-clock rate while the stream is
// active. Per-tick errors are logged at debug and otherwise ignored.
type Analyzer struct {
	source   FrameSource
	strategy Strategy
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewAnalyzer creates an analyzer ticking at the given interval.
func NewAnalyzer(source FrameSource, strategy Strategy, interval time.Duration) *Analyzer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Analyzer{source: source, strategy: strategy, interval: interval}
}

// StrategyName identifies the active analysis strategy.
func (a *Analyzer) StrategyName() string { return a.strategy.Name() }

// Start launches the sampling loop. Samples are delivered to sink from a
// single goroutine. Calling Start while running is a no-op.
func (a *Analyzer) Start(sink func(Sample)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true

	go a.loop(ctx, sink)
}

func (a *Analyzer) loop(ctx context.Context, sink func(Sample)) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink(a.sampleOnce(ctx))
		}
	}
}

func (a *Analyzer) sampleOnce(ctx context.Context) Sample {
	frameCtx, cancel := context.WithTimeout(ctx, a.interval)
	defer cancel()

	frame, err := a.source.Frame(frameCtx)
	if err != nil {
		slog.Debug("presence frame read failed", "error", err)
		return Sample{}
	}

	sample, err := a.strategy.Analyze(frame)
	if err != nil {
		slog.Debug("presence analysis failed", "strategy", a.strategy.Name(), "error", err)
		return Sample{}
	}
	return sample
}

// Stop halts sampling and drops retained inter-frame state. Idempotent.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.running = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.strategy.Reset()
}
