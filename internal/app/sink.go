package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/verona/internal/resilience"
	"github.com/MrWong99/verona/internal/scene"
)

// Sink receives every line the scene produces.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Publish delivers line. A failure is logged and counted by the caller;
	// it never stops the scene.
	Publish(ctx context.Context, line scene.Line) error
}

// ConsoleSink prints each line on its own row.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// Compile-time check.
var _ Sink = (*ConsoleSink)(nil)

// NewConsoleSink returns a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Name implements [Sink].
func (c *ConsoleSink) Name() string { return "console" }

// Publish implements [Sink].
func (c *ConsoleSink) Publish(_ context.Context, line scene.Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line.String())
	return err
}

// guardedSink skips its sink while the breaker is open.
type guardedSink struct {
	Sink
	breaker *resilience.Breaker
}

// Guard wraps s in a circuit breaker: after repeated failures, lines are
// dropped with [resilience.ErrOpen] until the cooldown passes.
func Guard(s Sink, b *resilience.Breaker) Sink {
	return &guardedSink{Sink: s, breaker: b}
}

// Publish implements [Sink].
func (g *guardedSink) Publish(ctx context.Context, line scene.Line) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.Sink.Publish(ctx, line)
	})
}
