// Package resilience keeps a failing output from dragging the scene down.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// After MaxFailures consecutive failures it opens and rejects calls with
// [ErrOpen] until Cooldown has passed; then it lets probes through, closing
// again after Probes consecutive successes or re-opening on the first
// failure.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call until the cooldown has passed.
	Open

	// HalfOpen forwards calls as probes.
	HalfOpen
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take their defaults.
type Config struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 1m.
	Cooldown time.Duration

	// Probes is the number of consecutive successful probes that closes a
	// half-open breaker. Default: 1.
	Probes int
}

// Breaker is a circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New returns a closed [Breaker].
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	b := &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do calls fn unless the breaker is open. It returns [ErrOpen] without
// calling fn while open and ctx.Err() when ctx is already done. Context
// errors returned by fn are not counted as failures.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.successes = 0
		slog.Info("circuit half-open, probing", "name", b.name)
	}
	b.mu.Unlock()

	err := fn(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail()
	} else {
		b.succeed()
	}
	return err
}

// fail records a failure. Must be called with b.mu held.
func (b *Breaker) fail() {
	b.successes = 0
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.trip()
		}
	}
}

// succeed records a success. Must be called with b.mu held.
func (b *Breaker) succeed() {
	b.failures = 0
	if b.state != HalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.probes {
		b.state = Closed
		b.successes = 0
		slog.Info("circuit closed", "name", b.name)
	}
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	slog.Warn("circuit opened", "name", b.name, "cooldown", b.cooldown)
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [HalfOpen]; the transition itself happens on the next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
}
