package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errPost = errors.New("post failed")

// ── helpers ──────────────────────────────────────────────────────────────────

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(1597, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(cfg, WithClock(clock.now)), clock
}

func fail(context.Context) error    { return errPost }
func succeed(context.Context) error { return nil }

// ── tests ────────────────────────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{Name: "discord"})
	if b.maxFailures != 5 || b.cooldown != time.Minute || b.probes != 1 {
		t.Errorf("defaults = %d/%s/%d, want 5/1m/1", b.maxFailures, b.cooldown, b.probes)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %s, want closed", b.State())
	}
}

func TestBreaker_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps func(t *testing.T, b *Breaker, c *fakeClock)
		want  State
	}{
		{
			name: "failures below threshold stay closed",
			steps: func(t *testing.T, b *Breaker, _ *fakeClock) {
				for range 2 {
					_ = b.Do(context.Background(), fail)
				}
			},
			want: Closed,
		},
		{
			name: "success resets the failure count",
			steps: func(t *testing.T, b *Breaker, _ *fakeClock) {
				_ = b.Do(context.Background(), fail)
				_ = b.Do(context.Background(), fail)
				_ = b.Do(context.Background(), succeed)
				_ = b.Do(context.Background(), fail)
				_ = b.Do(context.Background(), fail)
			},
			want: Closed,
		},
		{
			name: "threshold opens",
			steps: func(t *testing.T, b *Breaker, _ *fakeClock) {
				for range 3 {
					_ = b.Do(context.Background(), fail)
				}
			},
			want: Open,
		},
		{
			name: "cooldown reports half-open",
			steps: func(t *testing.T, b *Breaker, c *fakeClock) {
				for range 3 {
					_ = b.Do(context.Background(), fail)
				}
				c.advance(time.Minute)
			},
			want: HalfOpen,
		},
		{
			name: "successful probe closes",
			steps: func(t *testing.T, b *Breaker, c *fakeClock) {
				for range 3 {
					_ = b.Do(context.Background(), fail)
				}
				c.advance(time.Minute)
				if err := b.Do(context.Background(), succeed); err != nil {
					t.Fatalf("probe: %v", err)
				}
			},
			want: Closed,
		},
		{
			name: "failed probe re-opens",
			steps: func(t *testing.T, b *Breaker, c *fakeClock) {
				for range 3 {
					_ = b.Do(context.Background(), fail)
				}
				c.advance(time.Minute)
				_ = b.Do(context.Background(), fail)
			},
			want: Open,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, c := newTestBreaker(Config{Name: "test", MaxFailures: 3, Cooldown: time.Minute})
			tc.steps(t, b, c)
			if got := b.State(); got != tc.want {
				t.Errorf("state = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	_ = b.Do(context.Background(), fail)

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_ProbesNeeded(t *testing.T) {
	t.Parallel()
	b, c := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Second, Probes: 2})
	_ = b.Do(context.Background(), fail)
	c.advance(time.Second)

	_ = b.Do(context.Background(), succeed)
	if b.State() != HalfOpen {
		t.Fatalf("state after one probe = %s, want half-open", b.State())
	}
	_ = b.Do(context.Background(), succeed)
	if b.State() != Closed {
		t.Fatalf("state after two probes = %s, want closed", b.State())
	}
}

func TestBreaker_ContextErrorsNotCounted(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})

	err := b.Do(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %s, want closed", b.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Do(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Errorf("done ctx err = %v, want context.Canceled", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	_ = b.Do(context.Background(), fail)
	b.Reset()
	if b.State() != Closed {
		t.Errorf("state = %s, want closed", b.State())
	}
	if err := b.Do(context.Background(), succeed); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(s), got, want)
		}
	}
}
