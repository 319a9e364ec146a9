// Package app wires all Verona subsystems into a running scene.
//
// The App struct owns the full lifecycle: New loads the corpus, trains every
// speaker, and restores the scene; Next produces one line and fans it out;
// Run drives Next on a timer; Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithCorpus,
// WithStateStore, WithSinks, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/verona/internal/agent"
	"github.com/MrWong99/verona/internal/config"
	"github.com/MrWong99/verona/internal/corpus"
	"github.com/MrWong99/verona/internal/observe"
	"github.com/MrWong99/verona/internal/scene"
	"github.com/MrWong99/verona/internal/server"
	"github.com/MrWong99/verona/internal/state"
	"github.com/MrWong99/verona/pkg/lexicon"
	"github.com/MrWong99/verona/pkg/markov"
)

// linkerNamespace is the backend namespace holding the response linker.
const linkerNamespace = "linker"

// App owns all subsystem lifetimes and drives the scene.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	corpus   *corpus.Corpus
	backend  markov.Backend
	store    state.Store
	director *scene.Director
	sinks    []Sink
	metrics  *observe.Metrics
	tracers  trace.TracerProvider
	rng      *rand.Rand

	// mu serialises Next so that lines reach sinks in scene order.
	mu sync.Mutex

	// opened is set once the first line has been produced.
	opened bool

	// resumed is true when New restored a saved scene.
	resumed bool

	// onStage mirrors the metrics gauge so it can be moved by deltas.
	onStage int

	// interval carries live updates of the online tick interval to Run.
	interval chan time.Duration

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCorpus injects a parsed corpus instead of loading corpus.path.
func WithCorpus(c *corpus.Corpus) Option {
	return func(a *App) { a.corpus = c }
}

// WithBackend injects a transition-table backend instead of creating one
// from storage.backend. The caller keeps ownership of it.
func WithBackend(b markov.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithStateStore injects a state store instead of creating one from state.
func WithStateStore(s state.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSinks adds output sinks. Lines are published in the order given.
func WithSinks(sinks ...Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, sinks...) }
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTracerProvider records scene.next spans to tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) { a.tracers = tp }
}

// WithRand makes every random draw come from r, overriding generation.seed.
func WithRand(r *rand.Rand) Option {
	return func(a *App) { a.rng = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: corpus loading, speaker
// training, director construction, and state restoration. A roster speaker
// without lines is left out with a warning; if nobody is left, New fails
// with [scene.ErrEmptyRoster].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		interval: make(chan time.Duration, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.rng == nil {
		a.rng = newRand(cfg.Generation.Seed)
	}

	// ── 1. Corpus ────────────────────────────────────────────────────────
	if err := a.initCorpus(); err != nil {
		return nil, fmt.Errorf("app: init corpus: %w", err)
	}

	// ── 2. Storage backend ───────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Speakers + director ───────────────────────────────────────────
	if err := a.initScene(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init scene: %w", err)
	}

	// ── 4. State store + restore ─────────────────────────────────────────
	if err := a.initState(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init state: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCorpus() error {
	if a.corpus != nil {
		return nil
	}
	c, err := corpus.Load(a.cfg.Corpus.Path)
	if err != nil {
		return err
	}
	a.corpus = c
	slog.Info("corpus loaded", "path", a.cfg.Corpus.Path, "speakers", len(c.Speakers()), "lines", len(c.All()))
	return nil
}

func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}
	b, err := config.NewRegistry().CreateBackend(a.cfg.Storage)
	if err != nil {
		return err
	}
	a.backend = b
	a.closers = append(a.closers, b.Close)
	return nil
}

func (a *App) initScene(ctx context.Context) error {
	lex := lexicon.New(a.cfg.Lexicon)

	linker, err := agent.BuildLinker(ctx, a.backend.Namespace(linkerNamespace), lex, a.corpus.All(), markov.WithRand(a.rng))
	if err != nil {
		return fmt.Errorf("build linker: %w", err)
	}
	slog.Debug("response linker built", "pairs", linker.Pairs())

	parts := make([]agent.Part, 0, len(a.cfg.Cast.Speakers))
	for _, name := range a.cfg.Cast.Speakers {
		lines := a.corpus.Lines(name)
		if len(lines) == 0 {
			attrs := []any{"speaker", name}
			if best, score, ok := a.corpus.Suggest(name); ok {
				attrs = append(attrs, "did_you_mean", best, "similarity", fmt.Sprintf("%.2f", score))
			}
			slog.Warn("speaker has no lines in the corpus, leaving them out of the cast", attrs...)
			continue
		}
		parts = append(parts, agent.Part{Name: name, Lines: lines})
	}

	loader := agent.NewLoader(a.backend, lex, linker,
		agent.WithLimits(a.cfg.Generation.Limits()),
		agent.WithRand(a.rng),
	)
	speakers, err := loader.LoadAll(ctx, parts)
	if err != nil {
		return err
	}
	if len(speakers) == 0 {
		return scene.ErrEmptyRoster
	}

	a.director, err = scene.New(speakers,
		scene.WithPacing(a.cfg.Scene),
		scene.WithRand(a.rng),
	)
	if err != nil {
		return err
	}
	slog.Info("cast assembled", "speakers", len(speakers), "roster", a.director.Roster())
	return nil
}

func (a *App) initState(ctx context.Context) error {
	if a.store == nil {
		switch {
		case a.cfg.State.PostgresDSN != "":
			pg, pool, err := state.OpenPostgres(ctx, a.cfg.State.PostgresDSN, a.cfg.State.SceneID)
			if err != nil {
				return err
			}
			a.store = pg
			a.closers = append(a.closers, func() error { pool.Close(); return nil })
		case a.cfg.State.Path != "":
			a.store = state.NewFileStore(a.cfg.State.Path)
		default:
			a.store = &state.MemStore{}
		}
	}

	snap, ok, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok || snap.Empty() {
		slog.Info("starting a fresh scene")
		return nil
	}
	if err := a.director.Restore(snap); err != nil {
		slog.Warn("saved scene names unknown speakers; they were left out", "err", err)
	}
	a.resumed = true
	a.syncOnStage(ctx)
	slog.Info("scene restored", "on_stage", a.director.State().OnStage)
	return nil
}

// newRand returns a seeded source when seed is non-zero and a randomly seeded
// one otherwise.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Director returns the scene director.
func (a *App) Director() *scene.Director {
	return a.director
}

// Resumed reports whether New restored a saved scene.
func (a *App) Resumed() bool {
	return a.resumed
}

// Checkers returns the readiness checks of the running scene.
func (a *App) Checkers() []server.Checker {
	checks := []server.Checker{{
		Name: "cast",
		Check: func(context.Context) error {
			if len(a.director.Roster()) == 0 {
				return scene.ErrEmptyRoster
			}
			return nil
		},
	}}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Checker{Name: "state", Check: p.Ping})
	}
	return checks
}

// ─── Next ────────────────────────────────────────────────────────────────────

// Next produces exactly one line, persists the new state, and publishes the
// line to every sink.
//
// The first call on a fresh scene brings on cast.opening. A speaker failing
// to produce a sentence is returned as an error with the scene unchanged;
// callers log it and try again on the next tick. Save and sink failures are
// logged and counted but do not fail the call.
func (a *App) Next(ctx context.Context) (scene.Line, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := observe.StartLine(ctx, a.tracers)

	start := time.Now()
	line, err := a.advance(ctx)
	if err != nil {
		var se *scene.SpeakerError
		if errors.As(err, &se) {
			a.metrics.RecordGenerationFailure(ctx, se.Speaker)
		}
		observe.EndLine(span, "", "", err)
		return scene.Line{}, err
	}
	if line.Kind == scene.Dialogue {
		a.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("speaker", line.Speaker)),
		)
	}

	a.emit(ctx, line)
	observe.EndLine(span, line.Kind.String(), line.Speaker, nil)
	return line, nil
}

// advance picks the next line. Must be called with a.mu held.
func (a *App) advance(ctx context.Context) (scene.Line, error) {
	if !a.opened {
		a.opened = true
		if !a.resumed && len(a.cfg.Cast.Opening) > 0 {
			line, ok, err := a.director.EnterNames(a.cfg.Cast.Opening...)
			if err != nil {
				slog.Warn("opening names speakers outside the cast", "err", err)
			}
			if ok {
				return line, nil
			}
		}
	}
	return a.director.Advance(ctx)
}

// emit records, persists, and publishes line. Must be called with a.mu held.
func (a *App) emit(ctx context.Context, line scene.Line) {
	log := observe.Logger(ctx)

	a.metrics.RecordLine(ctx, line.Kind.String(), line.Speaker)
	a.syncOnStage(ctx)

	if err := a.store.Save(ctx, a.director.Snapshot()); err != nil {
		log.Error("failed to save scene", "err", err)
		a.metrics.RecordSinkError(ctx, "state")
	}

	for _, s := range a.sinks {
		if err := s.Publish(ctx, line); err != nil {
			log.Warn("failed to publish line", "sink", s.Name(), "err", err)
			a.metrics.RecordSinkError(ctx, s.Name())
		}
	}
	log.Debug("line emitted", "kind", line.Kind.String(), "line", line.String())
}

// syncOnStage moves the on-stage gauge to the director's current count.
func (a *App) syncOnStage(ctx context.Context) {
	n := len(a.director.State().OnStage)
	if d := n - a.onStage; d != 0 {
		a.metrics.OnStage.Add(ctx, int64(d))
		a.onStage = n
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run emits one line immediately and then one per driver.interval until ctx
// is cancelled. Failed lines are logged and skipped. It returns nil on
// cancellation.
func (a *App) Run(ctx context.Context) error {
	interval := a.cfg.Driver.Interval
	if interval <= 0 {
		return fmt.Errorf("app: driver.interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-a.interval:
			slog.Info("driver interval changed", "interval", d)
			ticker.Reset(d)
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	if _, err := a.Next(ctx); err != nil {
		observe.Logger(ctx).Warn("skipping turn", "err", err)
	}
}

// ApplyConfig applies the hot-reloadable parts of a config change: scene
// pacing and the online interval. Log level changes are applied by the
// caller, which owns the logger.
func (a *App) ApplyConfig(diff config.ConfigDiff) {
	if diff.PacingChanged {
		a.director.SetPacing(diff.NewPacing)
		slog.Info("scene pacing updated", "pacing", diff.NewPacing)
	}
	if diff.IntervalChanged && diff.NewInterval > 0 {
		// Keep only the newest value when Run has not picked up the last one.
		select {
		case <-a.interval:
		default:
		}
		a.interval <- diff.NewInterval
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", diff.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs the closers registered so far after a failed New.
func (a *App) close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
