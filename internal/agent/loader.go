package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/verona/pkg/lexicon"
	"github.com/MrWong99/verona/pkg/markov"
)

// Part is one cast member's share of the corpus.
type Part struct {
	// Name is the speaker's display name.
	Name string

	// Lines are the speaker's lines, already normalised.
	Lines []string
}

// Loader creates markov-backed [Speaker] instances by wiring together their
// dependencies.
//
// A Loader is constructed once per run with the shared infrastructure (storage
// backend, lexicon, linker, limits, random source) and then used to train
// individual speakers via [Loader.Load] or a whole roster via
// [Loader.LoadAll].
//
// Loader is safe for concurrent use after construction; its fields are immutable.
type Loader struct {
	backend markov.Backend
	lex     *lexicon.Lexicon
	linker  *Linker
	limits  Limits
	rng     *rand.Rand
}

// LoaderOption is a functional option for [NewLoader].
type LoaderOption func(*Loader)

// WithLimits sets the sentence length limits of every speaker the loader
// creates.
func WithLimits(limits Limits) LoaderOption {
	return func(l *Loader) { l.limits = limits }
}

// WithRand makes every speaker sample from r. Speakers sharing a source must
// not generate concurrently.
func WithRand(r *rand.Rand) LoaderOption {
	return func(l *Loader) { l.rng = r }
}

// NewLoader creates a [Loader].
//
// backend holds the per-speaker transition tables, one namespace per speaker.
// linker may be nil, in which case every response starts at random.
func NewLoader(backend markov.Backend, lex *lexicon.Lexicon, linker *Linker, opts ...LoaderOption) *Loader {
	l := &Loader{
		backend: backend,
		lex:     lex,
		linker:  linker,
		limits:  DefaultLimits(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Namespace returns the backend namespace holding the table of the named
// speaker.
func Namespace(name string) string {
	return "cast/" + name
}

// Load trains a speaker on part.Lines and returns it.
//
// A part whose lines yield no tokens returns an error wrapping
// [markov.ErrEmptyCorpus].
func (l *Loader) Load(ctx context.Context, part Part) (Speaker, error) {
	if l.backend == nil {
		return nil, errors.New("agent: Loader has nil Backend")
	}
	if l.lex == nil {
		return nil, errors.New("agent: Loader has nil Lexicon")
	}

	var opts []markov.Option
	if l.rng != nil {
		opts = append(opts, markov.WithRand(l.rng))
	}
	table, err := markov.Build(ctx, l.backend.Namespace(Namespace(part.Name)), l.lex, part.Lines, opts...)
	if err != nil {
		return nil, fmt.Errorf("agent: train %q: %w", part.Name, err)
	}

	return NewSpeaker(SpeakerConfig{
		Name:    part.Name,
		Table:   table,
		Linker:  l.linker,
		Lexicon: l.lex,
		Limits:  l.limits,
	})
}

// LoadAll trains every part of the roster in parallel and returns the
// speakers in roster order.
//
// Parts with no usable lines are skipped with a warning. Any other failure
// cancels the remaining work and is returned.
func (l *Loader) LoadAll(ctx context.Context, parts []Part) ([]Speaker, error) {
	loaded := make([]Speaker, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			sp, err := l.Load(gctx, p)
			if errors.Is(err, markov.ErrEmptyCorpus) {
				slog.Warn("speaker has no usable lines, leaving them out of the cast", "speaker", p.Name)
				return nil
			}
			if err != nil {
				return err
			}
			loaded[i] = sp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	speakers := make([]Speaker, 0, len(loaded))
	for _, sp := range loaded {
		if sp != nil {
			speakers = append(speakers, sp)
		}
	}
	return speakers, nil
}
