// Package markov implements a first-order word transition model.
//
// A [Table] is built once from a corpus of text blocks by counting every
// adjacent token pair inside a block. Sampling then walks a word's outgoing
// edges in first-seen order, so a seeded random source always reproduces the
// same output for the same corpus.
//
// Edge data lives behind a [Store], letting the table sit in process memory
// ([MemStore]) or in an embedded key/value database (see the badgerstore
// subpackage). Store lookups are the only points at which sampling blocks.
package markov

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/MrWong99/verona/pkg/lexicon"
)

// Sentinel errors.
var (
	// ErrEmptyCorpus is returned by [Build] when the corpus has no tokens.
	ErrEmptyCorpus = errors.New("markov: corpus yields no tokens")

	// ErrModelExhausted is returned by [Table.SampleRandomKey] when the table
	// has no word that may start a sentence.
	ErrModelExhausted = errors.New("markov: no keys to sample")
)

// Option configures a [Table].
type Option func(*Table)

// WithRand sets the random source used for sampling. Tables sharing a source
// must not be sampled concurrently.
func WithRand(r *rand.Rand) Option {
	return func(t *Table) {
		if r != nil {
			t.rng = r
		}
	}
}

// Table is a built, read-only transition table.
type Table struct {
	store    Store
	lex      *lexicon.Lexicon
	rng      *rand.Rand
	keys     []string
	starters int
}

// Build tokenizes every block of corpus and counts adjacent pairs, never
// across block boundaries, then writes the result to store in a single load.
func Build(ctx context.Context, store Store, lex *lexicon.Lexicon, corpus []string, opts ...Option) (*Table, error) {
	var (
		entries []Entry
		index   = make(map[string]int)
		edgeIdx = make(map[string]map[string]int)
		tokens  int
	)

	for _, block := range corpus {
		words := lex.Tokenize(block)
		tokens += len(words)
		for i := 0; i+1 < len(words); i++ {
			from, to := words[i], words[i+1]
			pos, ok := index[from]
			if !ok {
				pos = len(entries)
				index[from] = pos
				edgeIdx[from] = make(map[string]int)
				entries = append(entries, Entry{Word: from})
			}
			if j, ok := edgeIdx[from][to]; ok {
				entries[pos].Edges[j].Count++
				continue
			}
			edgeIdx[from][to] = len(entries[pos].Edges)
			entries[pos].Edges = append(entries[pos].Edges, Edge{Word: to, Count: 1})
		}
	}
	if tokens == 0 {
		return nil, ErrEmptyCorpus
	}

	if err := store.Load(ctx, entries); err != nil {
		return nil, fmt.Errorf("markov: load store: %w", err)
	}

	t := &Table{
		store: store,
		lex:   lex,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		keys:  make([]string, len(entries)),
	}
	for _, o := range opts {
		o(t)
	}
	for i, e := range entries {
		t.keys[i] = e.Word
		if lex.CanStart(e.Word) {
			t.starters++
		}
	}
	return t, nil
}

// Len returns the number of distinct "from" words.
func (t *Table) Len() int {
	return len(t.keys)
}

// Keys returns a copy of the "from" words in first-seen order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Edges returns the outgoing edges of word in sampling order. ok is false for
// an unknown word.
func (t *Table) Edges(ctx context.Context, word string) (edges []Edge, ok bool, err error) {
	edges, err = t.store.Edges(ctx, word)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("markov: edges %q: %w", word, err)
	}
	return edges, true, nil
}

// SampleNext draws a weighted-random continuation of word. ok is false when
// word is not a key of the table; that is not an error.
//
// A uniform r in [1, S] is drawn, S being the sum of the outgoing counts, and
// the edges are walked in stored order until the running sum reaches r.
func (t *Table) SampleNext(ctx context.Context, word string) (next string, ok bool, err error) {
	edges, ok, err := t.Edges(ctx, word)
	if err != nil || !ok {
		return "", false, err
	}

	var sum int64
	for _, e := range edges {
		sum += e.Count
	}
	if sum <= 0 {
		return "", false, nil
	}

	r := t.rng.Int64N(sum) + 1
	var partial int64
	for _, e := range edges {
		partial += e.Count
		if partial >= r {
			return e.Word, true, nil
		}
	}
	return "", false, nil
}

// SampleRandomKey returns a uniformly drawn "from" word, redrawing while the
// draw is punctuation or the [lexicon.Placeholder].
func (t *Table) SampleRandomKey(ctx context.Context) (string, error) {
	if t.starters == 0 {
		return "", ErrModelExhausted
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		w := t.keys[t.rng.IntN(len(t.keys))]
		if t.lex.CanStart(w) {
			return w, nil
		}
	}
}

// KnowsWord reports whether word is a key of the table.
func (t *Table) KnowsWord(ctx context.Context, word string) (bool, error) {
	_, ok, err := t.Edges(ctx, word)
	return ok, err
}
