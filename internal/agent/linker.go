package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/verona/pkg/lexicon"
	"github.com/MrWong99/verona/pkg/markov"
)

// Linker models which word tends to open a sentence after a given word closed
// the previous one. It is built once from the pooled corpus and shared by all
// speakers.
type Linker struct {
	table *markov.Table // nil when the corpus had fewer than two sentences
	pairs int
}

// BuildLinker splits the pooled lines into sentences and trains a table over
// one synthetic two-word line per consecutive pair: "<last of prev> <first of
// next>". A corpus with fewer than two sentences produces an empty linker,
// for which every lookup misses.
func BuildLinker(ctx context.Context, store markov.Store, lex *lexicon.Lexicon, pooled []string, opts ...markov.Option) (*Linker, error) {
	sentences := lex.SplitSentences(strings.Join(pooled, "\n"))
	if len(sentences) > 0 {
		sentences = sentences[:len(sentences)-1] // fragment after the final terminator
	}

	var (
		pairs    []string
		lastWord string
	)
	for _, s := range sentences {
		words := lex.Tokenize(s)
		if len(words) == 0 {
			continue
		}
		if lastWord != "" {
			pairs = append(pairs, lastWord+" "+words[0])
		}
		lastWord = words[len(words)-1]
	}

	if len(pairs) == 0 {
		return &Linker{}, nil
	}
	table, err := markov.Build(ctx, store, lex, pairs, opts...)
	if errors.Is(err, markov.ErrEmptyCorpus) {
		return &Linker{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("agent: build linker: %w", err)
	}
	return &Linker{table: table, pairs: len(pairs)}, nil
}

// Next samples a sentence opener following word. ok is false when the linker
// has never seen word close a sentence.
func (l *Linker) Next(ctx context.Context, word string) (string, bool, error) {
	if l == nil || l.table == nil {
		return "", false, nil
	}
	return l.table.SampleNext(ctx, word)
}

// Pairs returns the number of sentence boundaries the linker was trained on.
func (l *Linker) Pairs() int {
	if l == nil {
		return 0
	}
	return l.pairs
}
