package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/verona/pkg/lexicon"
	"github.com/MrWong99/verona/pkg/markov"
)

// Compile-time interface check: markovSpeaker must satisfy Speaker.
var _ Speaker = (*markovSpeaker)(nil)

// SpeakerConfig holds everything needed to create a markov-backed [Speaker].
//
// Name, Table, and Lexicon are required. A nil Linker means every response
// falls back to a random sentence.
type SpeakerConfig struct {
	// Name is the display name. Must not be empty.
	Name string

	// Table is the speaker's own transition table, trained only on that
	// character's lines. Must not be nil.
	Table *markov.Table

	// Linker is the shared sentence-boundary model. Not owned.
	Linker *Linker

	// Lexicon supplies punctuation and capitalization rules. Must not be nil.
	Lexicon *lexicon.Lexicon

	// Limits bound sentence length. Zero fields take [DefaultLimits].
	Limits Limits
}

// markovSpeaker is the concrete implementation of [Speaker].
type markovSpeaker struct {
	name   string
	table  *markov.Table
	linker *Linker
	lex    *lexicon.Lexicon
	limits Limits
}

// NewSpeaker creates a [Speaker] from cfg.
func NewSpeaker(cfg SpeakerConfig) (Speaker, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent: speaker name must not be empty")
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("agent: speaker %q has nil Table", cfg.Name)
	}
	if cfg.Lexicon == nil {
		return nil, fmt.Errorf("agent: speaker %q has nil Lexicon", cfg.Name)
	}
	return &markovSpeaker{
		name:   cfg.Name,
		table:  cfg.Table,
		linker: cfg.Linker,
		lex:    cfg.Lexicon,
		limits: cfg.Limits.withDefaults(),
	}, nil
}

// Name implements [Speaker].
func (s *markovSpeaker) Name() string { return s.name }

// budget counts the assembly attempts left for one top-level generation,
// shared by every nested self-response.
type budget struct {
	left int
}

// GenerateSentence implements [Speaker].
//
// The first word is always capitalized. Continuations are sampled from the
// speaker's own table until a terminator is drawn. A finished sentence of
// at most MinLength characters is extended with a response to its own last
// word; one longer than MaxLength is thrown away and assembled again from
// firstWord. Both repairs draw on the same attempt budget, and exhausting
// it yields [ErrGenerationUnstable].
func (s *markovSpeaker) GenerateSentence(ctx context.Context, firstWord string) (string, error) {
	return s.generate(ctx, firstWord, &budget{left: s.limits.MaxRetries})
}

// RandomSentence implements [Speaker].
func (s *markovSpeaker) RandomSentence(ctx context.Context) (string, error) {
	return s.randomSentence(ctx, &budget{left: s.limits.MaxRetries})
}

// RespondToSentence implements [Speaker].
//
// The reply is keyed on the second-to-last token of sentence, skipping its
// closing terminator. Lines are generated with capitalized words while the
// models are trained on lower-cased text, so the key is lower-cased first.
func (s *markovSpeaker) RespondToSentence(ctx context.Context, sentence string) (string, error) {
	words := s.lex.Tokenize(sentence)
	if len(words) < 2 {
		return s.RandomSentence(ctx)
	}
	return s.RespondToWord(ctx, strings.ToLower(words[len(words)-2]))
}

// RespondToWord implements [Speaker].
func (s *markovSpeaker) RespondToWord(ctx context.Context, word string) (string, error) {
	return s.respondToWord(ctx, word, &budget{left: s.limits.MaxRetries})
}

func (s *markovSpeaker) randomSentence(ctx context.Context, b *budget) (string, error) {
	first, err := s.table.SampleRandomKey(ctx)
	if err != nil {
		return "", fmt.Errorf("agent: %s: random start: %w", s.name, err)
	}
	return s.generate(ctx, first, b)
}

func (s *markovSpeaker) respondToWord(ctx context.Context, word string, b *budget) (string, error) {
	first, ok, err := s.linker.Next(ctx, word)
	if err != nil {
		return "", fmt.Errorf("agent: %s: link %q: %w", s.name, word, err)
	}
	if !ok || first == lexicon.Placeholder {
		return s.randomSentence(ctx, b)
	}
	known, err := s.table.KnowsWord(ctx, first)
	if err != nil {
		return "", fmt.Errorf("agent: %s: %w", s.name, err)
	}
	if !known {
		return s.randomSentence(ctx, b)
	}
	return s.generate(ctx, first, b)
}

func (s *markovSpeaker) generate(ctx context.Context, firstWord string, b *budget) (string, error) {
	for b.left > 0 {
		b.left--

		sentence, last, fits, err := s.assemble(ctx, firstWord)
		if err != nil {
			return "", err
		}
		if !fits {
			continue
		}

		if utf8.RuneCountInString(sentence) <= s.limits.MinLength {
			more, err := s.respondToWord(ctx, last, b)
			if errors.Is(err, ErrGenerationUnstable) {
				continue
			}
			if err != nil {
				return "", err
			}
			sentence += " " + more
		}
		if utf8.RuneCountInString(sentence) <= s.limits.MaxLength {
			return sentence, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %q after %d attempts", ErrGenerationUnstable, s.name, firstWord, s.limits.MaxRetries)
}

// assemble samples one sentence from firstWord up to and including its
// terminator. last is the final raw word before the terminator. fits is false
// when the sentence outgrew MaxLength and was abandoned early.
func (s *markovSpeaker) assemble(ctx context.Context, firstWord string) (sentence, last string, fits bool, err error) {
	var sb strings.Builder
	sb.WriteString(lexicon.Capitalize(firstWord))
	n := utf8.RuneCountInString(firstWord)
	last = firstWord

	for {
		next, ok, err := s.table.SampleNext(ctx, last)
		if err != nil {
			return "", "", false, fmt.Errorf("agent: %s: %w", s.name, err)
		}
		if !ok {
			// Dead end: the word only ever closed a block without punctuation.
			next = s.lex.Closer()
		}

		if !s.lex.IsPunctuation(next) {
			sb.WriteByte(' ')
			n++
		}
		if s.lex.ShouldCapitalize(next) {
			sb.WriteString(lexicon.Capitalize(next))
		} else {
			sb.WriteString(next)
		}
		n += utf8.RuneCountInString(next)

		if s.lex.IsTerminator(next) {
			return sb.String(), last, true, nil
		}
		if n > s.limits.MaxLength {
			return "", last, false, nil
		}
		last = next
	}
}
