// Package agent defines the Speaker abstraction: one cast member with its own
// idiolect model, able to open a fresh line or answer somebody else's.
//
// The two building blocks are:
//
//   - [Speaker] is a cast member. The markov-backed implementation returned by
//     [NewSpeaker] owns a transition table trained on that character's lines
//     only.
//   - [Linker] is a model of sentence-boundary transitions (last word of one
//     sentence → first word of the next) shared read-only by every speaker
//     and used to pick the opening word of a reply.
//
// This package lives under internal/ because it encapsulates application-private
// generation logic and is not intended to be imported by external code.
package agent

import (
	"context"
	"errors"
)

// ErrGenerationUnstable is returned when sentence generation cannot produce a
// line within the length bounds before its retry budget runs out. Drivers
// should log it and skip the turn.
var ErrGenerationUnstable = errors.New("agent: sentence generation did not converge")

// Speaker is a cast member that produces dialogue.
//
// Implementations are read-only after construction and safe to call
// repeatedly, but calls sharing a random source must not run concurrently;
// the scene director serialises them.
type Speaker interface {
	// Name returns the display name of the speaker (e.g. "Lady Capulet").
	// Names are stable and unique within a roster.
	Name() string

	// GenerateSentence assembles a sentence starting with firstWord.
	GenerateSentence(ctx context.Context, firstWord string) (string, error)

	// RandomSentence starts a sentence from a random word of the speaker's
	// own vocabulary.
	RandomSentence(ctx context.Context) (string, error)

	// RespondToSentence answers another line, keyed on its final word.
	RespondToSentence(ctx context.Context, sentence string) (string, error)

	// RespondToWord answers a single word via the shared [Linker], falling
	// back to [Speaker.RandomSentence] when no usable opening word exists.
	RespondToWord(ctx context.Context, word string) (string, error)
}

// Limits bound the length of generated sentences, measured in characters.
type Limits struct {
	// MinLength is the longest sentence still considered too short; such a
	// sentence is extended by responding to its own last word. Default 10.
	MinLength int `yaml:"min_length"`

	// MaxLength is the longest sentence accepted; longer ones are discarded
	// and regenerated. Default 140.
	MaxLength int `yaml:"max_length"`

	// MaxRetries caps the number of assembly attempts spent on one sentence,
	// including the attempts of any self-responses. Default 50.
	MaxRetries int `yaml:"max_retries"`
}

// DefaultLimits returns the default sentence length limits.
func DefaultLimits() Limits {
	return Limits{MinLength: 10, MaxLength: 140, MaxRetries: 50}
}

// withDefaults fills zero fields from [DefaultLimits].
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MinLength <= 0 {
		l.MinLength = d.MinLength
	}
	if l.MaxLength <= 0 {
		l.MaxLength = d.MaxLength
	}
	if l.MaxRetries <= 0 {
		l.MaxRetries = d.MaxRetries
	}
	return l
}
