// Package mock provides an in-memory mock implementation of [agent.Speaker]
// for use in unit tests.
//
// The mock is safe for concurrent use, records method calls, and exposes
// exported fields for configuring return values.
//
// Example:
//
//	nurse := &mock.Speaker{
//	    NameResult:    "Nurse",
//	    RandomResult:  "Marry, I will.",
//	    RespondResult: "Ay, madam.",
//	}
//	line, err := nurse.RespondToSentence(ctx, "Where is my lady?")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/verona/internal/agent"
)

// Compile-time interface check.
var _ agent.Speaker = (*Speaker)(nil)

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock implementation of [agent.Speaker].
type Speaker struct {
	mu sync.Mutex

	// NameResult is returned by [Speaker.Name].
	NameResult string

	// GenerateResult is returned by [Speaker.GenerateSentence].
	GenerateResult string

	// GenerateError is returned by [Speaker.GenerateSentence].
	GenerateError error

	// RandomResult is returned by [Speaker.RandomSentence].
	RandomResult string

	// RandomError is returned by [Speaker.RandomSentence].
	RandomError error

	// RespondResult is returned by [Speaker.RespondToSentence] and
	// [Speaker.RespondToWord].
	RespondResult string

	// RespondError is returned by [Speaker.RespondToSentence] and
	// [Speaker.RespondToWord].
	RespondError error

	// GenerateCalls records the first word passed to each GenerateSentence call.
	GenerateCalls []string

	// RespondToSentenceCalls records the sentence passed to each
	// RespondToSentence call.
	RespondToSentenceCalls []string

	// RespondToWordCalls records the word passed to each RespondToWord call.
	RespondToWordCalls []string

	// CallCountRandom records how many times RandomSentence was called.
	CallCountRandom int
}

// Name implements [agent.Speaker]. Returns NameResult.
func (s *Speaker) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NameResult
}

// GenerateSentence implements [agent.Speaker]. Records firstWord and returns
// GenerateResult / GenerateError.
func (s *Speaker) GenerateSentence(_ context.Context, firstWord string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GenerateCalls = append(s.GenerateCalls, firstWord)
	return s.GenerateResult, s.GenerateError
}

// RandomSentence implements [agent.Speaker]. Returns RandomResult / RandomError.
func (s *Speaker) RandomSentence(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRandom++
	return s.RandomResult, s.RandomError
}

// RespondToSentence implements [agent.Speaker]. Records sentence and returns
// RespondResult / RespondError.
func (s *Speaker) RespondToSentence(_ context.Context, sentence string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RespondToSentenceCalls = append(s.RespondToSentenceCalls, sentence)
	return s.RespondResult, s.RespondError
}

// RespondToWord implements [agent.Speaker]. Records word and returns
// RespondResult / RespondError.
func (s *Speaker) RespondToWord(_ context.Context, word string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RespondToWordCalls = append(s.RespondToWordCalls, word)
	return s.RespondResult, s.RespondError
}

// Calls returns the total number of generation calls of any kind.
func (s *Speaker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.GenerateCalls) + len(s.RespondToSentenceCalls) + len(s.RespondToWordCalls) + s.CallCountRandom
}
