package lexicon_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/verona/pkg/lexicon"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Default())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple sentence", "romeo doth love juliet.", []string{"romeo", "doth", "love", "juliet", "."}},
		{"contractions and hyphens", "'tis well-met, i'll go!", []string{"'tis", "well-met", ",", "i'll", "go", "!"}},
		{"placeholder", "stay -- hark", []string{"stay", "--", "hark"}},
		{"all punctuation", "a.b,c!d?e;f:g", []string{"a", ".", "b", ",", "c", "!", "d", "?", "e", ";", "f", ":", "g"}},
		{"case preserved", "Romeo ROMEO", []string{"Romeo", "ROMEO"}},
		{"empty", "   ", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := lex.Tokenize(tc.text)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Default())
	got := lex.SplitSentences("good morrow. how now? away!\n")
	want := []string{"good morrow", "how now", "away", ""}
	if !slices.Equal(got, want) {
		t.Fatalf("SplitSentences = %q, want %q", got, want)
	}
}

func TestShouldCapitalize(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Default())

	tests := []struct {
		word string
		want bool
	}{
		{"o", true},
		{"i", true},
		{"r", true},
		{"saint", true},
		{"angelica", true},
		{"i'll", true},
		{"i'm", true},
		{"I'M", true},
		{"o'er", true},
		{"'tis", true},
		{"hello", false},
		{"juliet", false},
		{"a", false},
		{"oh", false},
		{",", false},
	}

	for _, tc := range tests {
		if got := lex.ShouldCapitalize(tc.word); got != tc.want {
			t.Errorf("ShouldCapitalize(%q) = %v, want %v", tc.word, got, tc.want)
		}
	}
}

func TestShouldCapitalize_InjectedLists(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Config{
		CapitalizedWords:   []string{"verona"},
		CapitalizedLetters: []string{"x"},
	})
	if !lex.ShouldCapitalize("verona") || !lex.ShouldCapitalize("x") {
		t.Error("injected words and letters should be capitalized")
	}
	if lex.ShouldCapitalize("o") {
		t.Error("default letters must not leak into an injected config")
	}
}

func TestShouldCapitalize_NamePrefixes(t *testing.T) {
	t.Parallel()

	cfg := lexicon.Default()
	cfg.CapitalizedPrefixes = append(cfg.CapitalizedPrefixes, "romeo", "mantua")
	lex := lexicon.New(cfg)

	for _, w := range []string{"romeo", "romeo's", "mantua", "i'll"} {
		if !lex.ShouldCapitalize(w) {
			t.Errorf("ShouldCapitalize(%q) = false, want true", w)
		}
	}
	if lex.ShouldCapitalize("juliet") {
		t.Error("ShouldCapitalize(juliet) = true without a juliet prefix")
	}
}

func TestCapitalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"hello", "Hello"},
		{"'tis", "'Tis"},
		{"i", "I"},
		{"'", "'"},
		{"", ""},
		{"éclair", "Éclair"},
	}
	for _, tc := range tests {
		if got := lexicon.Capitalize(tc.in); got != tc.want {
			t.Errorf("Capitalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanStart(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Default())
	for _, tok := range []string{".", ",", "!", "?", ";", ":", lexicon.Placeholder} {
		if lex.CanStart(tok) {
			t.Errorf("CanStart(%q) = true, want false", tok)
		}
	}
	if !lex.CanStart("romeo") {
		t.Error("CanStart(romeo) = false, want true")
	}
}

func TestTerminators(t *testing.T) {
	t.Parallel()

	lex := lexicon.New(lexicon.Default())
	for _, tok := range []string{".", "!", "?"} {
		if !lex.IsTerminator(tok) {
			t.Errorf("IsTerminator(%q) = false", tok)
		}
	}
	for _, tok := range []string{",", ";", ":"} {
		if lex.IsTerminator(tok) {
			t.Errorf("IsTerminator(%q) = true", tok)
		}
		if !lex.IsPunctuation(tok) {
			t.Errorf("IsPunctuation(%q) = false", tok)
		}
	}
	if lex.Closer() != "." {
		t.Errorf("Closer() = %q, want %q", lex.Closer(), ".")
	}
}
