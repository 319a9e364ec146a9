// Package lexicon holds the token pattern, punctuation sets, and
// capitalization lists shared by transition-model training and sentence
// rendering.
//
// All lists are plain configuration data. [Default] returns the contraction,
// word, and letter lists of the play; proper names are left to configuration.
// Callers may replace any of them.
package lexicon

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder is the artifact token standing in for an em dash. It is never
// used to start a sentence.
const Placeholder = "--"

// wordRun matches runs of word characters, apostrophes, and hyphens.
const wordRun = `[\w'-]+`

// Config lists the configurable token classes.
type Config struct {
	// Punctuation lists single tokens that attach to the previous token
	// without a leading space.
	Punctuation []string `yaml:"punctuation"`

	// Terminators lists punctuation tokens that end a sentence. The first
	// entry is used to close a sentence that reaches a dead end.
	Terminators []string `yaml:"terminators"`

	// CapitalizedPrefixes are case-insensitive prefixes ("i'" style
	// contractions, optionally proper names) that force capitalization.
	CapitalizedPrefixes []string `yaml:"capitalized_prefixes"`

	// CapitalizedWords are whole words that are always capitalized.
	CapitalizedWords []string `yaml:"capitalized_words"`

	// CapitalizedLetters are single-letter words (pronouns, interjections)
	// that are always capitalized.
	CapitalizedLetters []string `yaml:"capitalized_letters"`
}

// Default returns the lexicon configuration used when none is supplied.
func Default() Config {
	return Config{
		Punctuation: []string{".", ",", "!", "?", ";", ":"},
		Terminators: []string{".", "!", "?"},
		CapitalizedPrefixes: []string{"i'", "'tis", "'twas", "o'"},
		CapitalizedWords:   []string{"angelica", "i'll", "saint"},
		CapitalizedLetters: []string{"i", "o", "r"},
	}
}

// Lexicon is the compiled, read-only form of a [Config]. It is safe for
// concurrent use.
type Lexicon struct {
	tokens      *regexp.Regexp
	sentences   *regexp.Regexp
	punctuation map[string]struct{}
	terminators map[string]struct{}
	closer      string
	prefixes    []string
	words       map[string]struct{}
	letters     map[string]struct{}
}

// New compiles cfg. Empty token classes fall back to the [Default] lists so
// that a partially filled config still tokenizes sensibly.
func New(cfg Config) *Lexicon {
	def := Default()
	if len(cfg.Punctuation) == 0 {
		cfg.Punctuation = def.Punctuation
	}
	if len(cfg.Terminators) == 0 {
		cfg.Terminators = def.Terminators
	}

	l := &Lexicon{
		punctuation: toSet(cfg.Punctuation),
		terminators: toSet(cfg.Terminators),
		closer:      cfg.Terminators[0],
		words:       toSet(cfg.CapitalizedWords),
		letters:     toSet(cfg.CapitalizedLetters),
	}
	for _, p := range cfg.CapitalizedPrefixes {
		if p != "" {
			l.prefixes = append(l.prefixes, strings.ToLower(p))
		}
	}
	l.tokens = regexp.MustCompile(wordRun + "|" + alternation(cfg.Punctuation))
	l.sentences = regexp.MustCompile(alternation(cfg.Terminators))
	return l
}

// Tokenize returns the tokens of text in order. Case is preserved.
func (l *Lexicon) Tokenize(text string) []string {
	return l.tokens.FindAllString(text, -1)
}

// SplitSentences splits text on terminator tokens and trims each fragment.
// The fragment after the last terminator is included, mirroring a plain
// string split; callers decide whether to keep it.
func (l *Lexicon) SplitSentences(text string) []string {
	parts := l.sentences.Split(text, -1)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// IsPunctuation reports whether tok is a punctuation token.
func (l *Lexicon) IsPunctuation(tok string) bool {
	_, ok := l.punctuation[tok]
	return ok
}

// IsTerminator reports whether tok ends a sentence.
func (l *Lexicon) IsTerminator(tok string) bool {
	_, ok := l.terminators[tok]
	return ok
}

// Closer returns the terminator appended when generation hits a word with no
// continuation.
func (l *Lexicon) Closer() string {
	return l.closer
}

// CanStart reports whether tok may open a sentence.
func (l *Lexicon) CanStart(tok string) bool {
	return tok != Placeholder && !l.IsPunctuation(tok)
}

// ShouldCapitalize reports whether word is forced to upper case by the
// configured prefix, word, or letter lists.
func (l *Lexicon) ShouldCapitalize(word string) bool {
	lower := strings.ToLower(word)
	for _, p := range l.prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	if _, ok := l.words[word]; ok {
		return true
	}
	_, ok := l.letters[word]
	return ok
}

// Capitalize upper-cases the first letter of word. A leading apostrophe is
// kept in place and the letter after it is upper-cased ("'tis" → "'Tis").
func Capitalize(word string) string {
	if word == "" {
		return word
	}
	lead := ""
	rest := word
	if rest[0] == '\'' {
		lead, rest = "'", rest[1:]
		if rest == "" {
			return word
		}
	}
	r, size := utf8.DecodeRuneInString(rest)
	return lead + string(unicode.ToUpper(r)) + rest[size:]
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// alternation builds a regexp alternation matching any of the literal tokens,
// longest first so multi-character tokens win over their prefixes.
func alternation(tokens []string) string {
	sorted := slices.Clone(tokens)
	slices.SortFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	quoted := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}
