// Package corpus loads the play text the cast is trained on.
//
// A [Corpus] maps each speaker to the ordered list of their speeches and
// keeps a pooled list of every speech in document order. It can be read from
// a YAML document ({speaker: [speech, ...], all: [...]}) or parsed straight
// from an HTML edition of the play (see [ParseHTML]).
//
// Every speech is normalised with [Normalize]: bracketed stage directions are
// removed, text is lower-cased, and each line is trimmed.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

// PooledKey is the reserved document key holding every speech in order.
const PooledKey = "all"

var stageDirection = regexp.MustCompile(`\[.*?\]`)

// Normalize strips bracketed stage directions from every line of text,
// lower-cases it, and trims each line.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		l = stageDirection.ReplaceAllString(l, "")
		lines[i] = strings.TrimSpace(strings.ToLower(l))
	}
	return strings.Join(lines, "\n")
}

// Corpus is a parsed play. It is read-only after construction and safe for
// concurrent use.
type Corpus struct {
	names    []string            // speaker names, first appearance order
	speeches map[string][]string // lower-case name → speeches
	all      []string
}

// New returns an empty corpus to be filled with [Corpus.Add].
func New() *Corpus {
	return &Corpus{speeches: make(map[string][]string)}
}

// Add appends a speech for speaker, to both the speaker's list and the pooled
// list. The text is normalised first.
func (c *Corpus) Add(speaker, text string) {
	text = Normalize(text)
	c.add(speaker, text)
	c.all = append(c.all, text)
}

func (c *Corpus) add(speaker, text string) {
	key := c.register(speaker)
	c.speeches[key] = append(c.speeches[key], text)
}

// register records speaker on first sight and returns its lookup key.
func (c *Corpus) register(speaker string) string {
	key := strings.ToLower(speaker)
	if _, ok := c.speeches[key]; !ok {
		c.names = append(c.names, speaker)
		c.speeches[key] = nil
	}
	return key
}

// Lines returns the speeches of name, matched case-insensitively. The result
// is nil for an unknown speaker.
func (c *Corpus) Lines(name string) []string {
	return c.speeches[strings.ToLower(name)]
}

// All returns every speech in document order.
func (c *Corpus) All() []string {
	return c.all
}

// Speakers returns the speaker names in order of first appearance.
func (c *Corpus) Speakers() []string {
	return append([]string{}, c.names...)
}

// Suggest returns the corpus speaker whose name is most similar to name by
// Jaro-Winkler similarity, for diagnosing a roster typo. ok is false for an
// empty corpus.
func (c *Corpus) Suggest(name string) (best string, score float64, ok bool) {
	for _, n := range c.names {
		s := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(n), false)
		if !ok || s > score {
			best, score, ok = n, s, true
		}
	}
	return best, score, ok
}

// Load reads a corpus file. Files ending in .html or .htm are parsed with
// [ParseHTML]; everything else is decoded as YAML with [Decode].
func Load(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %q: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return ParseHTML(f)
	default:
		return Decode(f)
	}
}

// Decode reads a YAML corpus document: a mapping from speaker name to a
// sequence of speeches, plus an optional [PooledKey] entry. When the pooled
// entry is missing it is assembled from the speakers' speeches in document
// order.
func Decode(r io.Reader) (*Corpus, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("corpus: decode: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return New(), nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("corpus: line %d: top level must be a mapping of speaker to speeches", root.Line)
	}

	c := New()
	var pooled []string
	hasPooled := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		var speeches []string
		if err := val.Decode(&speeches); err != nil {
			return nil, fmt.Errorf("corpus: speaker %q: %w", key.Value, err)
		}
		if strings.EqualFold(key.Value, PooledKey) {
			hasPooled = true
			for _, s := range speeches {
				pooled = append(pooled, Normalize(s))
			}
			continue
		}
		c.register(key.Value)
		for _, s := range speeches {
			text := Normalize(s)
			c.add(key.Value, text)
			c.all = append(c.all, text)
		}
	}
	if hasPooled {
		c.all = pooled
	}
	return c, nil
}
