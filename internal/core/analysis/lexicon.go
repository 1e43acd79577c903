// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Term is a weighted lexicon entry.
type Term struct {
	Text     string  `yaml:"term"`
	Weight   float64 `yaml:"weight"`
	Language string  `yaml:"lang"`
}

// Lexicon holds the weighted positive and negative vocabularies and the
// negation phrases inspected before each match.
type Lexicon struct {
	Positive  []Term   `yaml:"positive"`
	Negative  []Term   `yaml:"negative"`
	Negations []string `yaml:"negations"`

	positive  []termMatcher
	negative  []termMatcher
	negations []*phraseMatcher
}

type termMatcher struct {
	term   Term
	phrase *phraseMatcher
}

// phraseMatcher finds whole-word, case-insensitive occurrences of a phrase.
// RE2's \b is ASCII-only, so word boundaries are checked on runes after the
// regexp has located a candidate.
type phraseMatcher struct {
	re *regexp.Regexp
}

func newPhraseMatcher(phrase string) (*phraseMatcher, error) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty phrase")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(words, `\s+`))
	if err != nil {
		return nil, err
	}
	return &phraseMatcher{re: re}, nil
}

// FindAll returns the [start, end) byte offsets of every whole-word match.
func (p *phraseMatcher) FindAll(text string) [][]int {
	candidates := p.re.FindAllStringIndex(text, -1)
	out := candidates[:0]
	for _, loc := range candidates {
		if isWordBoundary(text, loc[0], loc[1]) {
			out = append(out, loc)
		}
	}
	return out
}

// Contains reports whether text holds at least one whole-word match.
func (p *phraseMatcher) Contains(text string) bool {
	return len(p.FindAll(text)) > 0
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// ParseLexicon decodes and compiles a YAML lexicon. Duplicate terms within a
// polarity are dropped, keeping the first.
func ParseLexicon(data []byte) (*Lexicon, error) {
	lex := &Lexicon{}
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("failed to decode lexicon: %w", err)
	}
	var err error
	if lex.positive, err = compileTerms(lex.Positive); err != nil {
		return nil, fmt.Errorf("positive terms: %w", err)
	}
	if lex.negative, err = compileTerms(lex.Negative); err != nil {
		return nil, fmt.Errorf("negative terms: %w", err)
	}
	for _, n := range lex.Negations {
		m, err := newPhraseMatcher(n)
		if err != nil {
			return nil, fmt.Errorf("negation %q: %w", n, err)
		}
		lex.negations = append(lex.negations, m)
	}
	return lex, nil
}

func compileTerms(terms []Term) ([]termMatcher, error) {
	seen := make(map[string]bool, len(terms))
	out := make([]termMatcher, 0, len(terms))
	for _, t := range terms {
		key := strings.ToLower(strings.Join(strings.Fields(t.Text), " "))
		if key == "" {
			return nil, fmt.Errorf("empty term")
		}
		if t.Weight <= 0 {
			return nil, fmt.Errorf("term %q: weight must be positive, got %v", t.Text, t.Weight)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		m, err := newPhraseMatcher(t.Text)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", t.Text, err)
		}
		out = append(out, termMatcher{term: t, phrase: m})
	}
	return out, nil
}

var defaultLexicon = sync.OnceValue(func() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(err) // The embedded lexicon is part of the binary; it must parse.
	}
	return lex
})

// DefaultLexicon returns the embedded English/Spanish lexicon.
func DefaultLexicon() *Lexicon {
	return defaultLexicon()
}

// negated reports whether a negation phrase occurs in the window preceding a match.
func (l *Lexicon) negated(window string) bool {
	for _, n := range l.negations {
		if n.Contains(window) {
			return true
		}
	}
	return false
}
