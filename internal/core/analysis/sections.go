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

// Package analysis turns a raw model response into a scored AnalysisRecord.
// This file locates the five report sections in free-form model output.
//
// Logic Flow:
//  1. **Normalization**: CRLF becomes LF and a wrapping code fence is removed.
//  2. **Location**: For each section every label it is known by is tried
//     against each Strategy in priority order. The first non-blank body wins
//     and the strategy name is kept for diagnostics.
//  3. **Decomposition**: The body splits into the prose before the first
//     dash bullet (the description) and the bullets themselves (elements).
//  4. **Cleanup**: Elements are trimmed, very short ones are dropped and exact
//     duplicates collapse to their first occurrence.
//
// Models drift between markdown conventions from one response to the next,
// so several conventions are accepted rather than one strict format.
package analysis

import (
	"regexp"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Strategy locates the body of one labelled section in a raw document. It
// returns false when its markup convention is not present for that label.
// others holds the labels of every other section.
type Strategy struct {
	Name string                                                  // Reported in SectionText.Strategy.
	Find func(doc, label string, others []string) (string, bool) // Returns the raw body.
}

// capitalized label followed by a colon at the start of a line, e.g. "Call to Action:"
const labelColonLine = `\n[ \t]*\p{Lu}[\p{L} ]{2,40}:`

// bold label starting a line, optionally as a dash bullet: "**Tone**" or "- **Tone**"
const (
	boldLabelLine      = `\n[ \t]*(?:-[ \t]*)?\*\*[^*\n]+\*\*`
	boldColonLabelLine = `\n[ \t]*(?:-[ \t]*)?\*\*[^*\n]+:\*\*`
)

// labelEnd stops a label from matching the start of a longer word ("Audiences").
const labelEnd = `(?:\b|[ \t:*])`

// Strategies lists the markup conventions in priority order. The first one to
// return non-blank content wins.
var Strategies = []Strategy{
	{Name: "heading", Find: regexpStrategy(func(l string, _ string) string {
		return `(?s)###[ \t]*(?:\*\*)?(?i:` + l + `)` + labelEnd + `(?:\*\*)?[ \t]*:?(?:\*\*)?(.*?)(?:\n###|\z)`
	})},
	{Name: "label-colon", Find: regexpStrategy(func(l string, _ string) string {
		return `(?ms)^[ \t]*(?i:` + l + `):(.*?)(?:` + labelColonLine + `|\z)`
	})},
	{Name: "label-space", Find: regexpStrategy(func(l string, all string) string {
		return `(?ms)^[ \t]*(?i:` + l + `)[ \t]+(.*?)(?:\n[ \t]*(?:#+[ \t]*)?(?:-[ \t]*)?(?:\*\*)?(?i:` + all + `)` + labelEnd + `|\z)`
	})},
	{Name: "bold", Find: regexpStrategy(func(l string, _ string) string {
		return `(?s)\*\*(?i:` + l + `)\*\*[ \t]*:?(.*?)(?:` + boldLabelLine + `|\z)`
	})},
	{Name: "bold-colon", Find: regexpStrategy(func(l string, _ string) string {
		return `(?s)\*\*(?i:` + l + `):\*\*(.*?)(?:` + boldColonLabelLine + `|\z)`
	})},
	{Name: "dash-label", Find: regexpStrategy(func(l string, _ string) string {
		return `(?ms)^[ \t]*-[ \t]*(?:\*\*)?(?i:` + l + `)(?:\*\*)?:(?:\*\*)?(.*?)(?:\n-[ \t]*(?:\*\*)?\p{Lu}[\p{L} ]{2,40}:|\z)`
	})},
	{Name: "label-newline", Find: regexpStrategy(func(l string, _ string) string {
		return `(?ms)^[ \t]*(?:\*\*)?(?i:` + l + `)(?:\*\*)?[ \t]*:?[ \t]*\n(.*?)(?:` + labelColonLine + `|\z)`
	})},
	{Name: "until-next-label", Find: func(doc, label string, others []string) (string, bool) {
		l := labelPattern(label)
		stop := `\z`
		if len(others) > 0 {
			stop = `(?:-[ \t]*)?(?:\*\*)?(?:` + alternation(others) + `)|\z`
		}
		re, err := compile(`(?is)(?:-[ \t]*)?(?:\*\*)?` + l + `(?:\*\*)?[ \t]*:?(?:\*\*)?(.*?)(?:` + stop + `)`)
		if err != nil {
			return "", false
		}
		return firstGroup(re, doc)
	}},
}

// regexpStrategy builds a Strategy from a pattern template. The template gets
// the quoted label and an alternation of every known label.
func regexpStrategy(pattern func(label, all string) string) func(doc, label string, others []string) (string, bool) {
	return func(doc, label string, others []string) (string, bool) {
		all := alternation(append([]string{label}, others...))
		re, err := compile(pattern(labelPattern(label), all))
		if err != nil {
			return "", false
		}
		return firstGroup(re, doc)
	}
}

var compiled sync.Map

// compile caches patterns; labels are a fixed set so the cache stays small.
func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := compiled.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	compiled.Store(pattern, re)
	return re, nil
}

func firstGroup(re *regexp.Regexp, doc string) (string, bool) {
	m := re.FindStringSubmatch(doc)
	if m == nil {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	return body, body != ""
}

// labelPattern quotes a label and lets any run of blanks separate its words.
func labelPattern(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `[ \t]+`)
}

func alternation(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, labelPattern(l))
	}
	return strings.Join(parts, "|")
}

// SectionText is the parsed, unscored content of one section.
type SectionText struct {
	Description string
	Elements    []string // document order, duplicates kept
	Strategy    string   // name of the strategy that matched, empty when not found
}

// FullText is the text the scorer sees: description followed by every element.
func (s SectionText) FullText() string {
	if len(s.Elements) == 0 {
		return s.Description
	}
	return s.Description + "\n" + strings.Join(s.Elements, "\n")
}

// ExtractSections parses the five sections out of a raw document. Sections
// that cannot be located come back empty, never missing.
func ExtractSections(raw string) map[model.SectionID]SectionText {
	doc := normalizeDocument(raw)
	out := make(map[model.SectionID]SectionText, len(model.AllSections()))
	for _, id := range model.AllSections() {
		out[id] = extractSection(doc, id)
	}
	return out
}

func extractSection(doc string, id model.SectionID) SectionText {
	others := otherLabels(id)
	for _, strategy := range Strategies {
		for _, label := range id.Labels() {
			body, ok := strategy.Find(doc, label, others)
			if !ok {
				continue
			}
			return SectionText{
				Description: ExtractMainText(body, id.Labels()),
				Elements:    ExtractBulletPoints(body),
				Strategy:    strategy.Name,
			}
		}
	}
	return SectionText{Elements: []string{}}
}

func otherLabels(id model.SectionID) []string {
	var out []string
	for _, other := range model.AllSections() {
		if other != id {
			out = append(out, other.Labels()...)
		}
	}
	return out
}

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*?)\\n?```$")

// normalizeDocument unifies line endings and drops a wrapping code fence.
func normalizeDocument(raw string) string {
	doc := strings.ReplaceAll(raw, "\r\n", "\n")
	doc = strings.TrimSpace(doc)
	if m := codeFence.FindStringSubmatch(doc); m != nil {
		doc = m[1]
	}
	return doc
}
