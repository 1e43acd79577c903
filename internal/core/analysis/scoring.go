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
//
// The package has three parts:
//   - Scorer: weighted keyword sentiment with negation detection.
//   - ExtractSections: multi-strategy parsing of the five report sections.
//   - Coordinator: calls the text-generation backend and assembles the record.
package analysis

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// NegationWindow is how many characters before a match are checked for negation.
	NegationWindow = 50
	// NegatedCriticismFactor scales a negated negative term before it counts as praise.
	NegatedCriticismFactor = 0.8
	// NeutralScore is returned when praise and criticism cancel out.
	NeutralScore = 0.5

	scoreStep        = 0.05
	fullCreditWords  = 100.0
	minContentFactor = 0.5
	maxContentFactor = 1.0
)

// Evaluation exposes the intermediate values of a score.
type Evaluation struct {
	Positive      float64 // Weighted praise, including negated criticism.
	Negative      float64 // Weighted criticism, including negated praise.
	Words         int     // Whitespace separated words in the text.
	ContentFactor float64 // Words scaled into [0.5, 1]; short text counts less.
	Net           float64 // (Positive - Negative) * ContentFactor.
	Score         float64 // 0.5 + Net * 0.05, clamped to [0, 1] and rounded.
}

// Scorer computes section sentiment from a Lexicon.
type Scorer struct {
	lexicon *Lexicon
}

// NewScorer creates a Scorer. A nil lexicon selects DefaultLexicon.
func NewScorer(lexicon *Lexicon) *Scorer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Scorer{lexicon: lexicon}
}

// Score returns the sentiment of text in [0, 1], rounded to two decimals.
// Blank text scores 0; text without any lexicon hit scores 0.5.
func (s *Scorer) Score(text string) float64 {
	return s.Evaluate(text).Score
}

// Evaluate runs the scoring algorithm and returns every intermediate value.
//
// Logic Flow:
//  1. Every whole-word occurrence of a positive term adds its weight to
//     Positive, unless a negation phrase appears in the NegationWindow
//     characters before it, in which case it adds to Negative.
//  2. Negative terms mirror that. A negated criticism ("not boring") counts
//     as praise scaled by NegatedCriticismFactor.
//  3. The difference is scaled by the content factor and mapped around
//     NeutralScore.
func (s *Scorer) Evaluate(text string) Evaluation {
	if strings.TrimSpace(text) == "" {
		return Evaluation{}
	}

	var ev Evaluation
	for _, m := range s.lexicon.positive {
		for _, loc := range m.phrase.FindAll(text) {
			if s.lexicon.negated(precedingWindow(text, loc[0])) {
				ev.Negative += m.term.Weight
			} else {
				ev.Positive += m.term.Weight
			}
		}
	}
	for _, m := range s.lexicon.negative {
		for _, loc := range m.phrase.FindAll(text) {
			if s.lexicon.negated(precedingWindow(text, loc[0])) {
				ev.Positive += m.term.Weight * NegatedCriticismFactor
			} else {
				ev.Negative += m.term.Weight
			}
		}
	}

	ev.Words = len(strings.Fields(text))
	ev.ContentFactor = clamp(float64(ev.Words)/fullCreditWords, minContentFactor, maxContentFactor)
	ev.Net = (ev.Positive - ev.Negative) * ev.ContentFactor

	result := NeutralScore
	switch {
	case ev.Net > 0:
		result = math.Min(1.0, NeutralScore+ev.Net*scoreStep)
	case ev.Net < 0:
		result = math.Max(0.0, NeutralScore+ev.Net*scoreStep)
	}
	ev.Score = round2(result)
	return ev
}

// precedingWindow returns up to NegationWindow characters ending at offset.
func precedingWindow(text string, offset int) string {
	start := offset
	for n := 0; n < NegationWindow && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	return text[start:offset]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
