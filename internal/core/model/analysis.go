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

package model

// SectionID names one of the five analysis categories.
type SectionID int

const (
	TargetAudience SectionID = iota
	MessageClarity
	CallToAction
	ToneAndStyle
	EffectivenessEvaluation
)

// AllSections returns the five sections in document order.
func AllSections() []SectionID {
	return []SectionID{TargetAudience, MessageClarity, CallToAction, ToneAndStyle, EffectivenessEvaluation}
}

// sectionLabels holds the labels a model may use for each section, the
// canonical English one first. Spanish labels are accepted because the
// analysis prompt allows answers in the transcript's language.
var sectionLabels = map[SectionID][]string{
	TargetAudience:          {"Target Audience", "Audiencia Objetivo", "Público Objetivo"},
	MessageClarity:          {"Message Clarity", "Narrative Structure", "Claridad del Mensaje"},
	CallToAction:            {"Call to Action", "Call-to-Action", "Llamada a la Acción"},
	ToneAndStyle:            {"Tone and Style", "Storytelling", "Tono y Estilo"},
	EffectivenessEvaluation: {"Effectiveness Evaluation", "Emotional Triggers", "Evaluación de Efectividad"},
}

// Labels returns every accepted label for the section.
func (s SectionID) Labels() []string {
	return sectionLabels[s]
}

// Title is the canonical display label.
func (s SectionID) Title() string {
	if labels := sectionLabels[s]; len(labels) > 0 {
		return labels[0]
	}
	return ""
}

// Section is one scored analysis category. A section the parser could not
// locate is the zero value with a non-nil empty Elements slice.
type Section struct {
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Elements    []string `json:"elements"`
}

// EmptySection returns the placeholder used for sections that could not be found.
func EmptySection() Section {
	return Section{Elements: []string{}}
}

// IsEmpty reports whether nothing was extracted.
func (s Section) IsEmpty() bool {
	return s.Description == "" && len(s.Elements) == 0
}

// AnalysisRecord is the structured result of one analysis. Field names follow
// the report vocabulary, not the section labels; see Section.
type AnalysisRecord struct {
	TargetAudience     Section `json:"targetAudience"`
	NarrativeStructure Section `json:"narrativeStructure"`
	CallToAction       Section `json:"callToAction"`
	Storytelling       Section `json:"storytelling"`
	EmotionalTriggers  Section `json:"emotionalTriggers"`
	RawAnalysis        string  `json:"rawAnalysis"`
}

// Section returns the record field bound to a section id.
func (a *AnalysisRecord) Section(id SectionID) Section {
	switch id {
	case TargetAudience:
		return a.TargetAudience
	case MessageClarity:
		return a.NarrativeStructure
	case CallToAction:
		return a.CallToAction
	case ToneAndStyle:
		return a.Storytelling
	case EffectivenessEvaluation:
		return a.EmotionalTriggers
	}
	return EmptySection()
}

// SetSection stores a section under its fixed record field.
func (a *AnalysisRecord) SetSection(id SectionID, s Section) {
	switch id {
	case TargetAudience:
		a.TargetAudience = s
	case MessageClarity:
		a.NarrativeStructure = s
	case CallToAction:
		a.CallToAction = s
	case ToneAndStyle:
		a.Storytelling = s
	case EffectivenessEvaluation:
		a.EmotionalTriggers = s
	}
}

// Clone returns a deep copy.
func (a *AnalysisRecord) Clone() *AnalysisRecord {
	if a == nil {
		return nil
	}
	out := *a
	for _, id := range AllSections() {
		s := a.Section(id)
		s.Elements = append([]string{}, s.Elements...)
		out.SetSection(id, s)
	}
	return &out
}
