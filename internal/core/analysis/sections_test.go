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
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// TestExtractSectionsMarkupInvariance feeds the same section in every markup
// convention the parser supports and expects identical output.
func TestExtractSectionsMarkupInvariance(t *testing.T) {
	wantElements := []string{"informal tone", "references pop culture"}

	cases := []struct {
		strategy string
		doc      string
	}{
		{"heading", "### Target Audience\nYoung adults.\n- informal tone\n- references pop culture"},
		{"label-colon", "Target Audience: Young adults.\n- informal tone\n- references pop culture"},
		{"label-space", "Target Audience Young adults.\n- informal tone\n- references pop culture"},
		{"bold", "**Target Audience** Young adults.\n- informal tone\n- references pop culture"},
		{"bold-colon", "**Target Audience:** Young adults.\n- informal tone\n- references pop culture"},
		{"dash-label", "- Target Audience: Young adults.\n  - informal tone\n  - references pop culture"},
		{"label-newline", "Target Audience\nYoung adults.\n- informal tone\n- references pop culture"},
		{"until-next-label", "Summary of the target audience: Young adults.\n- informal tone\n- references pop culture"},
	}

	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			got := ExtractSections(tc.doc)[model.TargetAudience]
			assert.Equal(t, got.Strategy, tc.strategy)
			assert.Equal(t, got.Description, "Young adults.")
			assert.DeepEqual(t, got.Elements, wantElements)
		})
	}
}

func TestExtractSectionsDashBoldSectionsStaySeparate(t *testing.T) {
	doc := strings.Join([]string{
		"- **Target Audience**: Young adults.",
		"  - informal tone",
		"  - references pop culture",
		"- **Message Clarity**: One promise.",
		"  - free to play",
		"- **Call to Action**: Download now.",
		"  - link in bio",
	}, "\n")

	sections := ExtractSections(doc)

	audience := sections[model.TargetAudience]
	assert.Equal(t, audience.Strategy, "bold")
	assert.Equal(t, audience.Description, "Young adults.")
	assert.DeepEqual(t, audience.Elements, []string{"informal tone", "references pop culture"})

	clarity := sections[model.MessageClarity]
	assert.Equal(t, clarity.Description, "One promise.")
	assert.DeepEqual(t, clarity.Elements, []string{"free to play"})

	cta := sections[model.CallToAction]
	assert.Equal(t, cta.Description, "Download now.")
	assert.DeepEqual(t, cta.Elements, []string{"link in bio"})
}

func TestExtractSectionsDashBoldColonSectionsStaySeparate(t *testing.T) {
	doc := "- **Target Audience:** Young adults.\n  - informal tone\n- **Message Clarity:** One promise.\n  - free to play"

	sections := ExtractSections(doc)

	assert.Equal(t, sections[model.TargetAudience].Strategy, "bold-colon")
	assert.DeepEqual(t, sections[model.TargetAudience].Elements, []string{"informal tone"})
	assert.DeepEqual(t, sections[model.MessageClarity].Elements, []string{"free to play"})
}

func TestExtractSectionsHeadingNeedsWholeLabel(t *testing.T) {
	doc := "### Target Audiences\nBroad reach.\n\n**Target Audience**: Young adults.\n- informal tone"

	got := ExtractSections(doc)[model.TargetAudience]

	assert.Equal(t, got.Strategy, "bold")
	assert.Equal(t, got.Description, "Young adults.")
	assert.DeepEqual(t, got.Elements, []string{"informal tone"})
}

func TestExtractSectionsLabelSpaceIgnoresLongerWords(t *testing.T) {
	doc := "Target Audience Young adults.\n- informal tone\n- Tone and Styles shift often"

	got := ExtractSections(doc)[model.TargetAudience]

	assert.Equal(t, got.Strategy, "label-space")
	assert.Equal(t, got.Description, "Young adults.")
	assert.DeepEqual(t, got.Elements, []string{"informal tone", "Tone and Styles shift often"})
}

func TestExtractSectionsMissingSectionIsEmpty(t *testing.T) {
	doc := strings.Join([]string{
		"**Target Audience**: Teenagers who play mobile games.",
		"- bright colours",
		"",
		"**Message Clarity**: One clear promise.",
		"- free to play",
		"",
		"**Tone and Style**: Playful.",
		"- cartoon mascot",
		"",
		"**Effectiveness Evaluation**: Solid.",
		"- short runtime",
	}, "\n")

	sections := ExtractSections(doc)

	missing := sections[model.CallToAction]
	assert.Equal(t, missing.Description, "")
	assert.Equal(t, len(missing.Elements), 0)
	assert.NotNil(t, missing.Elements)

	assert.Equal(t, sections[model.TargetAudience].Description, "Teenagers who play mobile games.")
	assert.DeepEqual(t, sections[model.TargetAudience].Elements, []string{"bright colours"})
	assert.Equal(t, sections[model.MessageClarity].Description, "One clear promise.")
	assert.DeepEqual(t, sections[model.MessageClarity].Elements, []string{"free to play"})
	assert.Equal(t, sections[model.ToneAndStyle].Description, "Playful.")
	assert.DeepEqual(t, sections[model.EffectivenessEvaluation].Elements, []string{"short runtime"})
}

func TestExtractSectionsHeadings(t *testing.T) {
	doc := strings.Join([]string{
		"### Target Audience",
		"Parents of toddlers.",
		"- nursery setting",
		"### Message Clarity",
		"Clear benefit.",
		"- sleep better",
		"### Call to Action",
		"Visit the store.",
		"- link in bio",
		"### Tone and Style",
		"Warm.",
		"- soft piano",
		"### Effectiveness Evaluation",
		"Likely to convert.",
		"- emotional close",
	}, "\n")

	sections := ExtractSections(doc)
	for _, id := range model.AllSections() {
		assert.Equal(t, sections[id].Strategy, "heading")
		assert.Equal(t, len(sections[id].Elements), 1)
	}
	assert.Equal(t, sections[model.CallToAction].Description, "Visit the store.")
	assert.DeepEqual(t, sections[model.CallToAction].Elements, []string{"link in bio"})
}

func TestExtractSectionsSpanishLabels(t *testing.T) {
	doc := "**Audiencia Objetivo**: Jóvenes universitarios.\n- tono cercano\n\n**Llamada a la Acción**: Descargar la app.\n- código de descuento"

	sections := ExtractSections(doc)
	assert.Equal(t, sections[model.TargetAudience].Description, "Jóvenes universitarios.")
	assert.DeepEqual(t, sections[model.CallToAction].Elements, []string{"código de descuento"})
}

func TestExtractSectionsStripsCodeFence(t *testing.T) {
	doc := "```markdown\n**Target Audience**: Gamers.\n- esports references\n```"

	got := ExtractSections(doc)[model.TargetAudience]
	assert.Equal(t, got.Description, "Gamers.")
	assert.DeepEqual(t, got.Elements, []string{"esports references"})
}

func TestExtractBulletPoints(t *testing.T) {
	body := "Intro line\n- first\n  - nested\n---\n-- not a bullet\n-\n- first\n* star bullet"

	assert.DeepEqual(t, ExtractBulletPoints(body), []string{"first", "nested", "first"})
}

func TestExtractMainText(t *testing.T) {
	labels := model.TargetAudience.Labels()

	assert.Equal(t, ExtractMainText("**Target Audience**: Students.\n- cheap", labels), "Students.")
	assert.Equal(t, ExtractMainText("**Key idea** stays.\n- cheap", labels), "**Key idea** stays.")
	assert.Equal(t, ExtractMainText(": Only prose, no bullets.", labels), "Only prose, no bullets.")
	assert.Equal(t, ExtractMainText("- only bullets", labels), "")
}

func TestUniqueElements(t *testing.T) {
	in := []string{" fast cuts ", "ok", "fast cuts", "abc", "abcd", "", "upbeat music", "abcd"}

	assert.DeepEqual(t, UniqueElements(in), []string{"fast cuts", "abcd", "upbeat music"})
	assert.DeepEqual(t, UniqueElements(nil), []string{})
}
