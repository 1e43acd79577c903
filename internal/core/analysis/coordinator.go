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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// TextGenerator is the text-generation backend.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Prompts configures the instructions sent to the backend. Empty values fall
// back to DefaultSystemPrompt and DefaultUserPrompt.
type Prompts struct {
	System string
	User   string
}

// Coordinator runs one analysis: prompt, backend call, section extraction and
// scoring.
type Coordinator struct {
	generator    TextGenerator
	scorer       *Scorer
	systemPrompt string
	userTemplate *template.Template
}

// NewCoordinator validates the prompt template and returns a Coordinator.
// A nil scorer uses the default lexicon.
func NewCoordinator(generator TextGenerator, scorer *Scorer, prompts Prompts) (*Coordinator, error) {
	if generator == nil {
		return nil, errors.New("analysis: text generator is required")
	}
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	system := prompts.System
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	user := prompts.User
	if strings.TrimSpace(user) == "" {
		user = DefaultUserPrompt
	}
	tmpl, err := template.New("analysis-user-prompt").Option("missingkey=error").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("analysis: invalid user prompt template: %w", err)
	}
	return &Coordinator{generator: generator, scorer: scorer, systemPrompt: system, userTemplate: tmpl}, nil
}

// PromptParams returns the values the user prompt template is rendered with.
func PromptParams(transcriptText string, video *model.VideoMetadata) map[string]interface{} {
	params := map[string]interface{}{
		"TRANSCRIPT":    transcriptText,
		"DURATION":      NotAvailable,
		"FORMAT":        NotAvailable,
		"ORIGINAL_NAME": NotAvailable,
		"EXAMPLE":       model.GetExampleAnalysis(),
	}
	if video == nil {
		return params
	}
	if video.DurationSeconds > 0 {
		params["DURATION"] = fmt.Sprintf("%.1f seconds", video.DurationSeconds)
	}
	if video.PixelFormat != "" {
		params["FORMAT"] = video.PixelFormat
	}
	if video.OriginalName != "" {
		params["ORIGINAL_NAME"] = video.OriginalName
	}
	return params
}

// BuildUserPrompt renders the user message for a transcript.
func (c *Coordinator) BuildUserPrompt(transcriptText string, video *model.VideoMetadata) (string, error) {
	var buffer bytes.Buffer
	if err := c.userTemplate.Execute(&buffer, PromptParams(transcriptText, video)); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// Analyze produces the AnalysisRecord for a transcript. Backend failures and
// blank responses return ErrBackend and no record.
//
// Inputs:
//   - ctx: Bounds the backend call.
//   - transcriptText: The transcript to analyze.
//   - video: Optional metadata rendered into the prompt; missing values read
//     as NotAvailable.
//
// Outputs:
//   - *model.AnalysisRecord: Every section present, possibly empty, with
//     RawAnalysis holding the response.
//   - error: ErrBackend, including when the prompt fails to render.
func (c *Coordinator) Analyze(ctx context.Context, transcriptText string, video *model.VideoMetadata) (*model.AnalysisRecord, error) {
	userPrompt, err := c.BuildUserPrompt(transcriptText, video)
	if err != nil {
		return nil, model.WrapError(model.ErrBackend, "analysis.prompt", err)
	}

	raw, err := c.generator.Complete(ctx, c.systemPrompt, userPrompt)
	if err != nil {
		return nil, model.WrapError(model.ErrBackend, "analysis.complete", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, model.WrapError(model.ErrBackend, "analysis.complete", errors.New("backend returned no content"))
	}

	return c.BuildRecord(ctx, raw), nil
}

// BuildRecord parses and scores a raw document. It never fails; sections
// that cannot be found are left empty.
func (c *Coordinator) BuildRecord(ctx context.Context, raw string) *model.AnalysisRecord {
	record := &model.AnalysisRecord{RawAnalysis: raw}
	for id, text := range ExtractSections(raw) {
		if text.Strategy == "" {
			slog.WarnContext(ctx, "analysis section not found", "section", id.Title())
			record.SetSection(id, model.EmptySection())
			continue
		}
		record.SetSection(id, model.Section{
			Score:       c.scorer.Score(text.FullText()),
			Description: text.Description,
			Elements:    UniqueElements(text.Elements),
		})
	}
	return record
}
