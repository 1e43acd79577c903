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

// Package commands contains the chain steps of a video analysis run. This
// file defines the analysis stage.
//
// Logic Flow:
//  1. The transcript piped from transcription is required; without it the
//     stage fails with a backend error.
//  2. The observer is told the analysis stage started.
//  3. The Analyzer asks the model for every section and extracts the
//     descriptions, elements and scores.
//  4. The record is stored under ParamAnalysis and reported to the observer,
//     which moves the run to done.
package commands

import (
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// TranscriptAnalysis runs the analysis stage over the transcript produced by
// the previous command and the video metadata stored by retrieval.
type TranscriptAnalysis struct {
	cor.BaseCommand
	analyzer Analyzer
}

// NewTranscriptAnalysis is the constructor for TranscriptAnalysis.
//
// Inputs:
//   - name: The command name.
//   - analyzer: Produces the analysis record.
//
// Outputs:
//   - *TranscriptAnalysis: The stage command.
func NewTranscriptAnalysis(name string, analyzer Analyzer) *TranscriptAnalysis {
	return &TranscriptAnalysis{BaseCommand: *cor.NewBaseCommand(name), analyzer: analyzer}
}

func (c *TranscriptAnalysis) Execute(chCtx cor.Context) {
	transcript, ok := chCtx.Get(c.GetInputParam()).(*model.Transcript)
	if !ok || transcript == nil {
		c.Fail(chCtx, model.WrapError(model.ErrBackend, c.GetName(), errors.New("missing transcript")))
		return
	}
	video, _ := chCtx.Get(ParamVideo).(*model.VideoMetadata)
	ctx := chCtx.GetContext()
	observerFrom(chCtx).StageStarted(ctx, model.StageAnalyzing)

	record, err := c.analyzer.Analyze(ctx, transcript.Text, video)
	if err == nil && record == nil {
		err = errors.New("analyzer returned no record")
	}
	if err != nil {
		c.Fail(chCtx, wrapKind(model.ErrBackend, c.GetName(), err))
		return
	}

	slog.InfoContext(ctx, "transcript analyzed",
		"target_audience", record.TargetAudience.Score,
		"narrative_structure", record.NarrativeStructure.Score,
		"call_to_action", record.CallToAction.Score,
		"storytelling", record.Storytelling.Score,
		"emotional_triggers", record.EmotionalTriggers.Score)
	c.Succeed(chCtx)
	chCtx.Add(ParamAnalysis, record)
	observerFrom(chCtx).Analyzed(ctx, record)
	chCtx.Add(c.GetOutputParam(), record)
}
