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
// file defines the step that appends a finished analysis to BigQuery.
//
// Logic Flow:
//  1. The step only runs when the analysis stage stored a record.
//  2. BuildAnalysisRow flattens the source, video, transcript and section
//     scores from the chain context into one model.AnalysisRow.
//  3. The row is streamed through a BigQuery Inserter.
//  4. A failed insert is logged and counted. It never adds a chain error,
//     because the run is already done from the user's point of view.
package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// RowInserter is the part of *bigquery.Inserter the command uses.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// AnalysisPersistToBigQuery appends the finished analysis to the history
// table. The analysis stage has already completed when it runs, so a failed
// insert is logged and counted but does not fail the run.
type AnalysisPersistToBigQuery struct {
	cor.BaseCommand
	inserter RowInserter      // Streams rows into the history table.
	now      func() time.Time // Stamps CreatedAt.
}

// NewAnalysisPersistToBigQuery is the constructor used by the server.
//
// Inputs:
//   - name: The command name.
//   - client: An initialized *bigquery.Client.
//   - dataset: The dataset holding the history table.
//   - table: The history table.
//
// Outputs:
//   - *AnalysisPersistToBigQuery: The command, bound to the table's inserter.
func NewAnalysisPersistToBigQuery(name string, client *bigquery.Client, dataset string, table string) *AnalysisPersistToBigQuery {
	return NewAnalysisPersist(name, client.Dataset(dataset).Table(table).Inserter())
}

// NewAnalysisPersist creates the command over any inserter.
func NewAnalysisPersist(name string, inserter RowInserter) *AnalysisPersistToBigQuery {
	return &AnalysisPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter, now: time.Now}
}

// IsExecutable requires the analysis record rather than the chain input, so
// the step is skipped when an earlier stage failed.
func (s *AnalysisPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(ParamAnalysis) != nil
}

func (s *AnalysisPersistToBigQuery) Execute(context cor.Context) {
	ctx := context.GetContext()
	row, err := BuildAnalysisRow(context, s.now())
	if err == nil {
		err = s.inserter.Put(ctx, row)
	}
	// Counted directly: Fail would add a chain error and fail the run.
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist analysis", "run_id", stringParam(context, ParamRunID), "error", err)
		if s.ErrorCounter != nil {
			s.ErrorCounter.Add(ctx, 1)
		}
		return
	}
	s.Succeed(context)
	slog.InfoContext(ctx, "persisted analysis", "run_id", row.RunID)
	context.Add(s.GetOutputParam(), row)
}

// BuildAnalysisRow flattens the run's outputs stored in the chain context.
//
// Inputs:
//   - context: The chain context of a run that reached the analysis stage.
//   - now: The insert time.
//
// Outputs:
//   - *model.AnalysisRow: Missing video or transcript values are left zero.
//   - error: Only when the record cannot be encoded as JSON.
func BuildAnalysisRow(context cor.Context, now time.Time) (*model.AnalysisRow, error) {
	record, _ := context.Get(ParamAnalysis).(*model.AnalysisRecord)
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	row := &model.AnalysisRow{
		RunID:     stringParam(context, ParamRunID),
		SessionID: stringParam(context, ParamSessionID),
		Analysis:  string(encoded),
		CreatedAt: now.UTC(),
	}
	if ref, ok := context.Get(ParamSource).(model.SourceReference); ok {
		row.Source = ref.String()
	}
	if video, ok := context.Get(ParamVideo).(*model.VideoMetadata); ok && video != nil {
		row.VideoID = video.ID
		row.OriginalName = video.OriginalName
		row.DurationSeconds = video.DurationSeconds
		row.PixelFormat = video.PixelFormat
	}
	if transcript, ok := context.Get(ParamTranscript).(*model.Transcript); ok && transcript != nil {
		row.LanguageCode = transcript.LanguageCode
		row.Transcript = transcript.Text
	}
	if record != nil {
		row.TargetAudience = record.TargetAudience.Score
		row.NarrativeStructure = record.NarrativeStructure.Score
		row.CallToAction = record.CallToAction.Score
		row.Storytelling = record.Storytelling.Score
		row.EmotionalTriggers = record.EmotionalTriggers.Score
	}
	return row, nil
}
