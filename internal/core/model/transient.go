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

import "time"

// RunStatus is the coarse lifecycle state of a PipelineRun.
//
//	idle --submit--> running --analysis stored--> done
//	                   |
//	                   +--stage error-----------> failed
//
// done and failed accept a new submission; every state except running
// accepts a reset back to idle.
type RunStatus string

const (
	StatusIdle    RunStatus = "idle"
	StatusRunning RunStatus = "running"
	StatusDone    RunStatus = "done"
	StatusFailed  RunStatus = "failed"
)

// Stage is the sub-state of a running run.
type Stage string

// Stages in execution order. StageNone is used outside of running.
const (
	StageNone         Stage = ""
	StageRetrieving   Stage = "retrieving"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
)

// Progress values reported after each completed stage.
const (
	ProgressNone        = 0
	ProgressRetrieved   = 33
	ProgressTranscribed = 66
	ProgressAnalyzed    = 100
)

// StageFlags mark which stages of the current run completed. They are set in
// order and only cleared by a new run, a reset or a failure.
type StageFlags struct {
	VideoRetrieved bool `json:"videoRetrieved"`
	Transcribed    bool `json:"transcribed"`
	Analyzed       bool `json:"analyzed"`
}

// PipelineRun is one end-to-end analysis attempt. It is held in memory by its
// session and replaced by every transition.
type PipelineRun struct {
	ID              string          `json:"id,omitempty"`
	SourceReference SourceReference `json:"sourceReference"`
	Flags           StageFlags      `json:"stageFlags"`
	Progress        int             `json:"progress"`
	Status          RunStatus       `json:"status"`
	Stage           Stage           `json:"stage,omitempty"`
	LastError       *string         `json:"lastError"`
	Video           *VideoMetadata  `json:"videoMetadata"`
	Transcript      *Transcript     `json:"transcript"`
	Analysis        *AnalysisRecord `json:"analysisRecord"`
	StartedAt       time.Time       `json:"startedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

// NewIdleRun returns the state of a session that never ran.
func NewIdleRun() PipelineRun {
	return PipelineRun{Status: StatusIdle}
}

// IsTerminal reports whether the run finished, successfully or not.
func (r PipelineRun) IsTerminal() bool {
	return r.Status == StatusDone || r.Status == StatusFailed
}

// Clone returns a deep copy safe to hand out of the owning machine.
func (r PipelineRun) Clone() PipelineRun {
	out := r
	if r.LastError != nil {
		msg := *r.LastError
		out.LastError = &msg
	}
	out.Video = r.Video.Clone()
	out.Transcript = r.Transcript.Clone()
	out.Analysis = r.Analysis.Clone()
	return out
}

// AnalysisRow is the BigQuery row written for every completed analysis.
type AnalysisRow struct {
	RunID              string    `json:"run_id" bigquery:"run_id"`
	SessionID          string    `json:"session_id" bigquery:"session_id"`
	Source             string    `json:"source" bigquery:"source"`
	VideoID            string    `json:"video_id" bigquery:"video_id"`
	OriginalName       string    `json:"original_name" bigquery:"original_name"`
	DurationSeconds    float64   `json:"duration_seconds" bigquery:"duration_seconds"`
	PixelFormat        string    `json:"pixel_format" bigquery:"pixel_format"`
	LanguageCode       string    `json:"language_code" bigquery:"language_code"`
	Transcript         string    `json:"transcript" bigquery:"transcript"`
	TargetAudience     float64   `json:"target_audience_score" bigquery:"target_audience_score"`
	NarrativeStructure float64   `json:"narrative_structure_score" bigquery:"narrative_structure_score"`
	CallToAction       float64   `json:"call_to_action_score" bigquery:"call_to_action_score"`
	Storytelling       float64   `json:"storytelling_score" bigquery:"storytelling_score"`
	EmotionalTriggers  float64   `json:"emotional_triggers_score" bigquery:"emotional_triggers_score"`
	Analysis           string    `json:"analysis" bigquery:"analysis"` // AnalysisRecord as JSON
	CreatedAt          time.Time `json:"created_at" bigquery:"created_at"`
}
