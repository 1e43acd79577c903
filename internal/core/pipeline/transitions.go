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

package pipeline

import (
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// The transitions below never modify their input. Pointer fields of the
// returned run are either shared with the input or freshly allocated; shared
// values are never written to after they are stored.

// Submitted starts a new run. Any result of the previous run is discarded.
func Submitted(run model.PipelineRun, id string, ref model.SourceReference, now time.Time) (model.PipelineRun, error) {
	if run.Status == model.StatusRunning {
		return run, model.ErrBusy
	}
	return model.PipelineRun{
		ID:              id,
		SourceReference: ref,
		Progress:        model.ProgressNone,
		Status:          model.StatusRunning,
		StartedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// StageStarted records that a stage began. Stages start in order.
func StageStarted(run model.PipelineRun, stage model.Stage, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusRunning {
		return run, invalid("start %s while %s", stage, run.Status)
	}
	var ok bool
	switch stage {
	case model.StageRetrieving:
		ok = !run.Flags.VideoRetrieved
	case model.StageTranscribing:
		ok = run.Flags.VideoRetrieved && !run.Flags.Transcribed
	case model.StageAnalyzing:
		ok = run.Flags.Transcribed && !run.Flags.Analyzed
	}
	if !ok {
		return run, invalid("start %s out of order", stage)
	}
	run.Stage = stage
	run.UpdatedAt = now
	return run, nil
}

// RetrievalSucceeded stores the video metadata.
func RetrievalSucceeded(run model.PipelineRun, video *model.VideoMetadata, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusRunning || run.Flags.VideoRetrieved {
		return run, invalid("retrieval result while %s", describe(run))
	}
	run.Video = video
	run.Flags.VideoRetrieved = true
	run.Progress = model.ProgressRetrieved
	run.UpdatedAt = now
	return run, nil
}

// TranscriptionSucceeded stores the transcript.
func TranscriptionSucceeded(run model.PipelineRun, transcript *model.Transcript, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusRunning || !run.Flags.VideoRetrieved || run.Flags.Transcribed {
		return run, invalid("transcription result while %s", describe(run))
	}
	if transcript != nil && transcript.Translations == nil {
		transcript = transcript.Clone()
	}
	run.Transcript = transcript
	run.Flags.Transcribed = true
	run.Progress = model.ProgressTranscribed
	run.UpdatedAt = now
	return run, nil
}

// AnalysisSucceeded stores the analysis and completes the run.
func AnalysisSucceeded(run model.PipelineRun, record *model.AnalysisRecord, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusRunning || !run.Flags.Transcribed || run.Flags.Analyzed {
		return run, invalid("analysis result while %s", describe(run))
	}
	run.Analysis = record
	run.Flags.Analyzed = true
	run.Progress = model.ProgressAnalyzed
	run.Status = model.StatusDone
	run.Stage = model.StageNone
	run.UpdatedAt = now
	return run, nil
}

// Failed ends a running run. Every stage flag is cleared and progress drops
// to zero even when earlier stages completed; stored stage results are
// dropped with them.
func Failed(run model.PipelineRun, err error, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusRunning {
		return run, invalid("fail while %s", run.Status)
	}
	msg := model.UserMessage(err)
	if msg == "" {
		msg = "unknown error"
	}
	run.Status = model.StatusFailed
	run.LastError = &msg
	run.Flags = model.StageFlags{}
	run.Progress = model.ProgressNone
	run.Video = nil
	run.Transcript = nil
	run.Analysis = nil
	run.UpdatedAt = now
	return run, nil
}

// Reset returns the machine to idle. A running run cannot be reset.
func Reset(run model.PipelineRun) (model.PipelineRun, error) {
	if run.Status == model.StatusRunning {
		return run, model.ErrBusy
	}
	return model.NewIdleRun(), nil
}

// WithTranslation adds or replaces the translation for one language. Other
// entries are kept.
func WithTranslation(run model.PipelineRun, code model.LanguageCode, text string, now time.Time) (model.PipelineRun, error) {
	if run.Status != model.StatusDone || run.Transcript == nil {
		return run, invalid("translate while %s", run.Status)
	}
	transcript := run.Transcript.Clone()
	transcript.Translations[code] = text
	run.Transcript = transcript
	run.UpdatedAt = now
	return run, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidState, fmt.Sprintf(format, args...))
}

func describe(run model.PipelineRun) string {
	if run.Stage != model.StageNone {
		return fmt.Sprintf("%s/%s at %d%%", run.Status, run.Stage, run.Progress)
	}
	return fmt.Sprintf("%s at %d%%", run.Status, run.Progress)
}
