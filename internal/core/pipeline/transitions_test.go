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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

var t0 = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

func runThrough(t *testing.T, stages int) model.PipelineRun {
	t.Helper()
	run, err := Submitted(model.NewIdleRun(), "run-1", model.SourceReference{URL: "https://example.com/v"}, t0)
	require.NoError(t, err)
	steps := []func(model.PipelineRun) (model.PipelineRun, error){
		func(r model.PipelineRun) (model.PipelineRun, error) { return StageStarted(r, model.StageRetrieving, t0) },
		func(r model.PipelineRun) (model.PipelineRun, error) {
			return RetrievalSucceeded(r, &model.VideoMetadata{ID: "v1"}, t0)
		},
		func(r model.PipelineRun) (model.PipelineRun, error) { return StageStarted(r, model.StageTranscribing, t0) },
		func(r model.PipelineRun) (model.PipelineRun, error) {
			return TranscriptionSucceeded(r, &model.Transcript{Text: "hello"}, t0)
		},
		func(r model.PipelineRun) (model.PipelineRun, error) { return StageStarted(r, model.StageAnalyzing, t0) },
		func(r model.PipelineRun) (model.PipelineRun, error) {
			return AnalysisSucceeded(r, &model.AnalysisRecord{RawAnalysis: "raw"}, t0)
		},
	}
	for _, step := range steps[:stages] {
		run, err = step(run)
		require.NoError(t, err)
	}
	return run
}

func TestTransitionsHappyPath(t *testing.T) {
	run := runThrough(t, 2)
	assert.Equal(t, model.ProgressRetrieved, run.Progress)
	assert.Equal(t, model.StageFlags{VideoRetrieved: true}, run.Flags)

	run = runThrough(t, 4)
	assert.Equal(t, model.ProgressTranscribed, run.Progress)
	assert.NotNil(t, run.Transcript.Translations)

	run = runThrough(t, 6)
	assert.Equal(t, model.StatusDone, run.Status)
	assert.Equal(t, model.ProgressAnalyzed, run.Progress)
	assert.Equal(t, model.StageNone, run.Stage)
	assert.Equal(t, model.StageFlags{VideoRetrieved: true, Transcribed: true, Analyzed: true}, run.Flags)
	assert.Nil(t, run.LastError)
}

func TestTransitionsRejectOutOfOrder(t *testing.T) {
	run, err := Submitted(model.NewIdleRun(), "run-1", model.SourceReference{URL: "https://example.com/v"}, t0)
	require.NoError(t, err)

	_, err = TranscriptionSucceeded(run, &model.Transcript{}, t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = StageStarted(run, model.StageAnalyzing, t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = AnalysisSucceeded(run, &model.AnalysisRecord{}, t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	done := runThrough(t, 6)
	_, err = RetrievalSucceeded(done, &model.VideoMetadata{}, t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = Failed(done, assert.AnError, t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestFailedClearsEarlierStages(t *testing.T) {
	run := runThrough(t, 5)
	require.True(t, run.Flags.Transcribed)

	cause := model.WrapError(model.ErrBackend, "analyze", assert.AnError)
	failed, err := Failed(run, cause, t0.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, model.StageFlags{}, failed.Flags)
	assert.Equal(t, 0, failed.Progress)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "analysis backend failed: "+assert.AnError.Error(), *failed.LastError)
	assert.Nil(t, failed.Video)
	assert.Nil(t, failed.Transcript)

	// the input value is untouched
	assert.True(t, run.Flags.VideoRetrieved)
	assert.Equal(t, model.StatusRunning, run.Status)
}

func TestSubmittedWhileRunningIsBusy(t *testing.T) {
	run := runThrough(t, 3)
	_, err := Submitted(run, "run-2", model.SourceReference{URL: "https://example.com/w"}, t0)
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = Reset(run)
	assert.ErrorIs(t, err, model.ErrBusy)
}

func TestSubmittedDiscardsPreviousResults(t *testing.T) {
	done := runThrough(t, 6)
	next, err := Submitted(done, "run-2", model.SourceReference{URL: "https://example.com/w"}, t0)
	require.NoError(t, err)
	assert.Equal(t, "run-2", next.ID)
	assert.Equal(t, model.StatusRunning, next.Status)
	assert.Nil(t, next.Analysis)
	assert.Nil(t, next.Transcript)
	assert.Equal(t, model.StageFlags{}, next.Flags)
}

func TestResetFromTerminal(t *testing.T) {
	idle, err := Reset(runThrough(t, 6))
	require.NoError(t, err)
	assert.Equal(t, model.NewIdleRun(), idle)
}

func TestWithTranslationIsAdditive(t *testing.T) {
	done := runThrough(t, 6)

	withEN, err := WithTranslation(done, model.LanguageEnglish, "hello", t0)
	require.NoError(t, err)
	withES, err := WithTranslation(withEN, model.LanguageSpanish, "hola", t0)
	require.NoError(t, err)
	assert.Equal(t, map[model.LanguageCode]string{"en": "hello", "es": "hola"}, withES.Transcript.Translations)

	again, err := WithTranslation(withES, model.LanguageEnglish, "hi", t0)
	require.NoError(t, err)
	assert.Equal(t, map[model.LanguageCode]string{"en": "hi", "es": "hola"}, again.Transcript.Translations)

	// earlier values keep their own maps
	assert.Empty(t, done.Transcript.Translations)
	assert.Len(t, withEN.Transcript.Translations, 1)
	assert.Equal(t, "hola", withES.Transcript.Translations[model.LanguageSpanish])
	assert.Equal(t, "hello", withES.Transcript.Translations[model.LanguageEnglish])
}

func TestWithTranslationRequiresDone(t *testing.T) {
	_, err := WithTranslation(runThrough(t, 4), model.LanguageEnglish, "x", t0)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}
