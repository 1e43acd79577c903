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
	"context"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Event describes the state of a run right after a transition.
type Event struct {
	SessionID string          `json:"sessionId"`
	RunID     string          `json:"runId"`
	Status    model.RunStatus `json:"status"`
	Stage     model.Stage     `json:"stage,omitempty"`
	Progress  int             `json:"progress"`
	Error     *string         `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

func newEvent(sessionID string, run model.PipelineRun) Event {
	return Event{
		SessionID: sessionID,
		RunID:     run.ID,
		Status:    run.Status,
		Stage:     run.Stage,
		Progress:  run.Progress,
		Error:     run.LastError,
		At:        run.UpdatedAt,
	}
}

// EventPublisher is notified after every transition. Errors are logged and
// never affect the run.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// RunRecorder stores the final snapshot of every finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, sessionID string, run model.PipelineRun) error
}

// Metrics receives run and stage timings.
type Metrics interface {
	RunStarted()
	RunFinished(status model.RunStatus, elapsed time.Duration)
	StageCompleted(stage model.Stage, elapsed time.Duration)
	TranslationFinished(code model.LanguageCode, err error)
}

// Translator translates transcript text into one of the supported languages.
type Translator interface {
	Translate(ctx context.Context, text string, target model.LanguageCode) (string, error)
}

// ArtifactStore publishes a rendered report and returns where it can be fetched.
type ArtifactStore interface {
	Save(ctx context.Context, sessionID string, artifact *export.Artifact) (url string, err error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

type noopRecorder struct{}

func (noopRecorder) RecordRun(context.Context, string, model.PipelineRun) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RunStarted()                                   {}
func (noopMetrics) RunFinished(model.RunStatus, time.Duration)    {}
func (noopMetrics) StageCompleted(model.Stage, time.Duration)     {}
func (noopMetrics) TranslationFinished(model.LanguageCode, error) {}
