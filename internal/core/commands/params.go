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

// Package commands contains the chain steps of a video analysis run. Each
// step reads the previous step's output from the chain context, calls one
// collaborator and reports its result to the run's StageObserver.
//
// The analysis chain is:
//
//	source reference reader -> video retrieval -> transcription ->
//	transcript analysis -> analysis persist (optional)
//
// Besides the piped CtxIn/CtxOut value, every stage stores its result under
// a fixed key (ParamSource, ParamVideo, ParamTranscript, ParamAnalysis) so
// later steps can reach results that are not their direct input.
package commands

import (
	"context"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Context keys shared by the commands.
const (
	ParamSource     = "__SOURCE__"     // model.SourceReference
	ParamVideo      = "__VIDEO__"      // *model.VideoMetadata
	ParamTranscript = "__TRANSCRIPT__" // *model.Transcript
	ParamAnalysis   = "__ANALYSIS__"   // *model.AnalysisRecord
	ParamRunID      = "__RUN_ID__"     // string
	ParamSessionID  = "__SESSION_ID__" // string
	ParamObserver   = "__OBSERVER__"   // StageObserver
)

// StageObserver is told about every stage as soon as it starts and as soon
// as its result is stored, so progress is visible while the chain runs.
type StageObserver interface {
	StageStarted(ctx context.Context, stage model.Stage)
	VideoRetrieved(ctx context.Context, video *model.VideoMetadata)
	Transcribed(ctx context.Context, transcript *model.Transcript)
	Analyzed(ctx context.Context, record *model.AnalysisRecord)
}

// Retriever locates or downloads the video a source reference points at.
type Retriever interface {
	Retrieve(ctx context.Context, ref model.SourceReference) (*model.VideoMetadata, error)
}

// Transcriber turns the spoken content of a video into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string) (*model.Transcript, error)
}

// Analyzer produces the structured analysis for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcriptText string, video *model.VideoMetadata) (*model.AnalysisRecord, error)
}

// WithObserver stores the observer for the commands of one run.
func WithObserver(chCtx cor.Context, observer StageObserver) cor.Context {
	return chCtx.Add(ParamObserver, observer)
}

// observerFrom returns a no-op observer when none was stored, so commands
// also run outside of a Machine.
func observerFrom(chCtx cor.Context) StageObserver {
	if o, ok := chCtx.Get(ParamObserver).(StageObserver); ok && o != nil {
		return o
	}
	return noopObserver{}
}

type noopObserver struct{}

func (noopObserver) StageStarted(context.Context, model.Stage)            {}
func (noopObserver) VideoRetrieved(context.Context, *model.VideoMetadata) {}
func (noopObserver) Transcribed(context.Context, *model.Transcript)       {}
func (noopObserver) Analyzed(context.Context, *model.AnalysisRecord)      {}

func stringParam(chCtx cor.Context, key string) string {
	s, _ := chCtx.Get(key).(string)
	return s
}

// wrapKind tags err with kind unless it already carries it.
func wrapKind(kind error, operation string, err error) error {
	if model.IsKind(err, kind) {
		return err
	}
	return model.WrapError(kind, operation, err)
}
