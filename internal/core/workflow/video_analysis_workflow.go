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

// Package workflow assembles the command chains the server runs.
//
// Workflows:
//   - VideoAnalysisWorkflow: one analysis run. It is the Workflow of every
//     pipeline.Machine.
//   - NewUploadNotificationWorkflow: the chain behind the upload bucket's
//     Pub/Sub subscription. It turns a notification into a submitted run.
//   - SweepScheduler: a cron scheduler for SessionSweepJob, which drops idle
//     sessions.
package workflow

import (
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
)

// Step names, also used as span and metric names.
const (
	StepReadSource    = "source-reference-reader"
	StepRetrieveVideo = "video-retrieval"
	StepTranscribe    = "transcription"
	StepAnalyze       = "transcript-analysis"
	StepPersist       = "analysis-persist-to-bigquery"
	StepSubmitUpload  = "run-submitter"
)

// Collaborators are the stage backends of a VideoAnalysisWorkflow. Inserter
// is optional; without it analyses are not written to BigQuery.
type Collaborators struct {
	Retriever            commands.Retriever
	Transcriber          commands.Transcriber
	Analyzer             commands.Analyzer
	Inserter             commands.RowInserter
	RetrievalTimeout     time.Duration // 0 leaves the bound to the retriever.
	TranscriptionTimeout time.Duration // 0 leaves the bound to the transcriber.
}

// VideoAnalysisWorkflow runs retrieval, transcription and analysis in order
// for one source reference placed under cor.CtxIn.
type VideoAnalysisWorkflow struct {
	cor.BaseCommand
	chain *cor.BaseChain
}

// NewVideoAnalysisWorkflow is the constructor for VideoAnalysisWorkflow.
//
// Inputs:
//   - c: The stage backends and their timeouts.
//
// Outputs:
//   - *VideoAnalysisWorkflow: A command whose chain is
//     read source -> retrieve -> transcribe -> analyze [-> persist].
func NewVideoAnalysisWorkflow(c Collaborators) *VideoAnalysisWorkflow {
	w := &VideoAnalysisWorkflow{BaseCommand: *cor.NewBaseCommand("video-analysis-pipeline")}

	chain := cor.NewBaseChain(w.GetName())
	chain.AddCommand(commands.NewSourceReferenceReader(StepReadSource))
	chain.AddCommand(commands.NewVideoRetrieval(StepRetrieveVideo, c.Retriever, c.RetrievalTimeout))
	chain.AddCommand(commands.NewTranscription(StepTranscribe, c.Transcriber, c.TranscriptionTimeout))
	chain.AddCommand(commands.NewTranscriptAnalysis(StepAnalyze, c.Analyzer))
	if c.Inserter != nil {
		chain.AddCommand(commands.NewAnalysisPersist(StepPersist, c.Inserter))
	}
	w.chain = chain
	return w
}

// IsExecutable defers to the chain; the first step validates the input.
func (w *VideoAnalysisWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context)
}

// Execute runs the chain. Stage results and failures are left on context.
func (w *VideoAnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Steps lists the step names in execution order.
func (w *VideoAnalysisWorkflow) Steps() []string {
	return w.chain.Commands()
}
