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

// Package pipeline owns the lifecycle of analysis runs. A Machine holds the
// single PipelineRun of one session and moves it through pure transitions
// while the analysis workflow executes; a Registry keeps one Machine per
// session.
//
// Logic Flow:
//  1. **Submission**: Submit or Run validates the source reference, applies
//     the Submitted transition and bumps the machine's generation.
//  2. **Workflow**: The analysis chain executes with a runObserver. Each
//     stage notification becomes a transition (StageStarted, then the
//     matching Succeeded transition) applied under the machine lock.
//  3. **Staleness**: Every transition carries the generation it was started
//     for. A Reset or a new Submit bumps the generation, so late callbacks of
//     the replaced run are dropped instead of overwriting the new state.
//  4. **Completion**: The terminal state (done or failed) is published,
//     recorded and counted exactly once per generation.
//  5. **Follow ups**: Translations and exports read the completed run's
//     analysis; translations are folded back in with WithTranslation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// DefaultTranslationWorkers bounds TranslateMany when no worker count is configured.
const DefaultTranslationWorkers = 3

// errStale is returned when a callback belongs to a run that was replaced.
var errStale = errors.New("stale run generation")

// Dependencies are shared by every Machine of a Registry. Only Workflow is
// required.
type Dependencies struct {
	Workflow           cor.Command      // The analysis chain; required.
	Translator         Translator       // Needed only for translations.
	Store              ArtifactStore    // Needed only for exports.
	Events             EventPublisher   // Receives every state change.
	Recorder           RunRecorder      // Receives every terminal run.
	Metrics            Metrics          // Run, stage and translation counters.
	Clock              func() time.Time // Defaults to time.Now.
	TranslationWorkers int              // Bound for TranslateMany.
	ExportOptions      export.Options   // Document formatting for exports.
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.Recorder == nil {
		d.Recorder = noopRecorder{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.TranslationWorkers <= 0 {
		d.TranslationWorkers = DefaultTranslationWorkers
	}
	return d
}

// Machine drives the PipelineRun of one session. All fields below mu are
// guarded by it.
type Machine struct {
	sessionID string
	deps      Dependencies

	mu         sync.Mutex
	run        model.PipelineRun
	generation uint64        // Bumped by every Submit and Reset.
	done       chan struct{} // Closed when the current generation finishes.
	stageStart time.Time     // Start of the stage in progress, for stage latency.
	lastActive time.Time     // Used by the sweeper.
}

// NewMachine is the constructor for Machine.
//
// Inputs:
//   - sessionID: The id the machine is registered under.
//   - deps: Its collaborators. Missing optional ones are defaulted.
//
// Outputs:
//   - *Machine: An idle machine whose Done channel is already closed.
func NewMachine(sessionID string, deps Dependencies) *Machine {
	deps = deps.withDefaults()
	done := make(chan struct{})
	close(done)
	return &Machine{
		sessionID:  sessionID,
		deps:       deps,
		run:        model.NewIdleRun(),
		done:       done,
		lastActive: deps.Clock(),
	}
}

// SessionID returns the id the machine was created with.
func (m *Machine) SessionID() string {
	return m.sessionID
}

// Snapshot returns a deep copy of the current run.
func (m *Machine) Snapshot() model.PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.Clone()
}

// Done returns a channel closed once the current run has finished.
func (m *Machine) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Submit starts a run and returns as soon as it is running. The workflow
// executes in the background, detached from ctx's cancellation.
//
// Inputs:
//   - ctx: Request scoped values and the trace are kept; cancellation is not.
//   - ref: The video to analyze.
//
// Outputs:
//   - model.PipelineRun: The run in its first running state.
//   - error: ErrInvalidInput for a bad reference, ErrBusy while another run
//     is in progress.
func (m *Machine) Submit(ctx context.Context, ref model.SourceReference) (model.PipelineRun, error) {
	gen, run, done, err := m.begin(ctx, ref)
	if err != nil {
		return model.PipelineRun{}, err
	}
	go m.execute(context.WithoutCancel(ctx), gen, run.Clone(), ref, done)
	return run, nil
}

// Run executes a run to completion and returns its final state. The error is
// the stage failure, if any. Cancelling ctx stops the chain between stages.
//
// Outputs:
//   - model.PipelineRun: The terminal run, done or failed.
//   - error: Rejection of the submission or the failure of a stage.
func (m *Machine) Run(ctx context.Context, ref model.SourceReference) (model.PipelineRun, error) {
	gen, run, done, err := m.begin(ctx, ref)
	if err != nil {
		return model.PipelineRun{}, err
	}
	return m.execute(ctx, gen, run, ref, done)
}

// begin applies Submitted and starts a new generation.
func (m *Machine) begin(ctx context.Context, ref model.SourceReference) (uint64, model.PipelineRun, chan struct{}, error) {
	if err := validateReference(ref); err != nil {
		return 0, model.PipelineRun{}, nil, err
	}

	m.mu.Lock()
	now := m.deps.Clock()
	next, err := Submitted(m.run, uuid.NewString(), ref, now)
	if err != nil {
		m.mu.Unlock()
		return 0, model.PipelineRun{}, nil, err
	}
	m.run = next
	m.generation++
	gen := m.generation
	done := make(chan struct{})
	m.done = done
	m.stageStart = now
	m.lastActive = now
	snapshot := next.Clone()
	m.mu.Unlock()

	slog.InfoContext(ctx, "analysis run submitted", "session_id", m.sessionID, "run_id", next.ID, "source", ref.String())
	m.deps.Metrics.RunStarted()
	m.publish(ctx, next)
	return gen, snapshot, done, nil
}

func validateReference(ref model.SourceReference) error {
	switch {
	case ref.IsUpload():
		if ref.Bucket == "" {
			return fmt.Errorf("%w: upload reference without bucket", model.ErrInvalidInput)
		}
		return nil
	case ref.URL != "":
		_, err := model.ParseSourceReference(ref.URL)
		return err
	}
	return fmt.Errorf("%w: empty source reference", model.ErrInvalidInput)
}

// execute runs the workflow for generation gen, applies the terminal
// transition and closes done. It returns the terminal state of that
// generation, which is also what gets recorded when a Reset or a new Submit
// replaced the run in the meantime.
//
// Logic Flow:
//  1. The workflow runs with a runObserver that applies stage transitions and
//     remembers the latest state of this generation.
//  2. A chain that ended without error but never reached done is a backend
//     failure.
//  3. A failure is applied to the machine when the generation is current and
//     computed from the remembered state otherwise.
//  4. finish reports and records the terminal state exactly once.
func (m *Machine) execute(ctx context.Context, gen uint64, run model.PipelineRun, ref model.SourceReference, done chan struct{}) (model.PipelineRun, error) {
	observer := &runObserver{machine: m, generation: gen, last: run}

	chCtx := cor.NewContext(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, ref).
		Add(commands.ParamRunID, run.ID).
		Add(commands.ParamSessionID, m.sessionID)
	commands.WithObserver(chCtx, observer)

	if m.deps.Workflow.IsExecutable(chCtx) {
		m.deps.Workflow.Execute(chCtx)
	} else {
		chCtx.AddError(m.deps.Workflow.GetName(), fmt.Errorf("%w: workflow not executable", model.ErrInvalidInput))
	}

	final := observer.latest()
	runErr := chCtx.Err()
	if runErr == nil && final.Status != model.StatusDone {
		runErr = fmt.Errorf("%w: workflow finished without an analysis", model.ErrBackend)
	}
	if runErr != nil && final.Status == model.StatusRunning {
		slog.ErrorContext(ctx, "analysis run failed", "session_id", m.sessionID, "run_id", run.ID, "errors", chCtx.GetErrors())
		failed, err := m.apply(ctx, gen, func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
			return Failed(run, runErr, now)
		})
		switch {
		case err == nil:
			final = failed
		case errors.Is(err, errStale):
			if failed, err := Failed(final, runErr, m.deps.Clock()); err == nil {
				final = failed
			}
		default:
			slog.WarnContext(ctx, "failure not applied", "session_id", m.sessionID, "run_id", run.ID, "error", err)
		}
	}
	m.finish(ctx, final, done)
	return final, runErr
}

// finish reports and records the terminal state of one generation and
// closes its done channel.
func (m *Machine) finish(ctx context.Context, run model.PipelineRun, done chan struct{}) {
	defer close(done)

	elapsed := run.UpdatedAt.Sub(run.StartedAt)
	m.deps.Metrics.RunFinished(run.Status, elapsed)
	slog.InfoContext(ctx, "analysis run finished", "session_id", m.sessionID, "run_id", run.ID, "status", run.Status, "elapsed", elapsed)
	if err := m.deps.Recorder.RecordRun(ctx, m.sessionID, run); err != nil {
		slog.WarnContext(ctx, "failed to record run", "session_id", m.sessionID, "run_id", run.ID, "error", err)
	}
}

// apply replaces the run with the result of fn when gen is still current and
// returns a copy of the new state.
func (m *Machine) apply(ctx context.Context, gen uint64, fn func(model.PipelineRun, time.Time) (model.PipelineRun, error)) (model.PipelineRun, error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return model.PipelineRun{}, errStale
	}
	now := m.deps.Clock()
	next, err := fn(m.run, now)
	if err != nil {
		m.mu.Unlock()
		return model.PipelineRun{}, err
	}
	m.run = next
	m.lastActive = now
	snapshot := next.Clone()
	m.mu.Unlock()

	m.publish(ctx, next)
	return snapshot, nil
}

func (m *Machine) publish(ctx context.Context, run model.PipelineRun) {
	if err := m.deps.Events.Publish(ctx, newEvent(m.sessionID, run)); err != nil {
		slog.WarnContext(ctx, "failed to publish run event", "session_id", m.sessionID, "run_id", run.ID, "error", err)
	}
}

// Reset clears the session. It is rejected while a run is in progress.
// Callbacks of the cleared run are ignored from here on.
//
// Outputs:
//   - model.PipelineRun: The idle run.
//   - error: ErrBusy while running.
func (m *Machine) Reset(ctx context.Context) (model.PipelineRun, error) {
	m.mu.Lock()
	next, err := Reset(m.run)
	if err != nil {
		m.mu.Unlock()
		return model.PipelineRun{}, err
	}
	m.run = next
	m.generation++
	m.lastActive = m.deps.Clock()
	m.mu.Unlock()

	m.publish(ctx, next)
	return next, nil
}

// IsRunning reports whether a run is in progress.
func (m *Machine) IsRunning() bool {
	return m.Status() == model.StatusRunning
}

// Status returns the status of the current run.
func (m *Machine) Status() model.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.Status
}

// LastActive is the time of the last transition.
func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// runObserver turns stage notifications into transitions of one generation
// and keeps the latest state it applied.
type runObserver struct {
	machine    *Machine
	generation uint64

	mu   sync.Mutex
	last model.PipelineRun
}

func (o *runObserver) latest() model.PipelineRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *runObserver) StageStarted(ctx context.Context, stage model.Stage) {
	ok := o.update(ctx, string(stage)+" started", func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
		return StageStarted(run, stage, now)
	})
	if !ok {
		return
	}
	m := o.machine
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == o.generation {
		m.stageStart = m.lastActive
	}
}

func (o *runObserver) VideoRetrieved(ctx context.Context, video *model.VideoMetadata) {
	o.completed(ctx, model.StageRetrieving, func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
		return RetrievalSucceeded(run, video.Clone(), now)
	})
}

func (o *runObserver) Transcribed(ctx context.Context, transcript *model.Transcript) {
	o.completed(ctx, model.StageTranscribing, func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
		return TranscriptionSucceeded(run, transcript.Clone(), now)
	})
}

func (o *runObserver) Analyzed(ctx context.Context, record *model.AnalysisRecord) {
	o.completed(ctx, model.StageAnalyzing, func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
		return AnalysisSucceeded(run, record.Clone(), now)
	})
}

func (o *runObserver) completed(ctx context.Context, stage model.Stage, fn func(model.PipelineRun, time.Time) (model.PipelineRun, error)) {
	m := o.machine
	m.mu.Lock()
	started := m.stageStart
	m.mu.Unlock()

	if o.update(ctx, string(stage)+" completed", fn) {
		m.deps.Metrics.StageCompleted(stage, m.LastActive().Sub(started))
	}
}

func (o *runObserver) update(ctx context.Context, what string, fn func(model.PipelineRun, time.Time) (model.PipelineRun, error)) bool {
	next, err := o.machine.apply(ctx, o.generation, fn)
	switch {
	case err == nil:
		o.mu.Lock()
		o.last = next
		o.mu.Unlock()
		return true
	case errors.Is(err, errStale):
		slog.DebugContext(ctx, "ignoring callback of a replaced run", "session_id", o.machine.sessionID, "event", what)
	default:
		slog.WarnContext(ctx, "rejected run transition", "session_id", o.machine.sessionID, "event", what, "error", err)
	}
	return false
}
