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

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

type stubRetriever struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
}

func (s *stubRetriever) Retrieve(ctx context.Context, ref model.SourceReference) (*model.VideoMetadata, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &model.VideoMetadata{ID: "v1", URL: ref.String(), DurationSeconds: 30, PixelFormat: "1080x1920"}, nil
}

func (s *stubRetriever) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string) (*model.Transcript, error) {
	return &model.Transcript{Text: "buy now and save", LanguageCode: "en", Confidence: 0.9}, nil
}

type stubAnalyzer struct {
	err error
}

func (s stubAnalyzer) Analyze(context.Context, string, *model.VideoMetadata) (*model.AnalysisRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	record := &model.AnalysisRecord{RawAnalysis: "raw"}
	for _, id := range model.AllSections() {
		record.SetSection(id, model.Section{Score: 0.5, Description: id.Title() + " is fine.", Elements: []string{"point one"}})
	}
	return record, nil
}

type stubTranslator struct {
	mu     sync.Mutex
	calls  map[model.LanguageCode]int
	prefix string
	fail   map[model.LanguageCode]bool
}

func newTranslator() *stubTranslator {
	return &stubTranslator{calls: map[model.LanguageCode]int{}, prefix: "v1", fail: map[model.LanguageCode]bool{}}
}

func (s *stubTranslator) Translate(_ context.Context, text string, target model.LanguageCode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[target]++
	if s.fail[target] {
		return "", errors.New("quota exhausted")
	}
	return fmt.Sprintf("%s[%s] %s", s.prefix, target, text), nil
}

func (s *stubTranslator) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type eventLog struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (l *eventLog) Publish(_ context.Context, e pipeline.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) progress() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Progress)
	}
	return out
}

type recorder struct {
	mu   sync.Mutex
	runs []model.PipelineRun
}

func (r *recorder) RecordRun(_ context.Context, _ string, run model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

type stubStore struct {
	err error
}

func (s stubStore) Save(_ context.Context, sessionID string, a *export.Artifact) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://storage.example.com/" + sessionID + "/" + a.FileName, nil
}

type harness struct {
	retriever  *stubRetriever
	translator *stubTranslator
	events     *eventLog
	recorder   *recorder
	deps       pipeline.Dependencies
}

func newHarness(analyzer stubAnalyzer) *harness {
	h := &harness{
		retriever:  &stubRetriever{},
		translator: newTranslator(),
		events:     &eventLog{},
		recorder:   &recorder{},
	}
	h.deps = pipeline.Dependencies{
		Workflow: workflow.NewVideoAnalysisWorkflow(workflow.Collaborators{
			Retriever:   h.retriever,
			Transcriber: stubTranscriber{},
			Analyzer:    analyzer,
		}),
		Translator: h.translator,
		Events:     h.events,
		Recorder:   h.recorder,
	}
	return h
}

var sourceRef = model.SourceReference{URL: "https://www.tiktok.com/@acme/video/1"}

func runToDone(t *testing.T, m *pipeline.Machine) model.PipelineRun {
	t.Helper()
	run, err := m.Run(context.Background(), sourceRef)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, run.Status)
	return run
}

func TestMachineRunCompletes(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	m := pipeline.NewMachine("session-1", h.deps)

	run := runToDone(t, m)
	assert.Equal(t, model.ProgressAnalyzed, run.Progress)
	assert.Equal(t, model.StageFlags{VideoRetrieved: true, Transcribed: true, Analyzed: true}, run.Flags)
	assert.Equal(t, "v1", run.Video.ID)
	assert.Equal(t, "buy now and save", run.Transcript.Text)
	assert.NotNil(t, run.Transcript.Translations)
	assert.Equal(t, 0.5, run.Analysis.TargetAudience.Score)
	assert.Nil(t, run.LastError)

	assert.Equal(t, []int{0, 0, 33, 33, 66, 66, 100}, h.events.progress())
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, model.StatusDone, h.recorder.runs[0].Status)

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestMachineFailureRollsBackStages(t *testing.T) {
	h := newHarness(stubAnalyzer{err: errors.New("model overloaded")})
	m := pipeline.NewMachine("session-1", h.deps)

	run, err := m.Run(context.Background(), sourceRef)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrBackend))

	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Equal(t, model.StageFlags{}, run.Flags)
	assert.Equal(t, 0, run.Progress)
	require.NotNil(t, run.LastError)
	assert.Equal(t, "analysis backend failed: model overloaded", *run.LastError)

	progress := h.events.progress()
	assert.Equal(t, 0, progress[len(progress)-1])
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, model.StatusFailed, h.recorder.runs[0].Status)
}

func TestMachineRejectsSecondSubmitWhileRunning(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.retriever.release = make(chan struct{})
	m := pipeline.NewMachine("session-1", h.deps)

	run, err := m.Submit(context.Background(), sourceRef)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, run.Status)
	done := m.Done()

	_, err = m.Submit(context.Background(), model.SourceReference{URL: "https://example.com/other.mp4"})
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = m.Reset(context.Background())
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.True(t, m.IsRunning())

	close(h.retriever.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	assert.Equal(t, model.StatusDone, m.Snapshot().Status)
	assert.Equal(t, 1, h.retriever.count())
}

func TestMachineSubmitSurvivesRequestCancellation(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.retriever.release = make(chan struct{})
	m := pipeline.NewMachine("session-1", h.deps)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Submit(ctx, sourceRef)
	require.NoError(t, err)
	cancel()
	close(h.retriever.release)

	<-m.Done()
	assert.Equal(t, model.StatusDone, m.Snapshot().Status)
}

type blockingInserter struct {
	release chan struct{}
}

func (b blockingInserter) Put(ctx context.Context, _ interface{}) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type runCounter struct {
	mu       sync.Mutex
	started  int
	finished []model.RunStatus
}

func (c *runCounter) RunStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *runCounter) RunFinished(status model.RunStatus, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = append(c.finished, status)
}

func (c *runCounter) StageCompleted(model.Stage, time.Duration)     {}
func (c *runCounter) TranslationFinished(model.LanguageCode, error) {}

func TestMachineResetDuringPersistKeepsCompletedRun(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	inserter := blockingInserter{release: make(chan struct{})}
	counter := &runCounter{}
	h.deps.Workflow = workflow.NewVideoAnalysisWorkflow(workflow.Collaborators{
		Retriever:   h.retriever,
		Transcriber: stubTranscriber{},
		Analyzer:    stubAnalyzer{},
		Inserter:    inserter,
	})
	h.deps.Metrics = counter
	m := pipeline.NewMachine("session-1", h.deps)

	type result struct {
		run model.PipelineRun
		err error
	}
	finished := make(chan result, 1)
	go func() {
		run, err := m.Run(context.Background(), sourceRef)
		finished <- result{run: run, err: err}
	}()

	require.Eventually(t, func() bool { return m.Status() == model.StatusDone }, 5*time.Second, 10*time.Millisecond)
	_, err := m.Reset(context.Background())
	require.NoError(t, err)
	close(inserter.release)

	var got result
	select {
	case got = <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	require.NoError(t, got.err)
	assert.Equal(t, model.StatusDone, got.run.Status)
	assert.Equal(t, model.StatusIdle, m.Snapshot().Status)

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, model.StatusDone, h.recorder.runs[0].Status)
	assert.NotNil(t, h.recorder.runs[0].Analysis)

	counter.mu.Lock()
	defer counter.mu.Unlock()
	assert.Equal(t, 1, counter.started)
	assert.Equal(t, []model.RunStatus{model.StatusDone}, counter.finished)
}

func TestMachineResubmitDuringPersistRecordsBothRuns(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	inserter := blockingInserter{release: make(chan struct{})}
	h.deps.Workflow = workflow.NewVideoAnalysisWorkflow(workflow.Collaborators{
		Retriever:   h.retriever,
		Transcriber: stubTranscriber{},
		Analyzer:    stubAnalyzer{},
		Inserter:    inserter,
	})
	m := pipeline.NewMachine("session-1", h.deps)

	_, err := m.Submit(context.Background(), sourceRef)
	require.NoError(t, err)
	first := m.Done()
	require.Eventually(t, func() bool { return m.Status() == model.StatusDone }, 5*time.Second, 10*time.Millisecond)

	_, err = m.Submit(context.Background(), model.SourceReference{URL: "https://example.com/other.mp4"})
	require.NoError(t, err)
	second := m.Done()
	close(inserter.release)

	for _, done := range []<-chan struct{}{first, second} {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("run did not finish")
		}
	}
	assert.Equal(t, model.StatusDone, m.Snapshot().Status)

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	require.Len(t, h.recorder.runs, 2)
	assert.Equal(t, model.StatusDone, h.recorder.runs[0].Status)
	assert.Equal(t, model.StatusDone, h.recorder.runs[1].Status)
	assert.NotEqual(t, h.recorder.runs[0].ID, h.recorder.runs[1].ID)
}

func TestMachineRejectsInvalidReference(t *testing.T) {
	m := pipeline.NewMachine("session-1", newHarness(stubAnalyzer{}).deps)
	for _, ref := range []model.SourceReference{
		{},
		{URL: "ftp://example.com/v.mp4"},
		{Object: "v.mp4"},
	} {
		_, err := m.Submit(context.Background(), ref)
		assert.ErrorIs(t, err, model.ErrInvalidInput, ref.String())
	}
	assert.Equal(t, model.StatusIdle, m.Snapshot().Status)
}

func TestMachineResetClearsEverything(t *testing.T) {
	m := pipeline.NewMachine("session-1", newHarness(stubAnalyzer{}).deps)
	runToDone(t, m)

	run, err := m.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewIdleRun(), run)
	assert.Equal(t, model.NewIdleRun(), m.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	m := pipeline.NewMachine("session-1", newHarness(stubAnalyzer{}).deps)
	runToDone(t, m)

	snap := m.Snapshot()
	snap.Transcript.Translations[model.LanguageGerman] = "tampered"
	snap.Analysis.TargetAudience.Elements[0] = "tampered"

	fresh := m.Snapshot()
	assert.Empty(t, fresh.Transcript.Translations)
	assert.Equal(t, "point one", fresh.Analysis.TargetAudience.Elements[0])
}

func TestTranslateRequiresFinishedRun(t *testing.T) {
	m := pipeline.NewMachine("session-1", newHarness(stubAnalyzer{}).deps)
	_, err := m.Translate(context.Background(), model.LanguageSpanish)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = m.Translate(context.Background(), model.LanguageCode("ja"))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestTranslateIsAdditiveAndCached(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	m := pipeline.NewMachine("session-1", h.deps)
	runToDone(t, m)
	ctx := context.Background()

	en, err := m.Translate(ctx, model.LanguageEnglish)
	require.NoError(t, err)
	es, err := m.Translate(ctx, model.LanguageSpanish)
	require.NoError(t, err)
	assert.Equal(t, "v1[en] buy now and save", en)
	assert.Equal(t, "v1[es] buy now and save", es)

	cached, err := m.Translate(ctx, model.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, en, cached)
	assert.Equal(t, 2, h.translator.total())

	h.translator.mu.Lock()
	h.translator.prefix = "v2"
	h.translator.mu.Unlock()
	refreshed, err := m.Retranslate(ctx, model.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, "v2[en] buy now and save", refreshed)

	assert.Equal(t, map[model.LanguageCode]string{
		model.LanguageEnglish: "v2[en] buy now and save",
		model.LanguageSpanish: "v1[es] buy now and save",
	}, m.Snapshot().Transcript.Translations)
}

func TestTranslateFailureKeepsExistingEntries(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.translator.fail[model.LanguageFrench] = true
	m := pipeline.NewMachine("session-1", h.deps)
	runToDone(t, m)

	_, err := m.Translate(context.Background(), model.LanguageGerman)
	require.NoError(t, err)
	_, err = m.Translate(context.Background(), model.LanguageFrench)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrTranslation))

	translations := m.Snapshot().Transcript.Translations
	assert.Len(t, translations, 1)
	assert.Contains(t, translations, model.LanguageGerman)
	assert.Equal(t, model.StatusDone, m.Snapshot().Status)
}

func TestTranslateManyKeepsEveryLanguage(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.translator.fail[model.LanguageItalian] = true
	m := pipeline.NewMachine("session-1", h.deps)
	runToDone(t, m)

	got, err := m.TranslateMany(context.Background(), model.SupportedLanguages())
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrTranslation))
	assert.Len(t, got, 5)
	assert.NotContains(t, got, model.LanguageItalian)

	translations := m.Snapshot().Transcript.Translations
	assert.Len(t, translations, 5)
	for code, text := range got {
		assert.Equal(t, text, translations[code])
	}
}

func TestConcurrentTranslationsDoNotClobber(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	m := pipeline.NewMachine("session-1", h.deps)
	runToDone(t, m)

	var wg sync.WaitGroup
	for _, code := range model.SupportedLanguages() {
		wg.Add(1)
		go func(code model.LanguageCode) {
			defer wg.Done()
			_, err := m.Translate(context.Background(), code)
			assert.NoError(t, err)
		}(code)
	}
	wg.Wait()
	assert.Len(t, m.Snapshot().Transcript.Translations, len(model.SupportedLanguages()))
}

func TestExport(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	m := pipeline.NewMachine("session-1", h.deps)

	_, err := m.Export(context.Background(), export.FormatHTML)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	runToDone(t, m)
	artifact, err := m.Export(context.Background(), export.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, export.FormatMarkdown, artifact.Format)
	assert.Contains(t, string(artifact.Data), "### Target Audience (50%)")
	assert.Empty(t, artifact.URL)
}

func TestExportUsesStore(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.deps.Store = stubStore{}
	m := pipeline.NewMachine("session-1", h.deps)
	runToDone(t, m)

	artifact, err := m.Export(context.Background(), export.FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, artifact.URL, "https://storage.example.com/session-1/")
}

func TestExportFailureLeavesRunDone(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	h.deps.Store = stubStore{err: errors.New("bucket missing")}
	m := pipeline.NewMachine("session-1", h.deps)
	before := runToDone(t, m)

	_, err := m.Export(context.Background(), export.FormatHTML)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrExport))
	assert.Equal(t, before, m.Snapshot())
}
