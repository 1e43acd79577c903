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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Translate returns the transcript translated to code. A stored translation
// is returned without calling the translator.
func (m *Machine) Translate(ctx context.Context, code model.LanguageCode) (string, error) {
	return m.translate(ctx, code, false)
}

// Retranslate always calls the translator and replaces the stored entry for code.
func (m *Machine) Retranslate(ctx context.Context, code model.LanguageCode) (string, error) {
	return m.translate(ctx, code, true)
}

func (m *Machine) translate(ctx context.Context, code model.LanguageCode, refresh bool) (string, error) {
	if _, err := model.ParseLanguageCode(string(code)); err != nil {
		return "", err
	}

	m.mu.Lock()
	gen := m.generation
	status := m.run.Status
	transcript := m.run.Transcript
	m.mu.Unlock()

	if status != model.StatusDone || transcript == nil {
		return "", fmt.Errorf("%w: translation needs a finished run, current status is %s", model.ErrInvalidState, status)
	}
	if text, ok := transcript.Translations[code]; ok && !refresh {
		return text, nil
	}
	if m.deps.Translator == nil {
		return "", model.WrapError(model.ErrTranslation, "translate "+string(code), errors.New("no translator configured"))
	}

	text, err := m.deps.Translator.Translate(ctx, transcript.Text, code)
	m.deps.Metrics.TranslationFinished(code, err)
	if err != nil {
		slog.ErrorContext(ctx, "translation failed", "session_id", m.sessionID, "language", code, "error", err)
		if model.IsKind(err, model.ErrTranslation) {
			return "", err
		}
		return "", model.WrapError(model.ErrTranslation, "translate "+string(code), err)
	}

	_, err = m.apply(ctx, gen, func(run model.PipelineRun, now time.Time) (model.PipelineRun, error) {
		return WithTranslation(run, code, text, now)
	})
	if errors.Is(err, errStale) {
		return "", fmt.Errorf("%w: the run was replaced during translation", model.ErrInvalidState)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// TranslateMany translates into several languages using a bounded pool of
// workers. Results of successful translations are returned even when others
// fail; the failures are joined into the returned error.
func (m *Machine) TranslateMany(ctx context.Context, codes []model.LanguageCode) (map[model.LanguageCode]string, error) {
	type job struct {
		code model.LanguageCode
	}
	type result struct {
		code model.LanguageCode
		text string
		err  error
	}

	unique := make([]model.LanguageCode, 0, len(codes))
	seen := make(map[model.LanguageCode]bool, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}

	jobs := make(chan job, len(unique))
	results := make(chan result, len(unique))
	var wg sync.WaitGroup
	workers := min(m.deps.TranslationWorkers, len(unique))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				text, err := m.Translate(ctx, j.code)
				results <- result{code: j.code, text: text, err: err}
			}
		}()
	}
	for _, c := range unique {
		jobs <- job{code: c}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[model.LanguageCode]string, len(unique))
	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.code, r.err))
			continue
		}
		out[r.code] = r.text
	}
	return out, errors.Join(errs...)
}

// Export renders the finished run. The run itself is never modified.
func (m *Machine) Export(ctx context.Context, format export.Format) (*export.Artifact, error) {
	run := m.Snapshot()
	if run.Status != model.StatusDone {
		return nil, fmt.Errorf("%w: export needs a finished run, current status is %s", model.ErrInvalidState, run.Status)
	}

	opts := m.deps.ExportOptions
	opts.GeneratedAt = m.deps.Clock().UTC()
	doc := export.Assemble(run.Transcript, run.Analysis, run.Video, opts)
	artifact, err := export.Render(doc, format)
	if err != nil {
		slog.ErrorContext(ctx, "export failed", "session_id", m.sessionID, "run_id", run.ID, "format", format, "error", err)
		return nil, err
	}

	if m.deps.Store != nil {
		url, err := m.deps.Store.Save(ctx, m.sessionID, artifact)
		if err != nil {
			slog.ErrorContext(ctx, "export upload failed", "session_id", m.sessionID, "run_id", run.ID, "error", err)
			return nil, model.WrapError(model.ErrExport, "save "+artifact.FileName, err)
		}
		artifact.URL = url
	}
	return artifact, nil
}
