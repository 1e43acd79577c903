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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistryLookup(t *testing.T) {
	r := pipeline.NewRegistry(newHarness(stubAnalyzer{}).deps)

	created := r.Create()
	_, err := uuid.Parse(created.SessionID())
	require.NoError(t, err)

	got, err := r.Get(created.SessionID())
	require.NoError(t, err)
	assert.Same(t, created, got)

	_, err = r.Get(uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = r.GetOrCreate("not-a-uuid")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	id := uuid.NewString()
	first, err := r.GetOrCreate(id)
	require.NoError(t, err)
	second, err := r.GetOrCreate(id)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, pipeline.RegistryStats{
		Sessions: 2,
		ByStatus: map[model.RunStatus]int{model.StatusIdle: 2},
	}, r.Stats())
}

func TestRegistrySessionsAreIndependent(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	r := pipeline.NewRegistry(h.deps)
	a, b := r.Create(), r.Create()

	runToDone(t, a)
	assert.Equal(t, model.StatusIdle, b.Snapshot().Status)

	_, err := a.Translate(context.Background(), model.LanguageSpanish)
	require.NoError(t, err)
	_, err = b.Translate(context.Background(), model.LanguageSpanish)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestRegistrySweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)}
	h := newHarness(stubAnalyzer{})
	h.deps.Clock = clock.Now
	h.retriever.release = make(chan struct{})
	r := pipeline.NewRegistry(h.deps)

	idle := r.Create()
	running := r.Create()
	_, err := running.Submit(context.Background(), sourceRef)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, r.Sweep(time.Hour))

	_, err = r.Get(idle.SessionID())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = r.Get(running.SessionID())
	assert.NoError(t, err)
	assert.Equal(t, pipeline.RegistryStats{
		Sessions: 1,
		Running:  1,
		ByStatus: map[model.RunStatus]int{model.StatusRunning: 1},
	}, r.Stats())

	close(h.retriever.release)
	<-running.Done()
	assert.Equal(t, 0, r.Sweep(time.Hour), "finished run was just active")
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, r.Sweep(time.Hour))
}

func TestRegistrySubmitUploadIsIdempotent(t *testing.T) {
	h := newHarness(stubAnalyzer{})
	r := pipeline.NewRegistry(h.deps)
	ref := model.SourceReference{Bucket: "uploads", Object: "ads/spring.mp4"}

	id, err := r.SubmitUpload(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, pipeline.UploadSessionID(ref), id)

	m, err := r.Get(id)
	require.NoError(t, err)
	<-m.Done()
	require.Equal(t, model.StatusDone, m.Snapshot().Status)

	again, err := r.SubmitUpload(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, h.retriever.count())
}
