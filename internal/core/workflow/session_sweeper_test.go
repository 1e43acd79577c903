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


package workflow_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
)

type countingSweeper struct {
	calls   atomic.Int32
	lastTTL atomic.Int64
}

func (s *countingSweeper) Sweep(ttl time.Duration) int {
	s.calls.Add(1)
	s.lastTTL.Store(int64(ttl))
	return 2
}

func TestSessionSweepJobPassesTTL(t *testing.T) {
	sweeper := &countingSweeper{}
	job := &workflow.SessionSweepJob{Sweeper: sweeper, TTL: time.Hour}

	job.Run()

	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, int64(time.Hour), sweeper.lastTTL.Load())
}

func TestSweepSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := workflow.NewSweepScheduler("every tuesday", &workflow.SessionSweepJob{Sweeper: &countingSweeper{}})
	assert.Error(t, err)
}

func TestSweepSchedulerRunsJob(t *testing.T) {
	logger := test.NewTestLogger(t)
	sweeper := &countingSweeper{}
	scheduler, err := workflow.NewSweepScheduler("* * * * * *", &workflow.SessionSweepJob{Sweeper: sweeper, TTL: time.Minute})
	require.NoError(t, err)

	scheduler.Start()
	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	scheduler.Stop(ctx)
	logger.Info("sweeper stopped", "sweeps", sweeper.calls.Load())
}

func TestSweepSchedulerAcceptsConfiguredSchedule(t *testing.T) {
	config := test.GetConfig(t)
	job := &workflow.SessionSweepJob{Sweeper: &countingSweeper{}, TTL: config.Pipeline.SessionTTL()}

	_, err := workflow.NewSweepScheduler(config.Pipeline.SweepSchedule, job)
	assert.NoError(t, err)
}
