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


package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Sweeper discards idle sessions.
type Sweeper interface {
	Sweep(ttl time.Duration) int
}

// SessionSweepJob is a cron job that removes sessions idle for longer than TTL.
type SessionSweepJob struct {
	Sweeper Sweeper
	TTL     time.Duration
}

var _ cron.Job = (*SessionSweepJob)(nil)

// Run sweeps once. Each sweep is its own root span since cron jobs have no
// incoming context.
func (j *SessionSweepJob) Run() {
	_, span := otel.Tracer("session-sweeper").Start(context.Background(), "session-sweep")
	defer span.End()

	removed := j.Sweeper.Sweep(j.TTL)
	span.SetAttributes(attribute.Int("sessions.removed", removed))
	if removed > 0 {
		slog.Info("swept idle sessions", "removed", removed, "ttl", j.TTL)
	}
}

// SweepScheduler runs a SessionSweepJob on a cron schedule with a seconds field.
type SweepScheduler struct {
	cron *cron.Cron
}

// NewSweepScheduler registers job under spec, e.g. "0 */5 * * * *". The
// scheduler does not run until Start is called.
func NewSweepScheduler(spec string, job cron.Job) (*SweepScheduler, error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return &SweepScheduler{cron: c}, nil
}

func (s *SweepScheduler) Start() {
	s.cron.Start()
	slog.Info("session sweeper started")
}

// Stop stops the schedule and waits for a running sweep until ctx expires.
func (s *SweepScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("session sweeper stopped")
	case <-ctx.Done():
		slog.Warn("session sweeper stop timed out")
	}
}
