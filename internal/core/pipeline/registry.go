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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Registry keeps one Machine per session. Sessions come from three places:
// the HTTP API (Create or GetOrCreate with a client supplied id), upload
// notifications (SubmitUpload with an id derived from the object name) and
// the sweeper, which removes idle sessions.
type Registry struct {
	deps Dependencies // Shared by every machine the registry creates.

	mu       sync.RWMutex
	machines map[string]*Machine // Keyed by session id.
}

// RegistryStats is a point in time view of the registry.
type RegistryStats struct {
	Sessions int                     `json:"sessions"` // Live sessions.
	Running  int                     `json:"running"`  // Sessions with a run in progress.
	ByStatus map[model.RunStatus]int `json:"byStatus"` // Sessions per current run status.
}

// NewRegistry is the constructor for Registry.
//
// Inputs:
//   - deps: The collaborators handed to every machine. Missing optional
//     collaborators are filled with defaults.
//
// Outputs:
//   - *Registry: An empty registry.
func NewRegistry(deps Dependencies) *Registry {
	return &Registry{deps: deps.withDefaults(), machines: make(map[string]*Machine)}
}

// Create starts a new session.
func (r *Registry) Create() *Machine {
	m := NewMachine(uuid.NewString(), r.deps)
	r.mu.Lock()
	r.machines[m.SessionID()] = m
	r.mu.Unlock()
	return m
}

// Get returns the machine of an existing session.
func (r *Registry) Get(sessionID string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", model.ErrNotFound, sessionID)
	}
	return m, nil
}

// GetOrCreate returns the machine of sessionID, creating it when needed. An
// empty id creates a new session.
func (r *Registry) GetOrCreate(sessionID string) (*Machine, error) {
	if sessionID == "" {
		return r.Create(), nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id %q is not a uuid", model.ErrInvalidInput, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[sessionID]; ok {
		return m, nil
	}
	m := NewMachine(sessionID, r.deps)
	r.machines[sessionID] = m
	return m, nil
}

// SubmitUpload starts a run for an uploaded object in a session derived from
// the object name. A repeated notification for an object that is running or
// done is accepted without starting another run.
//
// Inputs:
//   - ctx: The notification context. The run itself outlives it.
//   - ref: The uploaded object.
//
// Outputs:
//   - string: The session id, stable for the same object.
//   - error: ErrInvalidInput for a bad reference, ErrBusy when another
//     object is already running in the session.
func (r *Registry) SubmitUpload(ctx context.Context, ref model.SourceReference) (string, error) {
	sessionID := UploadSessionID(ref)
	m, err := r.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	if run := m.Snapshot(); run.SourceReference == ref &&
		(run.Status == model.StatusRunning || run.Status == model.StatusDone) {
		slog.InfoContext(ctx, "duplicate upload notification", "session_id", sessionID, "source", ref.String())
		return sessionID, nil
	}
	if _, err := m.Submit(ctx, ref); err != nil {
		return "", err
	}
	return sessionID, nil
}

// UploadSessionID is the session id used for an uploaded object.
func UploadSessionID(ref model.SourceReference) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref.String())).String()
}

// Sweep removes sessions that are not running and have been inactive for
// longer than ttl. It returns the number of removed sessions.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.deps.Clock().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, m := range r.machines {
		if m.IsRunning() || m.LastActive().After(cutoff) {
			continue
		}
		delete(r.machines, id)
		removed++
	}
	return removed
}

// Stats counts sessions by the status of their current run.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{Sessions: len(r.machines), ByStatus: make(map[model.RunStatus]int)}
	for _, m := range r.machines {
		status := m.Status()
		stats.ByStatus[status]++
		if status == model.StatusRunning {
			stats.Running++
		}
	}
	return stats
}
