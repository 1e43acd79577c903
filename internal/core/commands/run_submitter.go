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

package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Submitter starts a run for an uploaded object outside of an HTTP request.
type Submitter interface {
	SubmitUpload(ctx context.Context, ref model.SourceReference) (sessionID string, err error)
}

// RunSubmitter hands the source reference read from a storage notification
// to the session registry. Objects under one of the ignored prefixes were
// written by the server itself and are acknowledged without a run.
type RunSubmitter struct {
	cor.BaseCommand
	submitter Submitter
	ignored   []string
}

// NewRunSubmitter is the constructor for RunSubmitter.
//
// Inputs:
//   - name: The command name.
//   - submitter: Usually the session registry.
//   - ignoredPrefixes: Object name prefixes that never start a run.
func NewRunSubmitter(name string, submitter Submitter, ignoredPrefixes ...string) *RunSubmitter {
	return &RunSubmitter{BaseCommand: *cor.NewBaseCommand(name), submitter: submitter, ignored: ignoredPrefixes}
}

func (c *RunSubmitter) Execute(chCtx cor.Context) {
	ref, _ := chCtx.Get(c.GetInputParam()).(model.SourceReference)
	ctx := chCtx.GetContext()
	for _, prefix := range c.ignored {
		if prefix != "" && strings.HasPrefix(ref.Object, prefix) {
			slog.DebugContext(ctx, "ignoring notification for generated object", "source", ref.String())
			c.Succeed(chCtx)
			return
		}
	}
	sessionID, err := c.submitter.SubmitUpload(ctx, ref)
	if err != nil {
		c.Fail(chCtx, err)
		return
	}
	slog.InfoContext(ctx, "run submitted from notification", "session_id", sessionID, "source", ref.String())
	c.Succeed(chCtx)
	chCtx.Add(ParamSessionID, sessionID)
	chCtx.Add(c.GetOutputParam(), sessionID)
}
