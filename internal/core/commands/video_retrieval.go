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
	"errors"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// VideoRetrieval runs the retrieval stage. It resolves the source reference
// into video metadata and a storage key the transcriber can read.
type VideoRetrieval struct {
	cor.BaseCommand
	retriever Retriever
	timeout   time.Duration
}

// NewVideoRetrieval creates the stage. A zero timeout leaves the bound to the retriever.
func NewVideoRetrieval(name string, retriever Retriever, timeout time.Duration) *VideoRetrieval {
	return &VideoRetrieval{BaseCommand: *cor.NewBaseCommand(name), retriever: retriever, timeout: timeout}
}

func (c *VideoRetrieval) Execute(chCtx cor.Context) {
	ref, ok := chCtx.Get(c.GetInputParam()).(model.SourceReference)
	if !ok {
		c.Fail(chCtx, model.WrapError(model.ErrExtraction, c.GetName(), errors.New("missing source reference")))
		return
	}
	ctx := chCtx.GetContext()
	observerFrom(chCtx).StageStarted(ctx, model.StageRetrieving)

	callCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()
	video, err := c.retriever.Retrieve(callCtx, ref)
	if err == nil && video == nil {
		err = errors.New("retriever returned no metadata")
	}
	if err != nil {
		c.Fail(chCtx, wrapKind(model.ErrExtraction, c.GetName(), err))
		return
	}

	slog.InfoContext(ctx, "video retrieved",
		"source", ref.String(),
		"video_id", video.ID,
		"duration_seconds", video.DurationSeconds,
		"byte_size", video.ByteSize)
	c.Succeed(chCtx)
	chCtx.Add(ParamVideo, video)
	observerFrom(chCtx).VideoRetrieved(ctx, video)
	chCtx.Add(c.GetOutputParam(), video)
}

// withOptionalTimeout applies timeout only when it is positive.
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
