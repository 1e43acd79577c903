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
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Transcription runs the transcription stage. The stored copy of the video is
// preferred over its original URL.
type Transcription struct {
	cor.BaseCommand
	transcriber Transcriber
	timeout     time.Duration // Bound for one Transcribe call; 0 means none.
}

// NewTranscription is the constructor for Transcription.
//
// Inputs:
//   - name: The command name.
//   - transcriber: Turns the video's speech into text.
//   - timeout: Bound for the call. Zero leaves it to the transcriber.
//
// Outputs:
//   - *Transcription: The stage command.
func NewTranscription(name string, transcriber Transcriber, timeout time.Duration) *Transcription {
	return &Transcription{BaseCommand: *cor.NewBaseCommand(name), transcriber: transcriber, timeout: timeout}
}

func (c *Transcription) Execute(chCtx cor.Context) {
	video, ok := chCtx.Get(c.GetInputParam()).(*model.VideoMetadata)
	if !ok || video == nil {
		c.Fail(chCtx, model.WrapError(model.ErrTranscription, c.GetName(), errors.New("missing video metadata")))
		return
	}
	ctx := chCtx.GetContext()
	observerFrom(chCtx).StageStarted(ctx, model.StageTranscribing)

	videoURL := video.StorageKey
	if videoURL == "" {
		videoURL = video.URL
	}

	callCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()
	transcript, err := c.transcriber.Transcribe(callCtx, videoURL)
	// A video without speech cannot be analyzed.
	if err == nil && (transcript == nil || strings.TrimSpace(transcript.Text) == "") {
		err = errors.New("empty transcript")
	}
	if err != nil {
		c.Fail(chCtx, wrapKind(model.ErrTranscription, c.GetName(), err))
		return
	}
	if transcript.Translations == nil {
		transcript.Translations = make(map[model.LanguageCode]string)
	}

	slog.InfoContext(ctx, "video transcribed",
		"video_id", video.ID,
		"language", transcript.LanguageCode,
		"words", len(transcript.Words))
	c.Succeed(chCtx)
	chCtx.Add(ParamTranscript, transcript)
	observerFrom(chCtx).Transcribed(ctx, transcript)
	chCtx.Add(c.GetOutputParam(), transcript)
}
