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

// Package services binds the pipeline's collaborator interfaces to Google
// Cloud: Gemini for analysis, transcription and translation, Cloud Storage
// for videos and reports and BigQuery for the analysis history.
//
// This file holds the Gemini backed collaborators. Every model call goes
// through generate, which:
//   - runs the call inside the resilience.Executor (retry with backoff and a
//     circuit breaker), classifying errors with ClassifyGenAIError;
//   - records prompt and response token counts on the supplied counters;
//   - returns the concatenated response text with any code fence removed.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"text/template"

	"github.com/h2non/filetype"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/resilience"
)

// Prompts used when the configuration does not supply one. The translation
// prompt is a text/template with Language, Code and Text.
const (
	DefaultTranscriptionPrompt = `Transcribe the spoken content of the attached video.
Return only a JSON object with these fields:
{"text": "<full transcript>", "languageCode": "<ISO 639-1 code>", "confidence": <0..1>,
 "words": [{"text": "<word>", "startTime": <seconds>, "endTime": <seconds>}]}
If nobody speaks, return an empty text.`

	DefaultTranslationPrompt = `Translate the following transcript into {{.Language}}.
Keep the meaning and the tone. Return only the translated text.

{{.Text}}`
)

// systemInstructed is implemented by models that accept a per call system
// instruction.
type systemInstructed interface {
	WithSystemInstruction(text string) cloud.ContentGenerator
}

// generate runs one model call through the executor.
func generate(ctx context.Context, executor *resilience.Executor, counters cloud.TokenCounters, operation string, model cloud.ContentGenerator, contents []*genai.Content) (string, error) {
	return resilience.Do(ctx, executor, operation, func(ctx context.Context) (string, error) {
		return cloud.GenerateText(ctx, counters, model, contents)
	}, ClassifyGenAIError)
}

// ClassifyGenAIError retries throttling, server errors and transport
// failures. Other API errors are the caller's fault and do not trip the breaker.
func ClassifyGenAIError(err error) resilience.ErrorClassification {
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code)
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func classifyStatus(code int) resilience.ErrorClassification {
	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{}
	}
}

// GeminiTextGenerator is the analysis backend.
type GeminiTextGenerator struct {
	model    cloud.ContentGenerator
	executor *resilience.Executor
	counters cloud.TokenCounters
}

// NewGeminiTextGenerator is the constructor for GeminiTextGenerator.
//
// Inputs:
//   - model: The Gemini model, usually from cloud.NewGenAIModel.
//   - executor: Retry and circuit breaker policy for the calls.
//   - counters: Token counters for the analysis operation.
func NewGeminiTextGenerator(model cloud.ContentGenerator, executor *resilience.Executor, counters cloud.TokenCounters) *GeminiTextGenerator {
	return &GeminiTextGenerator{model: model, executor: executor, counters: counters}
}

// Complete sends the system prompt as the model's system instruction when the
// model supports it and prepends it to the user prompt otherwise.
func (g *GeminiTextGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := g.model
	if systemPrompt != "" {
		if si, ok := model.(systemInstructed); ok {
			model = si.WithSystemInstruction(systemPrompt)
		} else {
			userPrompt = systemPrompt + "\n\n" + userPrompt
		}
	}
	return generate(ctx, g.executor, g.counters, "analysis", model, cloud.UserContent(cloud.NewTextPart(userPrompt)))
}

// GeminiTranscriber transcribes a stored video with a multimodal model.
type GeminiTranscriber struct {
	model    cloud.ContentGenerator
	executor *resilience.Executor
	counters cloud.TokenCounters
	prompt   string
}

// NewGeminiTranscriber is the constructor for GeminiTranscriber. An empty
// prompt selects DefaultTranscriptionPrompt.
func NewGeminiTranscriber(model cloud.ContentGenerator, executor *resilience.Executor, counters cloud.TokenCounters, prompt string) *GeminiTranscriber {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultTranscriptionPrompt
	}
	return &GeminiTranscriber{model: model, executor: executor, counters: counters, prompt: prompt}
}

// Transcribe sends the prompt with the video as file data. The model reads
// the video straight from Cloud Storage.
//
// Inputs:
//   - ctx: Bounds the call, including retries.
//   - videoURL: A gs:// URI, or a remote URL as a fallback.
//
// Outputs:
//   - *model.Transcript: The decoded transcript.
//   - error: ErrInvalidInput without a URL; call or decode failures otherwise.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, videoURL string) (*model.Transcript, error) {
	if videoURL == "" {
		return nil, fmt.Errorf("%w: no video to transcribe", model.ErrInvalidInput)
	}
	contents := cloud.UserContent(
		cloud.NewFileData(videoURL, VideoMIMEType(videoURL)),
		cloud.NewTextPart(g.prompt),
	)
	out, err := generate(ctx, g.executor, g.counters, "transcription", g.model, contents)
	if err != nil {
		return nil, err
	}
	return ParseTranscript(out)
}

// ParseTranscript decodes the transcription response. Plain text responses
// are accepted as the transcript text.
func ParseTranscript(in string) (*model.Transcript, error) {
	in = cloud.TrimCodeFence(in)
	transcript := &model.Transcript{}
	if strings.HasPrefix(in, "{") {
		if err := json.Unmarshal([]byte(in), transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	} else {
		transcript.Text = in
	}
	transcript.Text = strings.TrimSpace(transcript.Text)
	transcript.LanguageCode = strings.ToLower(strings.TrimSpace(transcript.LanguageCode))
	if transcript.Words == nil {
		transcript.Words = []model.Word{}
	}
	transcript.Translations = make(map[model.LanguageCode]string)
	return transcript, nil
}

// VideoMIMEType guesses the MIME type from the file extension, defaulting to mp4.
func VideoMIMEType(uri string) string {
	ext := strings.TrimPrefix(path.Ext(uri), ".")
	if t := filetype.GetType(strings.ToLower(ext)); t != filetype.Unknown && strings.HasPrefix(t.MIME.Value, "video/") {
		return t.MIME.Value
	}
	return "video/mp4"
}

// GeminiTranslator translates transcripts.
type GeminiTranslator struct {
	model    cloud.ContentGenerator
	executor *resilience.Executor
	counters cloud.TokenCounters
	prompt   *template.Template
}

// NewGeminiTranslator is the constructor for GeminiTranslator.
//
// Inputs:
//   - prompt: A text/template; empty selects DefaultTranslationPrompt.
//
// Outputs:
//   - error: When the prompt does not parse.
func NewGeminiTranslator(model cloud.ContentGenerator, executor *resilience.Executor, counters cloud.TokenCounters, prompt string) (*GeminiTranslator, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultTranslationPrompt
	}
	tmpl, err := template.New("translation").Option("missingkey=error").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("parse translation prompt: %w", err)
	}
	return &GeminiTranslator{model: model, executor: executor, counters: counters, prompt: tmpl}, nil
}

// Translate renders the prompt for target and returns the model's text.
func (g *GeminiTranslator) Translate(ctx context.Context, text string, target model.LanguageCode) (string, error) {
	var prompt bytes.Buffer
	if err := g.prompt.Execute(&prompt, map[string]string{"Language": target.Name(), "Code": string(target), "Text": text}); err != nil {
		return "", fmt.Errorf("render translation prompt: %w", err)
	}
	out, err := generate(ctx, g.executor, g.counters, "translation", g.model, cloud.UserContent(cloud.NewTextPart(prompt.String())))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.New("empty translation")
	}
	return out, nil
}
