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

// Package cloud provides the Google Cloud plumbing of the server. This file
// decorates the GenAI models API with a per model rate limiter.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: A model name, its generation settings and
//     a token bucket limiter sized to the model's quota.
//
// Functions:
//   - NewQuotaAwareModel: Constructor.
//   - NewGenerateContentConfig: Maps a VertexAiLLMModel section to request settings.
//   - WithSystemInstruction: A copy of the model with a different system instruction.
package cloud

import (
	"context"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the slice of the GenAI models API the pipeline uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel binds a model name and its generation settings
// to a request rate limiter.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Sent with every request.
	ModelName               string                       // e.g. "gemini-2.0-flash".
	ModelHandle             *genai.Models                // The client's models service.
	RateLimit               *rate.Limiter                // Shared by copies of the model.
}

// NewQuotaAwareModel is the constructor for QuotaAwareGenerativeAIModel.
//
// Inputs:
//   - wrapped: The generation settings.
//   - name: The model name.
//   - modelHandle: The GenAI client's Models service.
//   - requestsPerSecond: Limiter rate and burst; at least 1.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: The rate limited model.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// GenerateContent waits for the limiter and issues one request. Retries are
// left to the caller's resilience executor.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// NewGenerateContentConfig maps a TOML model section onto request settings.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		TopP:             genai.Ptr[float32](values.TopP),
		TopK:             genai.Ptr[float32](values.TopK),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.SystemInstructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return config
}

// WithSystemInstruction returns a model that sends text as the system
// instruction. The copy shares the rate limiter with q.
func (q *QuotaAwareGenerativeAIModel) WithSystemInstruction(text string) ContentGenerator {
	out := *q
	config := genai.GenerateContentConfig{}
	if q.GenerativeContentConfig != nil {
		config = *q.GenerativeContentConfig
	}
	config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	out.GenerativeContentConfig = &config
	return &out
}
