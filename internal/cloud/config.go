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

// Package cloud holds the configuration model and the Google Cloud client
// wiring shared by the server and the pipeline services.
//
// This file defines the configuration decoded from .env.toml and its runtime
// overlay (see LoadConfig).
//
// Structs:
//   - BigQueryDataSource: Dataset and table of the analysis history.
//   - PromptTemplates: Prompt overrides for the Gemini calls.
//   - VertexAiLLMModel: Settings of one named agent model.
//   - TopicSubscription: A Pub/Sub subscription the server listens on.
//   - Storage: Upload and export buckets.
//   - Pipeline: Session lifetime, stage timeouts and download limits.
//   - Resilience: Retry and circuit breaker settings of remote calls.
//   - NATS, Postgres: Optional event publishing and run history.
//   - Export: Report locale and signed URL lifetime.
//   - Config: The root that aggregates everything above.
package cloud

import (
	"time"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-insights/internal/resilience"
)

// Logical names of the agent models the pipeline looks up in AgentModels.
const (
	AnalysisModel      = "analysis"
	TranscriptionModel = "transcription"
	TranslationModel   = "translation"
)

// DefaultSafetySettings relaxes blocking; ad transcripts routinely trip the
// default thresholds.
var DefaultSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

// BigQueryDataSource locates the analysis history table.
type BigQueryDataSource struct {
	DatasetName   string `toml:"dataset"`        // The BigQuery dataset.
	AnalysisTable string `toml:"analysis_table"` // One row per finished analysis.
}

// PromptTemplates overrides the built-in prompts. Empty values keep the defaults.
type PromptTemplates struct {
	SystemInstructions  string `toml:"system_instructions"`
	AnalysisPrompt      string `toml:"analysis"`
	TranscriptionPrompt string `toml:"transcription"`
	TranslationPrompt   string `toml:"translation"`
}

// VertexAiLLMModel configures one agent model. The map key in AgentModels is
// the logical name (AnalysisModel, TranscriptionModel, TranslationModel).
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // Gemini model name.
	SystemInstructions string  `toml:"system_instructions"` // Default system instruction.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. "application/json".
	RateLimit          int     `toml:"rate_limit"`    // requests per second
}

// TopicSubscription names a Pub/Sub subscription. The map key in
// TopicSubscriptions selects the workflow bound to it.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Storage names the buckets the server reads and writes.
type Storage struct {
	UploadBucket string `toml:"upload_bucket"`
	ExportBucket string `toml:"export_bucket"` // empty streams exports back to the caller
}

// Pipeline tunes sessions and stage execution.
type Pipeline struct {
	SessionTTLMinutes           int    `toml:"session_ttl_minutes"`
	SweepSchedule               string `toml:"sweep_schedule"` // cron spec with seconds
	RetrievalTimeoutSeconds     int    `toml:"retrieval_timeout_seconds"`
	TranscriptionTimeoutSeconds int    `toml:"transcription_timeout_seconds"`
	InspectorPath               string `toml:"ffprobe_path"`
	MaxDownloadBytes            int64  `toml:"max_download_bytes"`
	TranslationWorkers          int    `toml:"translation_workers"`
}

// SessionTTL is how long an idle session survives the sweeper.
func (p Pipeline) SessionTTL() time.Duration {
	return time.Duration(p.SessionTTLMinutes) * time.Minute
}

// RetrievalTimeout bounds the retrieval stage; 0 means unbounded.
func (p Pipeline) RetrievalTimeout() time.Duration {
	return time.Duration(p.RetrievalTimeoutSeconds) * time.Second
}

// TranscriptionTimeout bounds the transcription stage; 0 means unbounded.
func (p Pipeline) TranscriptionTimeout() time.Duration {
	return time.Duration(p.TranscriptionTimeoutSeconds) * time.Second
}

// Resilience is the TOML form of resilience.Config. Zero values fall back to
// resilience.DefaultConfig.
type Resilience struct {
	RetryMaxAttempts          int     `toml:"retry_max_attempts"`
	RetryInitialBackoffMillis int     `toml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMillis     int     `toml:"retry_max_backoff_ms"`
	RetryMultiplier           float64 `toml:"retry_multiplier"`
	BreakerEnabled            bool    `toml:"breaker_enabled"`
	BreakerMinRequests        uint32  `toml:"breaker_min_requests"`
	BreakerFailureRatio       float64 `toml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSeconds int     `toml:"breaker_open_timeout_seconds"`
	BreakerHalfOpenMaxCalls   uint32  `toml:"breaker_half_open_max_calls"`
}

// ExecutorConfig converts the TOML section into the executor's settings.
func (r Resilience) ExecutorConfig() resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        r.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(r.RetryInitialBackoffMillis) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(r.RetryMaxBackoffMillis) * time.Millisecond,
		RetryMultiplier:         r.RetryMultiplier,
		BreakerEnabled:          r.BreakerEnabled,
		BreakerMinRequests:      r.BreakerMinRequests,
		BreakerFailureRatio:     r.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(r.BreakerOpenTimeoutSeconds) * time.Second,
		BreakerHalfOpenMaxCalls: r.BreakerHalfOpenMaxCalls,
	}
}

// NATS configures pipeline event publishing. An empty URL disables it.
type NATS struct {
	URL                   string `toml:"url"`
	Subject               string `toml:"subject"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	MaxReconnects         int    `toml:"max_reconnects"`
}

// Postgres configures the run history store. An empty DSN disables it.
type Postgres struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// Export configures report rendering and publishing.
type Export struct {
	Locale              string `toml:"locale"`                 // BCP 47 tag for dates and numbers.
	SignedURLTTLMinutes int    `toml:"signed_url_ttl_minutes"` // Lifetime of published report URLs.
}

// SignedURLTTL is the lifetime of a published report URL.
func (e Export) SignedURLTTL() time.Duration {
	return time.Duration(e.SignedURLTTLMinutes) * time.Minute
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		ThreadPoolSize            int    `toml:"thread_pool_size"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Signs export URLs through IAM.
		LogLevel                  string `toml:"log_level"`                    // debug, info, warn or error.
		HTTPPort                  string `toml:"http_port"`
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	Pipeline           Pipeline                     `toml:"pipeline"`
	Resilience         Resilience                   `toml:"resilience"`
	NATS               NATS                         `toml:"nats"`
	Postgres           Postgres                     `toml:"postgres"`
	Export             Export                       `toml:"export"`
}

// NewConfig returns a configuration with every default filled in. Values
// decoded from TOML later overwrite them.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
		Pipeline: Pipeline{
			SessionTTLMinutes:           60,
			SweepSchedule:               "0 */5 * * * *",
			RetrievalTimeoutSeconds:     120,
			TranscriptionTimeoutSeconds: 180,
			InspectorPath:               "ffprobe",
			MaxDownloadBytes:            512 << 20,
			TranslationWorkers:          3,
		},
		Export: Export{Locale: "en", SignedURLTTLMinutes: 15},
	}
	c.Application.Name = "video-insights"
	c.Application.LogLevel = "info"
	c.Application.HTTPPort = "8080"
	c.Application.ThreadPoolSize = 4
	return c
}
