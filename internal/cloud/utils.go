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
// holds general helpers.
//
// Functions:
//   - LoadConfig: Hierarchical configuration loading. The base .env.toml is
//     decoded first and the .env.<runtime>.toml overlay second, so the
//     overlay wins.
//   - NewTokenCounters, GenerateText: One GenAI call with token accounting.
//     Retries live in the resilience package, not here.
//   - TrimCodeFence: Removes the ``` fence models like to wrap JSON in.
//   - NewTextPart, NewFileData, UserContent: Small builders for prompts.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// Configuration file naming and the environment variables that select them.
const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // directory holding the configuration files
	EnvConfigRuntime    = "GCP_RUNTIME"       // runtime overlay, e.g. "local", "test", "prod"
)

// fileExists treats any error other than "not exist" as existing, so a
// permission problem surfaces in the decode instead of being skipped.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes .env.toml and then the .env.<runtime>.toml overlay into
// baseConfig. Missing files are skipped; malformed files are an error.
//
// Inputs:
//   - baseConfig: A pointer to the struct to fill, usually from NewConfig so
//     unset keys keep their defaults.
//
// Outputs:
//   - error: The first decode failure.
//
// GCP_CONFIG_PREFIX names the directory of the files and GCP_RUNTIME the
// overlay, "test" when unset.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	files := []string{
		configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension,
		configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension,
	}
	for _, file := range files {
		if !fileExists(file) {
			slog.Debug("configuration file not found", "file", file)
			continue
		}
		if _, err := toml.DecodeFile(file, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", file, err)
		}
		slog.Info("loaded configuration file", "file", file, "runtime", runtimeEnvironment)
	}
	return nil
}

// TokenCounters records model usage for one caller.
type TokenCounters struct {
	Input  metric.Int64Counter // Prompt tokens.
	Output metric.Int64Counter // Candidate tokens.
	Retry  metric.Int64Counter // Retried calls.
}

// NewTokenCounters creates the input, output and retry counters under prefix.
func NewTokenCounters(meter metric.Meter, prefix string) TokenCounters {
	var c TokenCounters
	c.Input, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.input", prefix))
	c.Output, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.output", prefix))
	c.Retry, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.retry", prefix))
	return c
}

// record adds the usage metadata of resp. Nil counters are skipped.
func (c TokenCounters) record(ctx context.Context, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	usage := resp.UsageMetadata
	if c.Input != nil {
		c.Input.Add(ctx, int64(usage.PromptTokenCount))
	}
	if c.Output != nil {
		c.Output.Add(ctx, int64(usage.CandidatesTokenCount))
	}
}

// CountRetry is a resilience retry hook.
func (c TokenCounters) CountRetry(ctx context.Context) {
	if c.Retry != nil {
		c.Retry.Add(ctx, 1)
	}
}

// GenerateText sends contents to the model and returns the concatenated text
// of every candidate with any wrapping code fence removed.
func GenerateText(ctx context.Context, counters TokenCounters, model ContentGenerator, contents []*genai.Content) (string, error) {
	resp, err := model.GenerateContent(ctx, contents)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	counters.record(ctx, resp)

	var value strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			value.WriteString(part.Text)
		}
	}
	return TrimCodeFence(value.String()), nil
}

// TrimCodeFence strips a leading ```lang line and a trailing ``` fence.
func TrimCodeFence(in string) string {
	out := strings.TrimSpace(in)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if nl := strings.IndexByte(out, '\n'); nl >= 0 {
		out = out[nl+1:]
	} else {
		out = ""
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// NewTextPart builds a text part.
func NewTextPart(in string) *genai.Part {
	return &genai.Part{Text: in}
}

// NewFileData builds a part referencing a file by URI, typically gs://.
func NewFileData(in string, mimeType string) *genai.Part {
	return &genai.Part{FileData: &genai.FileData{FileURI: in, MIMEType: mimeType}}
}

// UserContent wraps parts into the single user turn every pipeline prompt uses.
func UserContent(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: parts}}
}
