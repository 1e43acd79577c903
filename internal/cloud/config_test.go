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

package cloud

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverlaysRuntimeFile(t *testing.T) {
	dir := t.TempDir()
	base := `
[application]
name = "video-insights"
google_project_id = "demo-project"
location = "us-central1"

[pipeline]
session_ttl_minutes = 30

[agent_models.analysis]
model = "gemini-2.0-flash"
rate_limit = 2
`
	overlay := `
[application]
log_level = "debug"

[storage]
export_bucket = "exports"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local.toml"), []byte(overlay), 0o600))
	t.Setenv(EnvConfigFilePrefix, dir)
	t.Setenv(EnvConfigRuntime, "local")

	config := NewConfig()
	require.NoError(t, LoadConfig(config))

	assert.Equal(t, "demo-project", config.Application.GoogleProjectId)
	assert.Equal(t, "debug", config.Application.LogLevel)
	assert.Equal(t, "8080", config.Application.HTTPPort)
	assert.Equal(t, "exports", config.Storage.ExportBucket)
	assert.Equal(t, 30*time.Minute, config.Pipeline.SessionTTL())
	assert.Equal(t, 120*time.Second, config.Pipeline.RetrievalTimeout())
	assert.Equal(t, "gemini-2.0-flash", config.AgentModels[AnalysisModel].Model)
	assert.Equal(t, 15*time.Minute, config.Export.SignedURLTTL())
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[application\nname="), 0o600))
	t.Setenv(EnvConfigFilePrefix, dir)
	t.Setenv(EnvConfigRuntime, "test")

	assert.Error(t, LoadConfig(NewConfig()))
}

func TestResilienceExecutorConfig(t *testing.T) {
	r := Resilience{RetryMaxAttempts: 4, RetryInitialBackoffMillis: 250, BreakerOpenTimeoutSeconds: 10}
	cfg := r.ExecutorConfig()

	assert.Equal(t, 4, cfg.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.BreakerOpenTimeout)
}
