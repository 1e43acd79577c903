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


package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
)

func TestSetupOSDefaults(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")
	os.Unsetenv(cloud.EnvConfigFilePrefix)
	os.Unsetenv(cloud.EnvConfigRuntime)

	assert.NoError(t, SetupOS())
	assert.Equal(t, "configs", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "local", os.Getenv(cloud.EnvConfigRuntime))
}

func TestSetupOSKeepsEnvironment(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "/etc/video-insights")
	t.Setenv(cloud.EnvConfigRuntime, "prod")

	assert.NoError(t, SetupOS())
	assert.Equal(t, "/etc/video-insights", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "prod", os.Getenv(cloud.EnvConfigRuntime))
}

func TestAgentModelFallsBackToAnalysisModel(t *testing.T) {
	analysisModel := &cloud.QuotaAwareGenerativeAIModel{}
	clients := &cloud.ServiceClients{AgentModels: map[string]*cloud.QuotaAwareGenerativeAIModel{
		cloud.AnalysisModel: analysisModel,
	}}

	m, err := agentModel(clients, cloud.TranslationModel)
	assert.NoError(t, err)
	assert.Same(t, analysisModel, m)

	_, err = agentModel(&cloud.ServiceClients{}, cloud.AnalysisModel)
	assert.Error(t, err)
}
