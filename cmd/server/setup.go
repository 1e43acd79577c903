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


// Package main contains the setup and initialization logic for the application's state.
// This file creates the state manager that holds every shared dependency: the
// configuration, the Google Cloud clients, the session registry and the optional
// adapters (BigQuery history, NATS events, Postgres run history, export bucket).
//
// Functions:
//   - SetupOS: Points the configuration loader at the configuration directory and
//     runtime overlay unless the environment already does.
//   - GetConfig: Loads the configuration once and returns the cached value.
//   - InitState: Creates the clients, the analysis pipeline and the session registry,
//     and starts the session sweeper and the Pub/Sub listeners.
//   - CloseState: Releases everything InitState created.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	"github.com/jaycherian/gcp-go-video-insights/internal/messaging/natsevents"
	"github.com/jaycherian/gcp-go-video-insights/internal/resilience"
	"github.com/jaycherian/gcp-go-video-insights/internal/storage/postgres"
	"github.com/jaycherian/gcp-go-video-insights/internal/telemetry"
)

// StateManager holds all the shared dependencies for the application. Fields
// for optional adapters stay nil when the adapter is not configured.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	objects  *services.GCSObjectStore
	registry *pipeline.Registry
	metrics  *telemetry.PipelineMetrics
	analyses *services.AnalysisHistory
	events   *natsevents.Publisher
	db       *sql.DB
	runs     *postgres.RunRepository
	sweeper  *workflow.SweepScheduler
}

// state is a package-level variable that holds the single instance of StateManager.
var state = &StateManager{}

var loadConfig = sync.OnceValues(func() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, err
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	return config, nil
})

// SetupOS sets the environment variables the configuration loader uses to find
// the TOML files. Values already present in the environment win, so a deployment
// can select its own overlay (e.g. GCP_RUNTIME=prod).
func SetupOS() error {
	if _, ok := os.LookupEnv(cloud.EnvConfigFilePrefix); !ok {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if _, ok := os.LookupEnv(cloud.EnvConfigRuntime); !ok {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig provides a singleton instance of the application configuration.
// A configuration that cannot be loaded is fatal.
func GetConfig() *cloud.Config {
	config, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v\n", err)
	}
	state.config = config
	return config
}

// InitState initializes the entire application state.
//
// This function performs the following steps:
//  1. Initializes the Google Cloud clients (Storage, Pub/Sub, GenAI, BigQuery, IAM).
//  2. Builds the analysis pipeline: retriever, transcriber, analysis coordinator
//     and the optional BigQuery persistence step.
//  3. Connects the optional adapters: NATS events, Postgres run history and the
//     export bucket.
//  4. Creates the session registry and starts the idle session sweeper.
//  5. Binds and starts the Pub/Sub listeners for upload notifications.
func InitState(ctx context.Context) (err error) {
	config := GetConfig()
	defer func() {
		if err != nil {
			CloseState(context.Background())
		}
	}()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	executor := resilience.NewExecutor(config.Resilience.ExecutorConfig(),
		resilience.WithRetryHook(func(ctx context.Context, operation string, attempt int, err error) {
			slog.WarnContext(ctx, "retrying operation", "operation", operation, "attempt", attempt, "error", err)
		}))

	workflowCollaborators, err := newCollaborators(config, cloudClients, executor)
	if err != nil {
		return err
	}

	translationModel, err := agentModel(cloudClients, cloud.TranslationModel)
	if err != nil {
		return err
	}
	meter := otel.Meter(cor.MeterName)
	translator, err := services.NewGeminiTranslator(translationModel, executor,
		cloud.NewTokenCounters(meter, "translation"), config.PromptTemplates.TranslationPrompt)
	if err != nil {
		return err
	}

	state.metrics = telemetry.NewPipelineMetrics(config.Application.Name)
	deps := pipeline.Dependencies{
		Workflow:           workflow.NewVideoAnalysisWorkflow(workflowCollaborators),
		Translator:         translator,
		Metrics:            state.metrics,
		TranslationWorkers: config.Pipeline.TranslationWorkers,
		ExportOptions:      export.Options{Locale: config.Export.Locale},
	}

	if config.Storage.ExportBucket != "" {
		deps.Store = &services.ExportStore{
			Store:     state.objects,
			Bucket:    config.Storage.ExportBucket,
			URLExpiry: config.Export.SignedURLTTL(),
		}
	}

	if config.NATS.URL != "" {
		state.events, err = natsevents.Connect(config.NATS.URL, config.NATS.Subject, natsevents.Options{
			ConnectTimeout: time.Duration(config.NATS.ConnectTimeoutSeconds) * time.Second,
			MaxReconnects:  config.NATS.MaxReconnects,
			Executor:       executor,
		})
		if err != nil {
			return err
		}
		deps.Events = state.events
		slog.InfoContext(ctx, "publishing pipeline events", "url", config.NATS.URL)
	}

	if config.Postgres.DSN != "" {
		if state.db, err = postgres.OpenDB(config.Postgres.DSN, config.Postgres.MaxOpenConns); err != nil {
			return err
		}
		state.runs = postgres.NewRunRepository(state.db)
		if err = state.runs.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Recorder = state.runs
		slog.InfoContext(ctx, "recording run history in postgres")
	}

	state.registry = pipeline.NewRegistry(deps)

	state.sweeper, err = workflow.NewSweepScheduler(config.Pipeline.SweepSchedule, &workflow.SessionSweepJob{
		Sweeper: state.registry,
		TTL:     config.Pipeline.SessionTTL(),
	})
	if err != nil {
		return fmt.Errorf("session sweeper: %w", err)
	}
	state.sweeper.Start()

	// Configure and start the Pub/Sub listeners that react to GCS bucket events.
	SetupListeners(ctx, cloudClients, state.registry)
	return nil
}

// newCollaborators builds the stage implementations of the analysis workflow.
func newCollaborators(config *cloud.Config, cloudClients *cloud.ServiceClients, executor *resilience.Executor) (workflow.Collaborators, error) {
	meter := otel.Meter(cor.MeterName)

	analysisModel, err := agentModel(cloudClients, cloud.AnalysisModel)
	if err != nil {
		return workflow.Collaborators{}, err
	}
	coordinator, err := analysis.NewCoordinator(
		services.NewGeminiTextGenerator(analysisModel, executor, cloud.NewTokenCounters(meter, "analysis")),
		analysis.NewScorer(analysis.DefaultLexicon()),
		analysis.Prompts{
			System: config.PromptTemplates.SystemInstructions,
			User:   config.PromptTemplates.AnalysisPrompt,
		})
	if err != nil {
		return workflow.Collaborators{}, err
	}

	transcriptionModel, err := agentModel(cloudClients, cloud.TranscriptionModel)
	if err != nil {
		return workflow.Collaborators{}, err
	}

	state.objects = &services.GCSObjectStore{
		StorageClient: cloudClients.StorageClient,
		IAMClient:     cloudClients.IAMClient,
		SignerEmail:   config.Application.SignerServiceAccountEmail,
	}

	c := workflow.Collaborators{
		Retriever: &services.GCSRetriever{
			Store:        state.objects,
			HTTPClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Inspector:    services.FFmpegInspector{CommandPath: config.Pipeline.InspectorPath},
			UploadBucket: config.Storage.UploadBucket,
			MaxBytes:     config.Pipeline.MaxDownloadBytes,
		},
		Transcriber: services.NewGeminiTranscriber(transcriptionModel, executor,
			cloud.NewTokenCounters(meter, "transcription"), config.PromptTemplates.TranscriptionPrompt),
		Analyzer:             coordinator,
		RetrievalTimeout:     config.Pipeline.RetrievalTimeout(),
		TranscriptionTimeout: config.Pipeline.TranscriptionTimeout(),
	}

	if ds := config.BigQueryDataSource; ds.DatasetName != "" && ds.AnalysisTable != "" {
		c.Inserter = cloudClients.BiqQueryClient.Dataset(ds.DatasetName).Table(ds.AnalysisTable).Inserter()
		state.analyses = &services.AnalysisHistory{
			BigqueryClient: cloudClients.BiqQueryClient,
			DatasetName:    ds.DatasetName,
			AnalysisTable:  ds.AnalysisTable,
		}
	}
	return c, nil
}

// agentModel returns the named model, falling back to the analysis model so a
// single [agent_models.analysis] entry is a working configuration.
func agentModel(cloudClients *cloud.ServiceClients, name string) (*cloud.QuotaAwareGenerativeAIModel, error) {
	m, err := cloudClients.AgentModel(name)
	if err == nil || name == cloud.AnalysisModel {
		return m, err
	}
	slog.Warn("agent model not configured, using the analysis model", "name", name)
	return cloudClients.AgentModel(cloud.AnalysisModel)
}

// CloseState stops the sweeper and releases connections in reverse order of creation.
func CloseState(ctx context.Context) {
	if state.sweeper != nil {
		state.sweeper.Stop(ctx)
	}
	if state.db != nil {
		if err := state.db.Close(); err != nil {
			slog.Error("failed to close postgres", "error", err)
		}
	}
	if state.events != nil {
		state.events.Close()
	}
	if state.cloud != nil {
		state.cloud.Close()
	}
}
