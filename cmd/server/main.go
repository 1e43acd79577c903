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

// *****************************************************************************************************//
// Package main is the entry point for the video insights server.
//
// The server accepts ad video references over a REST API (or through Cloud Storage
// upload notifications), runs each one through retrieval, transcription and
// marketing analysis, and serves translated and exported reports of the results.
// It is instrumented with OpenTelemetry for tracing and Cloud Monitoring metrics,
// and exposes Prometheus metrics for the pipeline itself on /metrics.
//
// Functions:
//   - main: Loads the configuration, sets up logging and telemetry, initializes the
//     application state, serves the API and handles graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/api"
	"github.com/jaycherian/gcp-go-video-insights/internal/telemetry"
)

func main() {
	// Load application configuration from TOML files before logging so the
	// configured level applies from the start.
	config := GetConfig()
	telemetry.SetupLogging(config.Application.LogLevel)
	slog.Info("Logging initialized", "level", config.Application.LogLevel)

	// Create a new context that can be cancelled. This is the root context for the application.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry for distributed tracing and metrics.
	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	// Initialize the application's state, including all necessary service clients.
	if err := InitState(ctx); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		log.Fatal(err)
	}
	slog.Info("Initialized State")

	if config.Application.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := api.Handlers{
		Registry:       state.registry,
		Uploads:        state.objects,
		UploadBucket:   config.Storage.UploadBucket,
		MaxUploadBytes: config.Pipeline.MaxDownloadBytes,
	}
	// Optional readers stay nil interfaces when their store is not configured.
	if state.analyses != nil {
		handlers.Analyses = state.analyses
	}
	if state.runs != nil {
		handlers.Runs = state.runs
	}
	r := api.NewRouter(&handlers, api.Options{
		ServiceName:    config.Application.Name,
		Metrics:        state.metrics,
		MetricsHandler: state.metrics.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + config.Application.HTTPPort,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	// Start the HTTP server in a separate goroutine so it doesn't block the main thread.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server ready", "port", config.Application.HTTPPort)

	// Block until an interrupt or termination signal is received.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// Give active requests 5 seconds to complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	// Stop the listeners before releasing the clients they use.
	cancel()
	CloseState(shutdownCtx)
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry shutdown failed", "error", err)
	}

	log.Println("Server exiting")
}
