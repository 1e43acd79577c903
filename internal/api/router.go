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


// Package api exposes the analysis sessions, uploads and history over HTTP
// with gin. Every route lives under /api/v1; /metrics and /healthz sit at
// the root.
//
// Routes:
//   - POST   /api/v1/sessions                      create a session
//   - GET    /api/v1/sessions/:id                  current run of a session
//   - POST   /api/v1/sessions/:id/runs             submit a source reference
//   - DELETE /api/v1/sessions/:id/run              reset the session
//   - POST   /api/v1/sessions/:id/translations     translate the transcript
//   - GET    /api/v1/sessions/:id/export           download or publish a report
//   - GET    /api/v1/sessions/:id/history          finished runs of a session
//   - POST   /api/v1/uploads                       store videos in the upload bucket
//   - GET    /api/v1/stats                         registry statistics
//   - GET    /api/v1/analyses[/:id]                persisted analyses
//
// Errors are answered as {"error": ..., "requestId": ...} with the status
// chosen by StatusFor.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/storage/postgres"
)

// AnalysisReader reads analyses persisted by finished runs.
type AnalysisReader interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]*model.AnalysisRow, error)
	Get(ctx context.Context, runID string) (*model.AnalysisRow, error)
}

// RunHistory lists the finished runs of a session.
type RunHistory interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]postgres.StoredRun, error)
}

// Uploader stores uploaded files in a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// Handlers holds the collaborators of the HTTP routes. Analyses, Runs and
// Uploads are optional; their routes answer 404 when unset.
type Handlers struct {
	Registry       *pipeline.Registry // Sessions and their machines; required.
	Uploads        Uploader           // Writes uploaded videos.
	UploadBucket   string             // Bucket the uploads go to.
	MaxUploadBytes int64              // Request body cap for uploads; 0 means no cap.
	Analyses       AnalysisReader     // BigQuery history.
	Runs           RunHistory         // Postgres run history.
}

// Options configure the router's middleware.
type Options struct {
	ServiceName    string          // Name of the otelgin server spans.
	AllowedOrigins []string        // empty allows every origin
	Metrics        RequestRecorder // Optional request counter.
	MetricsHandler http.Handler    // Served on /metrics when set.
}

// NewRouter builds the gin engine with the middleware stack and every route.
//
// Inputs:
//   - h: The route collaborators.
//   - opts: Middleware options.
//
// Outputs:
//   - *gin.Engine: Ready to be served by an http.Server.
//
// Middleware order: recovery, tracing, request id, access log, request
// metrics, CORS. The request id is therefore available to the access log
// and to error responses.
func NewRouter(h *Handlers, opts Options) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "video-insights"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))
	r.Use(RequestID())
	r.Use(AccessLog())
	if opts.Metrics != nil {
		r.Use(RequestMetrics(opts.Metrics))
	}
	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	apiV1 := r.Group("/api/v1")
	{
		h.SessionRouter(apiV1)
		h.FileUpload(apiV1)
		h.Dashboard(apiV1)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	config := cors.DefaultConfig()
	config.AllowOrigins = origins
	config.AllowHeaders = append(config.AllowHeaders, requestIDHeader)
	config.ExposeHeaders = []string{requestIDHeader, "Content-Disposition"}
	return cors.New(config)
}
