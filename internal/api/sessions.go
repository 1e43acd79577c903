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


package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

type submitRequest struct {
	SourceReference string `json:"sourceReference" binding:"required"`
}

type translateRequest struct {
	Languages []string `json:"languages" binding:"required"`
	Refresh   bool     `json:"refresh"`
}

type translateResponse struct {
	Translations map[model.LanguageCode]string `json:"translations"`
	Error        string                        `json:"error,omitempty"`
}

// SessionRouter registers the /sessions routes.
//
// Inputs:
//   - r: The /api/v1 group.
func (h *Handlers) SessionRouter(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.POST("/:id/runs", h.submitRun)
		sessions.DELETE("/:id/run", h.resetRun)
		sessions.POST("/:id/translations", h.translate)
		sessions.GET("/:id/export", h.exportRun)
		sessions.GET("/:id/history", h.sessionHistory)
	}
}

func (h *Handlers) createSession(c *gin.Context) {
	m := h.Registry.Create()
	c.JSON(http.StatusCreated, gin.H{"id": m.SessionID()})
}

// machine resolves the :id parameter, answering 404 for an unknown session.
func (h *Handlers) machine(c *gin.Context) (*pipeline.Machine, bool) {
	m, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return m, true
}

func (h *Handlers) getSession(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.Snapshot())
}

// submitRun accepts a client chosen session id so a caller can retry a
// submission without first creating the session.
func (h *Handlers) submitRun(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	ref, err := model.ParseSourceReference(req.SourceReference)
	if err != nil {
		respondError(c, err)
		return
	}
	m, err := h.Registry.GetOrCreate(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	run, err := m.Submit(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/sessions/"+m.SessionID())
	c.JSON(http.StatusAccepted, run)
}

func (h *Handlers) resetRun(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	run, err := m.Reset(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// translate handles one or more languages. A single language honors
// Refresh; several languages are translated concurrently and the response
// carries the successful ones plus the joined error of the rest.
func (h *Handlers) translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	if len(req.Languages) == 0 {
		respondError(c, fmt.Errorf("%w: no languages requested", model.ErrInvalidInput))
		return
	}
	codes := make([]model.LanguageCode, 0, len(req.Languages))
	for _, in := range req.Languages {
		code, err := model.ParseLanguageCode(in)
		if err != nil {
			respondError(c, err)
			return
		}
		codes = append(codes, code)
	}
	m, ok := h.machine(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if len(codes) == 1 {
		translate := m.Translate
		if req.Refresh {
			translate = m.Retranslate
		}
		text, err := translate(ctx, codes[0])
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, translateResponse{Translations: map[model.LanguageCode]string{codes[0]: text}})
		return
	}

	results, err := m.TranslateMany(ctx, codes)
	if err != nil && len(results) == 0 {
		respondError(c, err)
		return
	}
	resp := translateResponse{Translations: results}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// exportRun returns the report inline, or its URL when an artifact store
// published it.
func (h *Handlers) exportRun(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}
	m, ok := h.machine(c)
	if !ok {
		return
	}
	artifact, err := m.Export(c.Request.Context(), format)
	if err != nil {
		respondError(c, err)
		return
	}
	if artifact.URL != "" {
		c.JSON(http.StatusOK, artifact)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, artifact.FileName))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

func (h *Handlers) sessionHistory(c *gin.Context) {
	if h.Runs == nil {
		respondError(c, fmt.Errorf("%w: run history is not configured", model.ErrNotFound))
		return
	}
	runs, err := h.Runs.ListBySession(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// limitParam reads ?limit, falling back to the default on a bad value.
func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultHistoryLimit)))
	if err != nil {
		limit = services.DefaultHistoryLimit
	}
	return services.ClampLimit(limit)
}
