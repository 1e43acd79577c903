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

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Dashboard registers the read-only routes: registry statistics and the
// analyses persisted to BigQuery.
func (h *Handlers) Dashboard(r *gin.RouterGroup) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, h.Registry.Stats())
		})
	}

	analyses := r.Group("/analyses")
	{
		// GET /analyses?session=<id>&limit=<n>
		analyses.GET("", func(c *gin.Context) {
			if !h.hasAnalyses(c) {
				return
			}
			rows, err := h.Analyses.Recent(c.Request.Context(), c.Query("session"), limitParam(c))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, rows)
		})

		analyses.GET("/:id", func(c *gin.Context) {
			if !h.hasAnalyses(c) {
				return
			}
			row, err := h.Analyses.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, row)
		})
	}
}

func (h *Handlers) hasAnalyses(c *gin.Context) bool {
	if h.Analyses == nil {
		respondError(c, fmt.Errorf("%w: analysis history is not configured", model.ErrNotFound))
		return false
	}
	return true
}
