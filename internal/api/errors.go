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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// StatusFor maps an error kind to the HTTP status returned to clients.
//
// Inputs:
//   - err: Any error; the kind is found with model.IsKind.
//
// Outputs:
//   - int: 400 for bad input, 404 for unknown resources, 409 for busy or
//     out of order requests, 503 for temporary failures, 502 for failures of
//     the video, speech, model, translation or export backends and 500 for
//     anything else.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case model.IsKind(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case model.IsKind(err, model.ErrNotFound):
		return http.StatusNotFound
	case model.IsKind(err, model.ErrBusy), model.IsKind(err, model.ErrInvalidState):
		return http.StatusConflict
	case model.IsKind(err, model.ErrTemporary):
		return http.StatusServiceUnavailable
	case model.IsKind(err, model.ErrExtraction),
		model.IsKind(err, model.ErrTranscription),
		model.IsKind(err, model.ErrBackend),
		model.IsKind(err, model.ErrTranslation),
		model.IsKind(err, model.ErrExport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// respondError aborts the request with the mapped status and a user facing
// message. Server side failures are also logged.
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: model.UserMessage(err), RequestID: RequestIDFrom(c)})
}
