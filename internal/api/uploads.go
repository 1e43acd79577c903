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
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// sniffLen is the number of leading bytes filetype needs to detect a format.
const sniffLen = 262

type uploadResponse struct {
	References []string `json:"references"`
}

// FileUpload registers POST /uploads. Each file of the "files" field is
// stored in the upload bucket under uploads/<uuid>/<file name>; the storage
// notification for the new object starts its analysis.
func (h *Handlers) FileUpload(r *gin.RouterGroup) {
	upload := r.Group("/uploads")
	{
		upload.POST("", h.uploadFiles)
	}
}

// uploadFiles stops at the first file that cannot be stored. Files stored
// before it stay in the bucket.
func (h *Handlers) uploadFiles(c *gin.Context) {
	if h.Uploads == nil || h.UploadBucket == "" {
		respondError(c, fmt.Errorf("%w: uploads are not configured", model.ErrNotFound))
		return
	}
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respondError(c, fmt.Errorf("%w: no files in field \"files\"", model.ErrInvalidInput))
		return
	}

	refs := make([]string, 0, len(files))
	for _, file := range files {
		ref, err := h.store(c, file)
		if err != nil {
			respondError(c, err)
			return
		}
		refs = append(refs, ref.String())
	}
	c.JSON(http.StatusCreated, uploadResponse{References: refs})
}

// store sniffs the file's type, rejects anything that is not a video and
// streams it to the upload bucket.
//
// Inputs:
//   - c: The request; its context bounds the upload.
//   - file: One part of the multipart form.
//
// Outputs:
//   - model.SourceReference: The stored object.
//   - error: ErrInvalidInput for unreadable or non-video files.
func (h *Handlers) store(c *gin.Context, file *multipart.FileHeader) (model.SourceReference, error) {
	src, err := file.Open()
	if err != nil {
		return model.SourceReference{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return model.SourceReference{}, fmt.Errorf("read upload %s: %w", file.Filename, err)
	}
	head = head[:n]
	kind, _ := filetype.Match(head)
	if !filetype.IsVideo(head) {
		return model.SourceReference{}, fmt.Errorf("%w: %s is not a video", model.ErrInvalidInput, file.Filename)
	}

	ref := model.SourceReference{
		Bucket: h.UploadBucket,
		Object: "uploads/" + uuid.NewString() + "/" + cleanFileName(file.Filename, kind.Extension),
	}
	body := io.MultiReader(bytes.NewReader(head), src)
	if err := h.Uploads.Upload(c.Request.Context(), ref.Bucket, ref.Object, kind.MIME.Value, body); err != nil {
		return model.SourceReference{}, fmt.Errorf("upload %s: %w", file.Filename, err)
	}
	return ref, nil
}

// cleanFileName keeps the base name of a client supplied file name and
// falls back to video.<ext>.
func cleanFileName(name, ext string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "video." + ext
	}
	return name
}
