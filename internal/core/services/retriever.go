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

// Package services binds the pipeline's collaborator interfaces to Google
// Cloud. This file defines the video retriever.
//
// Logic Flow:
//  1. A temporary file is created for the video and removed when Retrieve
//     returns.
//  2. **Uploads** (gs:// references) are checked against the size limit,
//     downloaded and described from their object attributes. The object
//     itself is what the transcriber reads.
//  3. **Remote URLs** are downloaded with a size cap, sniffed to make sure
//     they are videos and copied to the upload bucket under RemotePrefix.
//     The platform (YouTube, TikTok, ...) is derived from the host.
//  4. ffprobe fills in duration and resolution. A failure here only leaves
//     those fields empty.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// RemotePrefix is where downloaded remote videos are stored in the upload bucket.
const RemotePrefix = "remote/"

const (
	tempFilePrefix = "video-insights-"
	sniffLength    = 262

	// OriginalNameMetadataKey is the object metadata key holding the name
	// the user uploaded the file under.
	OriginalNameMetadataKey = "original-name"
)

// platformHosts maps host suffixes to the platform name shown in reports.
var platformHosts = map[string]string{
	"tiktok.com":    "tiktok",
	"instagram.com": "instagram",
	"facebook.com":  "facebook",
	"fb.watch":      "facebook",
	"youtube.com":   "youtube",
	"youtu.be":      "youtube",
	"x.com":         "x",
	"twitter.com":   "x",
}

// GCSRetriever resolves a source reference into a video stored in Cloud
// Storage. Uploaded objects are used in place; remote files are downloaded
// and copied into the upload bucket so the transcription model can read them.
type GCSRetriever struct {
	Store        ObjectStore
	HTTPClient   *http.Client // Used for remote URLs; http.DefaultClient when nil.
	Inspector    Inspector    // Optional.
	UploadBucket string       // Destination of downloaded remote videos.
	MaxBytes     int64        // Size cap for both sources; 0 means no cap.
}

// Retrieve resolves ref into video metadata.
//
// Inputs:
//   - ctx: Bounds the download and the upload.
//   - ref: An uploaded object or a remote URL.
//
// Outputs:
//   - *model.VideoMetadata: StorageKey points at the object the transcriber reads.
//   - error: ErrInvalidInput for oversized or non-video sources; storage and
//     network errors otherwise.
func (r *GCSRetriever) Retrieve(ctx context.Context, ref model.SourceReference) (*model.VideoMetadata, error) {
	tempFile, err := os.CreateTemp("", tempFilePrefix)
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
		if err := os.Remove(tempFile.Name()); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to remove temporary file", "file", tempFile.Name(), "error", err)
		}
	}()

	var video *model.VideoMetadata
	if ref.IsUpload() {
		video, err = r.fromUpload(ctx, ref, tempFile)
	} else {
		video, err = r.fromURL(ctx, ref, tempFile)
	}
	if err != nil {
		return nil, err
	}
	r.inspect(ctx, tempFile.Name(), video)
	return video, nil
}

func (r *GCSRetriever) fromUpload(ctx context.Context, ref model.SourceReference, file *os.File) (*model.VideoMetadata, error) {
	info, err := r.Store.Attrs(ctx, ref.Bucket, ref.Object)
	if err != nil {
		return nil, err
	}
	if r.MaxBytes > 0 && info.Size > r.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, the limit is %d", model.ErrInvalidInput, ref, info.Size, r.MaxBytes)
	}
	written, err := r.Store.Download(ctx, ref.Bucket, ref.Object, file)
	if err != nil {
		return nil, err
	}

	name := info.Metadata[OriginalNameMetadataKey]
	if name == "" {
		name = path.Base(ref.Object)
	}
	mimeType := info.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = VideoMIMEType(ref.Object)
	}
	return &model.VideoMetadata{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref.String())).String(),
		URL:          ref.String(),
		ByteSize:     written,
		OriginalName: name,
		StorageKey:   ref.String(),
		MIMEType:     mimeType,
	}, nil
}

func (r *GCSRetriever) fromURL(ctx context.Context, ref model.SourceReference, file *os.File) (*model.VideoMetadata, error) {
	if r.UploadBucket == "" {
		return nil, errors.New("no upload bucket configured for remote videos")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %s", ref.URL, resp.Status)
	}

	// Reading one byte past the cap tells an exact fit from an oversized body.
	body := io.Reader(resp.Body)
	if r.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxBytes+1)
	}
	written, err := io.Copy(file, body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.URL, err)
	}
	if r.MaxBytes > 0 && written > r.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", model.ErrInvalidInput, ref.URL, r.MaxBytes)
	}

	head := make([]byte, sniffLength)
	n, _ := file.ReadAt(head, 0)
	kind, _ := filetype.Match(head[:n])
	if !filetype.IsVideo(head[:n]) {
		return nil, fmt.Errorf("%w: %s does not point at a video file (detected %q)", model.ErrInvalidInput, ref.URL, kind.MIME.Value)
	}

	id := uuid.NewString()
	object := RemotePrefix + id + "." + kind.Extension
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := r.Store.Upload(ctx, r.UploadBucket, object, kind.MIME.Value, file); err != nil {
		return nil, err
	}

	u, _ := url.Parse(ref.URL)
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Host
	}
	return &model.VideoMetadata{
		ID:           id,
		URL:          ref.URL,
		ByteSize:     written,
		OriginalName: name,
		StorageKey:   model.SourceReference{Bucket: r.UploadBucket, Object: object}.String(),
		MIMEType:     kind.MIME.Value,
		Source: &model.SourceMetadata{
			Platform:    DetectPlatform(u.Host),
			OriginalURL: ref.URL,
		},
	}, nil
}

// inspect adds duration and pixel format. It is best effort.
func (r *GCSRetriever) inspect(ctx context.Context, file string, video *model.VideoMetadata) {
	if r.Inspector == nil {
		return
	}
	result, err := r.Inspector.Inspect(ctx, file)
	if err != nil {
		slog.WarnContext(ctx, "could not inspect video", "video_id", video.ID, "error", err)
		return
	}
	video.DurationSeconds = result.DurationSeconds
	video.PixelFormat = model.FormatPixels(result.Width, result.Height)
}

// DetectPlatform names the social platform a host belongs to, or "".
func DetectPlatform(host string) string {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for suffix, platform := range platformHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return platform
		}
	}
	return ""
}
