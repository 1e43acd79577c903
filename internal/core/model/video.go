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

// Package model defines the records that flow through an analysis run: the
// source reference a user submits, the video metadata produced by retrieval,
// the transcript, the structured analysis and the run itself.
//
// Records are plain JSON-serializable structs. Values stored on a PipelineRun
// are written once per run; the only exception is Transcript.Translations.
package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const gcsScheme = "gs://"

// SourceReference identifies the video a run analyzes. Exactly one of URL or
// the Bucket/Object pair is set.
type SourceReference struct {
	URL    string `json:"url,omitempty"`    // Remote video page or file URL.
	Bucket string `json:"bucket,omitempty"` // Upload bucket for directly uploaded files.
	Object string `json:"object,omitempty"` // Object name inside Bucket.
}

// ParseSourceReference accepts either a gs://bucket/object handle for an
// uploaded file or an absolute http(s) URL.
func ParseSourceReference(in string) (SourceReference, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return SourceReference{}, fmt.Errorf("%w: empty source reference", ErrInvalidInput)
	}
	if strings.HasPrefix(in, gcsScheme) {
		parts := strings.SplitN(strings.TrimPrefix(in, gcsScheme), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return SourceReference{}, fmt.Errorf("%w: malformed storage handle %q", ErrInvalidInput, in)
		}
		return SourceReference{Bucket: parts[0], Object: parts[1]}, nil
	}
	u, err := url.Parse(in)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return SourceReference{}, fmt.Errorf("%w: unsupported source reference %q", ErrInvalidInput, in)
	}
	return SourceReference{URL: u.String()}, nil
}

// IsUpload reports whether the reference points at an uploaded object.
func (r SourceReference) IsUpload() bool {
	return r.Object != ""
}

// IsZero reports whether nothing was set.
func (r SourceReference) IsZero() bool {
	return r.URL == "" && r.Object == ""
}

// String renders an upload as gs://bucket/object and a URL as itself.
func (r SourceReference) String() string {
	if r.IsUpload() {
		return gcsScheme + r.Bucket + "/" + r.Object
	}
	return r.URL
}

// VideoMetadata is produced by retrieval and passed through to analysis and
// export untouched.
type VideoMetadata struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	PixelFormat     string          `json:"pixelFormat,omitempty"` // width x height, e.g. "1080x1920"
	ByteSize        int64           `json:"byteSize,omitempty"`
	OriginalName    string          `json:"originalName,omitempty"`
	StorageKey      string          `json:"storageKey,omitempty"`
	MIMEType        string          `json:"mimeType,omitempty"`
	Source          *SourceMetadata `json:"source,omitempty"`
}

// SourceMetadata carries the optional details a social platform exposes about
// a post. Every field may be absent.
type SourceMetadata struct {
	Title         string     `json:"title,omitempty"`
	PageName      string     `json:"pageName,omitempty"`
	FollowerCount *int64     `json:"followerCount,omitempty"`
	LikeCount     *int64     `json:"likeCount,omitempty"`
	Category      string     `json:"category,omitempty"`
	Description   string     `json:"description,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	OriginalURL   string     `json:"originalUrl,omitempty"`
	Location      string     `json:"location,omitempty"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
}

// FormatPixels renders a pixel format the way VideoMetadata stores it.
func FormatPixels(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", width, height)
}

// Clone returns a deep copy.
func (v *VideoMetadata) Clone() *VideoMetadata {
	if v == nil {
		return nil
	}
	out := *v
	if v.Source != nil {
		src := *v.Source
		if v.Source.FollowerCount != nil {
			n := *v.Source.FollowerCount
			src.FollowerCount = &n
		}
		if v.Source.LikeCount != nil {
			n := *v.Source.LikeCount
			src.LikeCount = &n
		}
		if v.Source.PublishedAt != nil {
			t := *v.Source.PublishedAt
			src.PublishedAt = &t
		}
		out.Source = &src
	}
	return &out
}
