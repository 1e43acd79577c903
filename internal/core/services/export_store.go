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
// Cloud. This file publishes export reports: the artifact is written to
// <ExportPrefix><session>/<file name> in the export bucket and handed back as
// a time limited signed URL.
package services

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
)

// ExportPrefix is the object prefix of every published report.
const ExportPrefix = "exports/"

// ExportStore publishes rendered reports to the export bucket.
type ExportStore struct {
	Store     ObjectStore
	Bucket    string
	URLExpiry time.Duration // Lifetime of the signed URL; 15 minutes when unset.
}

// Save uploads the artifact under the session's prefix and returns a signed URL.
func (s *ExportStore) Save(ctx context.Context, sessionID string, artifact *export.Artifact) (string, error) {
	if s.Bucket == "" {
		return "", errors.New("no export bucket configured")
	}
	object := ExportPrefix + sessionID + "/" + artifact.FileName
	if err := s.Store.Upload(ctx, s.Bucket, object, artifact.ContentType, bytes.NewReader(artifact.Data)); err != nil {
		return "", err
	}
	expiry := s.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return s.Store.SignedURL(ctx, s.Bucket, object, expiry)
}
