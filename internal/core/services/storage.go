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

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// ObjectInfo is the subset of object attributes the services use.
type ObjectInfo struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
	Metadata    map[string]string
}

// ObjectStore reads and writes objects.
type ObjectStore interface {
	Attrs(ctx context.Context, bucket, object string) (*ObjectInfo, error)
	Download(ctx context.Context, bucket, object string, w io.Writer) (int64, error)
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error
	SignedURL(ctx context.Context, bucket, object string, expires time.Duration) (string, error)
}

// GCSObjectStore is the Cloud Storage ObjectStore. URLs are signed through
// the IAM credentials API as SignerEmail, so no key file is needed.
type GCSObjectStore struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	SignerEmail   string
}

func (s *GCSObjectStore) Attrs(ctx context.Context, bucket, object string) (*ObjectInfo, error) {
	attrs, err := s.StorageClient.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", model.ErrNotFound, bucket, object)
	}
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Bucket:      attrs.Bucket,
		Name:        attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Metadata:    attrs.Metadata,
	}, nil
}

func (s *GCSObjectStore) Download(ctx context.Context, bucket, object string, w io.Writer) (int64, error) {
	reader, err := s.StorageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create GCS reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close GCS reader", "bucket", bucket, "object", object, "error", err)
		}
	}()
	return io.Copy(w, reader)
}

func (s *GCSObjectStore) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	writer := s.StorageClient.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, object, err)
	}
	return writer.Close()
}

// SignedURL creates a V4 GET URL valid for expires.
func (s *GCSObjectStore) SignedURL(ctx context.Context, bucket, object string, expires time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.StorageClient.Bucket(bucket).SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", bucket, object, err)
	}
	return u, nil
}
