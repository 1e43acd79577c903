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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/export"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// mp4Header is the start of an ISO base media file, enough for type sniffing.
var mp4Header = append([]byte("\x00\x00\x00\x20ftypisom\x00\x00\x02\x00isomiso2avc1mp41"), bytes.Repeat([]byte{0}, 64)...)

type memoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	metadata map[string]map[string]string
	failPut  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}, metadata: map[string]map[string]string{}}
}

func (s *memoryStore) Attrs(_ context.Context, bucket, object string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucket + "/" + object
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: gs://%s", model.ErrNotFound, key)
	}
	return &ObjectInfo{Bucket: bucket, Name: object, ContentType: s.types[key], Size: int64(len(data)), Metadata: s.metadata[key]}, nil
}

func (s *memoryStore) Download(_ context.Context, bucket, object string, w io.Writer) (int64, error) {
	s.mu.Lock()
	data := s.objects[bucket+"/"+object]
	s.mu.Unlock()
	n, err := w.Write(data)
	return int64(n), err
}

func (s *memoryStore) Upload(_ context.Context, bucket, object, contentType string, r io.Reader) error {
	if s.failPut != nil {
		return s.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+object] = data
	s.types[bucket+"/"+object] = contentType
	return nil
}

func (s *memoryStore) SignedURL(_ context.Context, bucket, object string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example.com/%s/%s?ttl=%s", bucket, object, expires), nil
}

type fixedInspector struct {
	result *StreamInfo
	err    error
	file   string
}

func (p *fixedInspector) Inspect(_ context.Context, file string) (*StreamInfo, error) {
	p.file = file
	return p.result, p.err
}

func TestRetrieveUpload(t *testing.T) {
	store := newMemoryStore()
	store.objects["uploads/u/123.mp4"] = mp4Header
	store.types["uploads/u/123.mp4"] = "video/mp4"
	store.metadata["uploads/u/123.mp4"] = map[string]string{OriginalNameMetadataKey: "Spring Ad.mp4"}
	inspector := &fixedInspector{result: &StreamInfo{DurationSeconds: 31.5, Width: 1080, Height: 1920}}
	r := &GCSRetriever{Store: store, Inspector: inspector, UploadBucket: "uploads"}

	video, err := r.Retrieve(context.Background(), model.SourceReference{Bucket: "uploads", Object: "u/123.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "gs://uploads/u/123.mp4", video.StorageKey)
	assert.Equal(t, "Spring Ad.mp4", video.OriginalName)
	assert.Equal(t, int64(len(mp4Header)), video.ByteSize)
	assert.Equal(t, "video/mp4", video.MIMEType)
	assert.Equal(t, 31.5, video.DurationSeconds)
	assert.Equal(t, "1080x1920", video.PixelFormat)
	assert.NotEmpty(t, video.ID)
	assert.NotEmpty(t, inspector.file)
}

func TestRetrieveUploadMissingObject(t *testing.T) {
	r := &GCSRetriever{Store: newMemoryStore()}
	_, err := r.Retrieve(context.Background(), model.SourceReference{Bucket: "uploads", Object: "gone.mp4"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRetrieveUploadTooLarge(t *testing.T) {
	store := newMemoryStore()
	store.objects["uploads/big.mp4"] = mp4Header
	r := &GCSRetriever{Store: store, MaxBytes: 10}
	_, err := r.Retrieve(context.Background(), model.SourceReference{Bucket: "uploads", Object: "big.mp4"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRetrieveRemoteVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mp4Header)
	}))
	defer server.Close()

	store := newMemoryStore()
	inspector := &fixedInspector{err: errors.New("ffprobe missing")}
	r := &GCSRetriever{Store: store, HTTPClient: server.Client(), Inspector: inspector, UploadBucket: "uploads"}

	video, err := r.Retrieve(context.Background(), model.SourceReference{URL: server.URL + "/clips/launch.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "launch.mp4", video.OriginalName)
	assert.Equal(t, "video/mp4", video.MIMEType)
	assert.True(t, strings.HasPrefix(video.StorageKey, "gs://uploads/remote/"), video.StorageKey)
	assert.True(t, strings.HasSuffix(video.StorageKey, ".mp4"), video.StorageKey)
	assert.Zero(t, video.DurationSeconds, "inspection failures are not fatal")
	require.NotNil(t, video.Source)
	assert.Equal(t, server.URL+"/clips/launch.mp4", video.Source.OriginalURL)

	object := strings.TrimPrefix(video.StorageKey, "gs://uploads/")
	assert.Equal(t, mp4Header, store.objects["uploads/"+object])
	assert.Equal(t, "video/mp4", store.types["uploads/"+object])
}

func TestRetrieveRemoteRejectsNonVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>a social media page</body></html>"))
	}))
	defer server.Close()

	r := &GCSRetriever{Store: newMemoryStore(), HTTPClient: server.Client(), UploadBucket: "uploads"}
	_, err := r.Retrieve(context.Background(), model.SourceReference{URL: server.URL + "/p/1"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRetrieveRemoteLimitsSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mp4Header)
	}))
	defer server.Close()

	r := &GCSRetriever{Store: newMemoryStore(), HTTPClient: server.Client(), UploadBucket: "uploads", MaxBytes: 16}
	_, err := r.Retrieve(context.Background(), model.SourceReference{URL: server.URL + "/v.mp4"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRetrieveRemoteStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := &GCSRetriever{Store: newMemoryStore(), HTTPClient: server.Client(), UploadBucket: "uploads"}
	_, err := r.Retrieve(context.Background(), model.SourceReference{URL: server.URL + "/v.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDetectPlatform(t *testing.T) {
	assert.Equal(t, "tiktok", DetectPlatform("www.tiktok.com"))
	assert.Equal(t, "instagram", DetectPlatform("instagram.com"))
	assert.Equal(t, "youtube", DetectPlatform("m.youtube.com"))
	assert.Equal(t, "", DetectPlatform("example.com"))
	assert.Equal(t, "", DetectPlatform("nottiktok.com"))
}

func TestParseStreamInfo(t *testing.T) {
	out, err := ParseStreamInfo([]byte(`{"streams":[{"width":720,"height":1280}],"format":{"duration":"12.480000"}}`))
	require.NoError(t, err)
	assert.Equal(t, &StreamInfo{DurationSeconds: 12.48, Width: 720, Height: 1280}, out)

	_, err = ParseStreamInfo([]byte(`{"format":{"duration":"n/a"}}`))
	assert.Error(t, err)
}

func TestExportStoreSave(t *testing.T) {
	store := newMemoryStore()
	s := &ExportStore{Store: store, Bucket: "exports", URLExpiry: time.Minute}

	url, err := s.Save(context.Background(), "session-1", &export.Artifact{
		FileName:    "report.html",
		ContentType: "text/html",
		Data:        []byte("<html></html>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/exports/exports/session-1/report.html?ttl=1m0s", url)
	assert.Equal(t, []byte("<html></html>"), store.objects["exports/exports/session-1/report.html"])

	_, err = (&ExportStore{Store: store}).Save(context.Background(), "s", &export.Artifact{})
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, 5, ClampLimit(5))
	assert.Equal(t, MaxHistoryLimit, ClampLimit(10_000))
}
