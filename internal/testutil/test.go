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


// Package test provides helpers and sample payloads shared by the test suites.
package test

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
)

// HandleErr fails the test immediately when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestLogger returns a logger bridged to the OpenTelemetry log provider and
// scoped to the running test.
func NewTestLogger(t *testing.T) *slog.Logger {
	return otelslog.NewLogger(t.Name())
}

// GetTestUploadMessageText returns the JSON payload of a Cloud Storage
// OBJECT_FINALIZE notification for object in bucket.
func GetTestUploadMessageText(bucket, object string) string {
	return fmt.Sprintf(`{
  "kind": "storage#object",
  "id": "%[1]s/%[2]s/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/%[1]s/o/%[2]s",
  "name": "%[2]s",
  "bucket": "%[1]s",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "size": "25934803",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "mediaLink": "https://storage.googleapis.com/download/storage/v1/b/%[1]s/o/%[2]s?generation=1728615848664286&alt=media",
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
}`, bucket, object)
}

var testConfig = sync.OnceValues(func() (*cloud.Config, error) {
	config := cloud.NewConfig()
	return config, cloud.LoadConfig(config)
})

// GetConfig loads the test configuration once. Tests run with the "test"
// runtime overlay from the configs directory next to the package under test;
// missing files leave the defaults in place.
func GetConfig(t *testing.T) *cloud.Config {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, "configs")
	t.Setenv(cloud.EnvConfigRuntime, "test")
	config, err := testConfig()
	HandleErr(err, t)
	return config
}
