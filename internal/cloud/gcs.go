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

package cloud

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GCSPubSubNotification is the JSON payload Cloud Storage publishes to
// Pub/Sub when an object is finalized in a watched bucket.
type GCSPubSubNotification struct {
	Kind        string                 `json:"kind"`
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Bucket      string                 `json:"bucket"`
	Generation  string                 `json:"generation"`
	ContentType string                 `json:"contentType"`
	TimeCreated string                 `json:"timeCreated"`
	Size        string                 `json:"size"`
	MD5Hash     string                 `json:"md5Hash"`
	MetaData    map[string]interface{} `json:"metadata"`
}

// ParseGCSNotification decodes a notification and checks it names an object.
func ParseGCSNotification(data []byte) (*GCSPubSubNotification, error) {
	var out GCSPubSubNotification
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GCS notification: %w", err)
	}
	if out.Bucket == "" || out.Name == "" {
		return nil, fmt.Errorf("GCS notification without bucket or object name")
	}
	return &out, nil
}

// Object returns the object the notification refers to.
func (n *GCSPubSubNotification) Object() GCSObject {
	size, _ := strconv.ParseInt(n.Size, 10, 64)
	return GCSObject{Bucket: n.Bucket, Name: n.Name, MIMEType: n.ContentType, Size: size}
}

// MetadataString returns a custom metadata value set on the object, if any.
func (n *GCSPubSubNotification) MetadataString(key string) string {
	if v, ok := n.MetaData[key].(string); ok {
		return v
	}
	return ""
}

// GCSObject is a reference to a stored object.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
	Size     int64
}

func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}
