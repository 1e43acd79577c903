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
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// StreamInfo is what ffprobe reports about the first video stream.
type StreamInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Inspector reads technical metadata from a local video file.
type Inspector interface {
	Inspect(ctx context.Context, file string) (*StreamInfo, error)
}

// FFmpegInspector runs the ffprobe binary.
type FFmpegInspector struct {
	CommandPath string
}

var ffprobeArgs = []string{
	"-v", "error",
	"-select_streams", "v:0",
	"-show_entries", "stream=width,height:format=duration",
	"-of", "json",
}

func (p FFmpegInspector) Inspect(ctx context.Context, file string) (*StreamInfo, error) {
	path := p.CommandPath
	if path == "" {
		path = "ffprobe"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, append(append([]string{}, ffprobeArgs...), file)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("error running ffprobe: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return ParseStreamInfo(stdout.Bytes())
}

// ParseStreamInfo decodes ffprobe's JSON output.
func ParseStreamInfo(data []byte) (*StreamInfo, error) {
	var out struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	result := &StreamInfo{}
	if len(out.Streams) > 0 {
		result.Width = out.Streams[0].Width
		result.Height = out.Streams[0].Height
	}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		result.DurationSeconds = d
	}
	return result, nil
}
