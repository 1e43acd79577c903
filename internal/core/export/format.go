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

package export

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Format is a supported report format.
type Format string

// Supported formats. The value is the name accepted by ParseFormat.
const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatJSON, FormatXLSX}
}

// ParseFormat validates a format name. Case and surrounding space are
// ignored, "md" is accepted for markdown.
//
// Inputs:
//   - in: The requested name. Empty means HTML.
//
// Outputs:
//   - Format: The normalized format.
//   - error: ErrInvalidInput for an unknown name.
func ParseFormat(in string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(in))); f {
	case FormatHTML, FormatMarkdown, FormatJSON, FormatXLSX:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", model.ErrInvalidInput, in)
	}
}

// ContentType is the MIME type the format is served with.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Extension is the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}
