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
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Renderer serializes a Document.
type Renderer interface {
	Render(doc Document) ([]byte, error)
}

// Artifact is a rendered report. URL is set once the artifact is published.
type Artifact struct {
	Format      Format `json:"format"`
	ContentType string `json:"contentType"`
	FileName    string `json:"fileName"`
	Data        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}

// RendererFor returns the renderer bound to a format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatHTML:
		return HTMLRenderer{}, nil
	case FormatMarkdown:
		return MarkdownRenderer{}, nil
	case FormatJSON:
		return JSONRenderer{}, nil
	case FormatXLSX:
		return XLSXRenderer{}, nil
	}
	return nil, fmt.Errorf("%w: unsupported export format %q", model.ErrInvalidInput, format)
}

// Render renders doc in the requested format. Failures carry ErrExport.
func Render(doc Document, format Format) (*Artifact, error) {
	r, err := RendererFor(format)
	if err != nil {
		return nil, err
	}
	data, err := r.Render(doc)
	if err != nil {
		return nil, model.WrapError(model.ErrExport, "render "+string(format), err)
	}
	return &Artifact{
		Format:      format,
		ContentType: format.ContentType(),
		FileName:    FileName(doc, format),
		Data:        data,
	}, nil
}

// FileName builds a filesystem safe report name.
func FileName(doc Document, format Format) string {
	var b strings.Builder
	for _, r := range strings.ToLower(doc.Title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
		if b.Len() >= 48 {
			break
		}
	}
	base := strings.Trim(b.String(), "-")
	if base == "" {
		base = "video-analysis"
	}
	return fmt.Sprintf("%s-%s.%s", base, doc.GeneratedAt.UTC().Format("20060102-150405"), format.Extension())
}

var funcs = map[string]any{
	"date": func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
}

const htmlReport = `<!DOCTYPE html>
<html lang="{{if .Language}}{{.Language}}{{else}}en{{end}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;max-width:860px;margin:2em auto;color:#222}
table{border-collapse:collapse}td{padding:4px 12px;border-bottom:1px solid #ddd}
.score{float:right;font-weight:bold}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Generated {{date .GeneratedAt}}</p>
{{- if .Metadata}}
<h2>Video details</h2>
<table>
{{- range .Metadata}}
<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- end}}
<h2>Analysis</h2>
{{- range .Sections}}
<section id="{{.Key}}">
<h3>{{.Title}} <span class="score">{{.ScorePercent}}%</span></h3>
{{- if .Description}}
<p>{{.Description}}</p>
{{- end}}
{{- if .Elements}}
<ul>
{{- range .Elements}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</section>
{{- end}}
{{- if .Transcript}}
<h2>Transcript</h2>
<p>{{.Transcript}}</p>
{{- end}}
{{- range .Translations}}
<h3>{{.Name}} translation</h3>
<p>{{.Text}}</p>
{{- end}}
</body>
</html>
`

const markdownReport = `# {{.Title}}

_Generated {{date .GeneratedAt}}_
{{if .Metadata}}
## Video details

| Field | Value |
| --- | --- |
{{- range .Metadata}}
| {{cell .Label}} | {{cell .Value}} |
{{- end}}
{{end}}
## Analysis
{{range .Sections}}
### {{.Title}} ({{.ScorePercent}}%)
{{if .Description}}
{{.Description}}
{{end}}
{{- range .Elements}}
- {{.}}
{{- end}}
{{end}}
{{- if .Transcript}}
## Transcript

{{.Transcript}}
{{end}}
{{- range .Translations}}
### {{.Name}} translation

{{.Text}}
{{end}}`

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.New("report").Funcs(funcs).Parse(htmlReport))

	markdownTemplate = texttemplate.Must(texttemplate.New("report").Funcs(funcs).Funcs(map[string]any{
		"cell": func(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ") },
	}).Parse(markdownReport))
)

// HTMLRenderer renders a standalone page with an embedded stylesheet.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarkdownRenderer renders markdown with a pipe table for the metadata.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONRenderer renders the Document as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
