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

// Package export turns a finished analysis into report documents. Assemble
// builds a format-neutral Document; renderers serialize it.
//
// Logic Flow:
//  1. **Assembly**: Assemble collects the metadata rows, one RenderedSection
//     per analysis section (in the fixed section order) and the transcript
//     with its translations into a Document.
//  2. **Cleanup**: Each section's elements pass through DedupElements so the
//     first bullet does not repeat the description.
//  3. **Localization**: Dates and numbers in the metadata table follow the
//     requested locale; long descriptions are truncated.
//  4. **Rendering**: Render picks the Renderer for the requested Format and
//     wraps the bytes in an Artifact carrying the file name and content type.
package export

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

const (
	// DescriptionLimit is the number of characters of a post description shown
	// in the metadata table.
	DescriptionLimit = 70
	// PrefixMatchLength is the prefix compared by the redundancy check.
	PrefixMatchLength = 20
	ellipsis          = "..."
)

// dateLayouts maps a base language to its short date layout.
var dateLayouts = map[string]string{
	"en": "01/02/2006",
	"es": "02/01/2006",
	"fr": "02/01/2006",
	"it": "02/01/2006",
	"pt": "02/01/2006",
	"de": "02.01.2006",
}

// Options control locale dependent formatting.
type Options struct {
	Locale      string // BCP 47 tag, defaults to "en"
	Title       string
	GeneratedAt time.Time
}

// MetadataRow is one labelled line of the video metadata table.
type MetadataRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RenderedSection is an analysis section ready for display.
type RenderedSection struct {
	Key         string   `json:"key"`   // Stable camelCase key used by clients.
	Title       string   `json:"title"` // Localized heading.
	Score       float64  `json:"score"` // 0 to 1.
	Description string   `json:"description"`
	Elements    []string `json:"elements"` // Deduplicated against Description.
}

// ScorePercent is the score shown in reports.
func (s RenderedSection) ScorePercent() int {
	return int(s.Score*100 + 0.5)
}

// Translation is a transcript translation with its display name.
type Translation struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Document is the format-neutral report.
type Document struct {
	Title        string            `json:"title"`
	GeneratedAt  time.Time         `json:"generatedAt"`
	Metadata     []MetadataRow     `json:"metadata"`
	Sections     []RenderedSection `json:"sections"`
	Transcript   string            `json:"transcript"`
	Language     string            `json:"language,omitempty"`
	Translations []Translation     `json:"translations"`
}

var sectionKeys = map[model.SectionID]string{
	model.TargetAudience:          "targetAudience",
	model.MessageClarity:          "narrativeStructure",
	model.CallToAction:            "callToAction",
	model.ToneAndStyle:            "storytelling",
	model.EffectivenessEvaluation: "emotionalTriggers",
}

// Assemble builds the report for a finished run.
//
// Inputs:
//   - transcript: The transcript and its translations. May be nil.
//   - record: The analysis. A nil record yields empty sections.
//   - video: Metadata for the table and the default title. May be nil.
//   - opts: Locale, title and generation time overrides.
//
// Outputs:
//   - Document: Always has every section, in order.
func Assemble(transcript *model.Transcript, record *model.AnalysisRecord, video *model.VideoMetadata, opts Options) Document {
	tag := parseLocale(opts.Locale)
	doc := Document{
		Title:        opts.Title,
		GeneratedAt:  opts.GeneratedAt,
		Metadata:     MetadataRows(video, tag),
		Sections:     make([]RenderedSection, 0, len(model.AllSections())),
		Translations: []Translation{},
	}
	if doc.Title == "" {
		doc.Title = defaultTitle(video)
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}

	for _, id := range model.AllSections() {
		section := model.EmptySection()
		if record != nil {
			section = record.Section(id)
		}
		doc.Sections = append(doc.Sections, RenderedSection{
			Key:         sectionKeys[id],
			Title:       id.Title(),
			Score:       section.Score,
			Description: section.Description,
			Elements:    DedupElements(section.Description, section.Elements),
		})
	}

	if transcript != nil {
		doc.Transcript = transcript.Text
		doc.Language = transcript.LanguageCode
		for _, code := range model.SupportedLanguages() {
			if text, ok := transcript.Translations[code]; ok {
				doc.Translations = append(doc.Translations, Translation{Code: string(code), Name: code.Name(), Text: text})
			}
		}
	}
	return doc
}

func defaultTitle(video *model.VideoMetadata) string {
	switch {
	case video == nil:
		return "Video analysis"
	case video.Source != nil && video.Source.Title != "":
		return video.Source.Title
	case video.OriginalName != "":
		return video.OriginalName
	}
	return "Video analysis"
}

// DedupElements drops the first element when it restates the description.
// Only the first element is ever removed.
func DedupElements(description string, elements []string) []string {
	out := make([]string, 0, len(elements))
	if len(elements) > 0 && IsRedundant(description, elements[0]) {
		elements = elements[1:]
	}
	return append(out, elements...)
}

// IsRedundant reports whether element is substantially contained in
// description: either contains the other, or, for elements longer than
// PrefixMatchLength characters, both start with the same PrefixMatchLength characters.
func IsRedundant(description, element string) bool {
	description = strings.TrimSpace(description)
	element = strings.TrimSpace(element)
	if description == "" || element == "" {
		return false
	}
	if strings.Contains(description, element) || strings.Contains(element, description) {
		return true
	}
	if utf8.RuneCountInString(element) <= PrefixMatchLength {
		return false
	}
	prefix, ok := runePrefix(element, PrefixMatchLength)
	if !ok {
		return false
	}
	descPrefix, ok := runePrefix(description, PrefixMatchLength)
	return ok && prefix == descPrefix
}

func runePrefix(s string, n int) (string, bool) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, count == n
}

// MetadataRows lists the metadata fields that are present, formatted for tag.
// Absent fields produce no row.
func MetadataRows(video *model.VideoMetadata, tag language.Tag) []MetadataRow {
	rows := []MetadataRow{}
	if video == nil {
		return rows
	}
	printer := message.NewPrinter(tag)
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			rows = append(rows, MetadataRow{Label: label, Value: value})
		}
	}

	if src := video.Source; src != nil {
		add("Title", src.Title)
		add("Page", src.PageName)
		if src.FollowerCount != nil {
			add("Followers", printer.Sprintf("%d", *src.FollowerCount))
		}
		if src.LikeCount != nil {
			add("Likes", printer.Sprintf("%d", *src.LikeCount))
		}
		add("Category", src.Category)
		add("Description", Truncate(src.Description, DescriptionLimit))
		if src.Platform != "" {
			add("Platform", cases.Title(tag).String(src.Platform))
		}
		add("Original URL", src.OriginalURL)
		add("Location", src.Location)
		if src.PublishedAt != nil {
			add("Published", FormatDate(*src.PublishedAt, tag))
		}
	}

	if video.DurationSeconds > 0 {
		add("Duration", printer.Sprintf("%.1f s", video.DurationSeconds))
	}
	add("Format", video.PixelFormat)
	add("File", video.OriginalName)
	return rows
}

// Truncate shortens s to limit characters followed by an ellipsis.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:limit]), " ") + ellipsis
}

// FormatDate renders t with the short date layout of tag's language.
func FormatDate(t time.Time, tag language.Tag) string {
	base, _ := tag.Base()
	layout, ok := dateLayouts[base.String()]
	if !ok {
		layout = dateLayouts["en"]
	}
	return t.Format(layout)
}

func parseLocale(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

// String is used in logs.
func (d Document) String() string {
	return fmt.Sprintf("%s (%d sections)", d.Title, len(d.Sections))
}
