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

package analysis

import (
	"regexp"
	"strings"
)

// MinElementLength is the length an element must exceed to be kept.
const MinElementLength = 3

// a line starting with a single dash; "--" and "---" rules are not bullets
var bulletLine = regexp.MustCompile(`(?m)^[ \t]*-([^-\n][^\n]*)?$`)

var boldPrefix = regexp.MustCompile(`^\*\*([^*\n]+)\*\*[ \t]*:?`)

// ExtractBulletPoints returns the trimmed text of every dash bullet in body,
// in document order. Duplicates are kept.
func ExtractBulletPoints(body string) []string {
	out := []string{}
	for _, m := range bulletLine.FindAllStringSubmatch(body, -1) {
		text := strings.TrimSpace(m[1])
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// ExtractMainText returns the prose before the first bullet, with a leading
// bold section label removed.
func ExtractMainText(body string, labels []string) string {
	text := strings.TrimSpace(body)
	text = strings.TrimSpace(strings.TrimLeft(text, ":"))
	if m := boldPrefix.FindStringSubmatch(text); m != nil && isLabel(m[1], labels) {
		text = strings.TrimSpace(text[len(m[0]):])
	}
	if loc := bulletLine.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}

func isLabel(candidate string, labels []string) bool {
	candidate = strings.TrimSuffix(strings.TrimSpace(candidate), ":")
	for _, l := range labels {
		if strings.EqualFold(strings.Join(strings.Fields(candidate), " "), l) {
			return true
		}
	}
	return false
}

// UniqueElements trims elements, drops those of MinElementLength characters
// or fewer and keeps the first occurrence of each exact duplicate.
func UniqueElements(elements []string) []string {
	seen := make(map[string]bool, len(elements))
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		e = strings.TrimSpace(e)
		if len([]rune(e)) <= MinElementLength || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
