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

package model

import (
	"fmt"
	"strings"
)

// LanguageCode is one of the six languages a transcript can be translated to.
type LanguageCode string

const (
	LanguageEnglish    LanguageCode = "en"
	LanguageSpanish    LanguageCode = "es"
	LanguageFrench     LanguageCode = "fr"
	LanguageGerman     LanguageCode = "de"
	LanguagePortuguese LanguageCode = "pt"
	LanguageItalian    LanguageCode = "it"
)

var languageNames = map[LanguageCode]string{
	LanguageEnglish:    "English",
	LanguageSpanish:    "Spanish",
	LanguageFrench:     "French",
	LanguageGerman:     "German",
	LanguagePortuguese: "Portuguese",
	LanguageItalian:    "Italian",
}

// SupportedLanguages lists the codes in a stable order.
func SupportedLanguages() []LanguageCode {
	return []LanguageCode{
		LanguageEnglish,
		LanguageSpanish,
		LanguageFrench,
		LanguageGerman,
		LanguagePortuguese,
		LanguageItalian,
	}
}

// ParseLanguageCode normalizes and validates a language code.
func ParseLanguageCode(in string) (LanguageCode, error) {
	code := LanguageCode(strings.ToLower(strings.TrimSpace(in)))
	if _, ok := languageNames[code]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, in)
	}
	return code, nil
}

// Name returns the English name of the language, used in prompts.
func (c LanguageCode) Name() string {
	return languageNames[c]
}

// Word is a single recognized word with its offsets in seconds.
type Word struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Transcript is the speech-to-text result for a video. Translations starts
// empty and only ever gains entries.
type Transcript struct {
	Text         string                  `json:"text"`
	LanguageCode string                  `json:"languageCode"`
	Confidence   float64                 `json:"confidence"`
	Words        []Word                  `json:"words"`
	Translations map[LanguageCode]string `json:"translations"`
}

// Clone returns a deep copy, including the translations map.
func (t *Transcript) Clone() *Transcript {
	if t == nil {
		return nil
	}
	out := *t
	out.Words = append([]Word(nil), t.Words...)
	out.Translations = make(map[LanguageCode]string, len(t.Translations))
	for k, v := range t.Translations {
		out.Translations[k] = v
	}
	return &out
}
