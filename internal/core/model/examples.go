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

// Package model defines the data structures for the application. This file,
// `examples.go`, holds the example report embedded in the analysis prompt.
//
// Showing the model one complete report in the exact markup the parser
// handles best (bold labels, one-line summary, dash bullets) keeps most
// responses on the first parsing strategy.
package model

// GetExampleAnalysis returns a sample raw analysis document covering all five
// sections.
func GetExampleAnalysis() string {
	return `**Target Audience**: Young urban professionals between 25 and 35 who care about fitness.
- Clear focus on busy commuters
- Visual references to gym culture

**Message Clarity**: The core promise is stated in the first five seconds and repeated at the end.
- Single benefit, easy to remember
- Product name shown three times

**Call to Action**: A strong, direct invitation to download the app with a visible discount code.
- On-screen code in the last frame
- Voiceover repeats the offer

**Tone and Style**: Energetic and authentic, filmed handheld with natural light.
- Fast cuts synced to music
- Relatable everyday situations

**Effectiveness Evaluation**: Overall an effective spot with a memorable hook; the middle section is slightly generic.
- Hook lands before the skip button appears
- Middle section could be shorter`
}
