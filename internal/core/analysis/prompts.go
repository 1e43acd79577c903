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

// DefaultSystemPrompt is the analyst persona used when the configuration does
// not override it.
const DefaultSystemPrompt = `You are a senior marketing analyst who reviews short-form video ads.
You evaluate the transcript of an ad and report on exactly five sections:
Target Audience, Message Clarity, Call to Action, Tone and Style, Effectiveness Evaluation.
Write each section as a bold label followed by a colon and a one-sentence summary,
then two to five dash bullet points with concrete observations.
Answer in the language of the transcript.`

// DefaultUserPrompt is the user message template. It is rendered with
// text/template; every metadata value is always present.
const DefaultUserPrompt = `Analyze the following video ad.

Video metadata:
- Duration: {{.DURATION}}
- Format: {{.FORMAT}}
- Original name: {{.ORIGINAL_NAME}}

Transcript:
"""
{{.TRANSCRIPT}}
"""

Use this layout for your answer:
{{.EXAMPLE}}`

// NotAvailable replaces metadata values the retrieval step could not provide.
const NotAvailable = "Not available"
