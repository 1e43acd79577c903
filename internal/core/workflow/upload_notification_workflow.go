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

package workflow

import (
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
)

// NewUploadNotificationWorkflow returns the chain bound to the upload bucket's
// Pub/Sub subscription: it reads the notification and submits a run.
//
// Inputs:
//   - submitter: Starts runs; the registry in production.
//   - ignoredPrefixes: Prefixes of objects the server writes itself, such as
//     exports and downloaded remote videos.
//
// Outputs:
//   - cor.Chain: A chain expecting the notification body under cor.CtxIn.
func NewUploadNotificationWorkflow(submitter commands.Submitter, ignoredPrefixes ...string) cor.Chain {
	chain := cor.NewBaseChain("upload-notification")
	chain.AddCommand(commands.NewSourceReferenceReader(StepReadSource))
	chain.AddCommand(commands.NewRunSubmitter(StepSubmitUpload, submitter, ignoredPrefixes...))
	return chain
}
