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


// Package main contains the logic for setting up and starting the Pub/Sub message listeners.
// The listeners receive Cloud Storage upload notifications and submit each uploaded
// video to the session registry.
package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

// SetupListeners binds the upload notification workflow to every configured
// subscription and starts the listeners as background goroutines. Objects the
// service writes itself (remote downloads and exports) are acknowledged without
// starting a run.
func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, submitter commands.Submitter) {
	for name, listener := range cloudClients.PubSubListeners {
		listener.SetCommand(workflow.NewUploadNotificationWorkflow(submitter, services.RemotePrefix, services.ExportPrefix))
		listener.Listen(ctx)
		slog.InfoContext(ctx, "listening for upload notifications", "subscription", name)
	}
}
