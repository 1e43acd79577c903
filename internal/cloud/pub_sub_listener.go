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

// Package cloud provides the Google Cloud plumbing of the server. This file
// defines a Pub/Sub listener that hands every message to a Command.
//
// Logic Flow:
//  1. A PubSubListener is created for a subscription with the command that
//     processes its messages.
//  2. Listen starts a goroutine that receives messages until ctx is done.
//  3. Each message gets its own span and chain context. The body is placed
//     under cor.CtxIn as a string.
//  4. HandleResult decides between Ack and Nack. Malformed messages are
//     acknowledged so they are not redelivered forever; any other failure
//     is retried by Pub/Sub.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// PubSubListener runs a command for every message pulled from a subscription.
// The message body is handed to the command as its CtxIn string.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener is the constructor for PubSubListener.
//
// Inputs:
//   - pubsubClient: An initialized Pub/Sub client.
//   - subscriptionID: The subscription to pull from.
//   - command: Processes each message. May be nil and bound later with SetCommand.
//
// Outputs:
//   - *PubSubListener: The listener; nothing is received until Listen.
//   - error: Always nil.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	return &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}, nil
}

// SetCommand binds the command once; later calls are ignored.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages on a background goroutine until ctx is done.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.InfoContext(ctx, "listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg.id", msg.ID))

			chainCtx := cor.NewContext(spanCtx)
			defer chainCtx.Close()
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if HandleResult(spanCtx, chainCtx) {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			msg.Nack()
		})
		if err != nil {
			slog.ErrorContext(ctx, "error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// HandleResult logs the chain's errors and reports whether the message should
// be acknowledged. Malformed input is acknowledged so it is not redelivered.
func HandleResult(ctx context.Context, chainCtx cor.Context) bool {
	if !chainCtx.HasErrors() {
		return true
	}
	ack := true
	for name, e := range chainCtx.GetErrors() {
		slog.ErrorContext(ctx, "error executing chain", "command", name, "error", e)
		if !model.IsKind(e, model.ErrInvalidInput) {
			ack = false
		}
	}
	return ack
}
