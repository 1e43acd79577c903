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


// Package natsevents publishes pipeline run events to NATS. Every event goes
// to <subject>.<session id> as JSON so a client can follow a single session.
package natsevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/resilience"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "video-insights.runs"

var _ pipeline.EventPublisher = (*Publisher)(nil)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Options tune the connection. Zero values take the defaults applied by Connect.
type Options struct {
	ConnectTimeout time.Duration        // 2s by default.
	ReconnectWait  time.Duration        // 2s by default.
	MaxReconnects  int                  // 60 by default.
	Executor       *resilience.Executor // Optional retry and breaker policy.
}

// Publisher is the pipeline.EventPublisher that writes to NATS.
type Publisher struct {
	conn     Conn
	subject  string
	executor *resilience.Executor
}

// Connect dials the NATS server. Reconnects are retried in the background so
// a server that is briefly down does not block startup.
func Connect(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("video-insights"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewPublisher(conn, subject, options.Executor), nil
}

// NewPublisher wraps an existing connection. An empty subject uses DefaultSubject.
func NewPublisher(conn Conn, subject string, executor *resilience.Executor) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject, executor: executor}
}

// Close closes the connection. It is a no-op without one.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// SubjectFor returns the subject the events of one session are published on.
func (p *Publisher) SubjectFor(sessionID string) string {
	if sessionID == "" {
		return p.subject
	}
	return p.subject + "." + sessionID
}

// Publish sends event as JSON to the session's subject.
//
// Inputs:
//   - ctx: Bounds retries when an executor is configured.
//   - event: The run state to publish.
//
// Outputs:
//   - error: ErrTemporary for connection problems, which callers may log and
//     drop; other errors are returned as is.
func (p *Publisher) Publish(ctx context.Context, event pipeline.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}
	subject := p.SubjectFor(event.SessionID)
	call := func(context.Context) error {
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// classifyNATSError retries connection level failures. Context errors are
// neither retried nor counted.
func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || model.IsKind(err, model.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return model.WrapError(model.ErrTemporary, "nats publish", err)
	}
	return err
}
