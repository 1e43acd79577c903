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


package natsevents

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
	"github.com/jaycherian/gcp-go-video-insights/internal/resilience"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu       sync.Mutex
	failures []error
	calls    int
	messages []published
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}
	c.messages = append(c.messages, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
}

func sampleEvent() pipeline.Event {
	return pipeline.Event{
		SessionID: "s-1",
		RunID:     "r-1",
		Status:    model.StatusRunning,
		Stage:     model.StageTranscribing,
		Progress:  33,
		At:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishEncodesEventOnSessionSubject(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, conn.messages, 1)
	assert.Equal(t, "video-insights.runs.s-1", conn.messages[0].subject)

	var got pipeline.Event
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &got))
	assert.Equal(t, "r-1", got.RunID)
	assert.Equal(t, model.StageTranscribing, got.Stage)
	assert.Equal(t, 33, got.Progress)
	assert.Nil(t, got.Error)
}

func TestPublishRetriesTransientErrors(t *testing.T) {
	conn := &fakeConn{failures: []error{nats.ErrTimeout}}
	p := NewPublisher(conn, "runs", testExecutor())

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 2, conn.calls)
	assert.Equal(t, "runs.s-1", conn.messages[0].subject)
}

func TestPublishMarksExhaustedRetriesTemporary(t *testing.T) {
	conn := &fakeConn{failures: []error{nats.ErrNoServers, nats.ErrNoServers, nats.ErrNoServers}}
	p := NewPublisher(conn, "runs", testExecutor())

	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrTemporary))
	assert.Equal(t, 3, conn.calls)
}

func TestPublishDoesNotRetryPermanentErrors(t *testing.T) {
	conn := &fakeConn{failures: []error{nats.ErrBadSubject}}
	p := NewPublisher(conn, "runs", testExecutor())

	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.False(t, model.IsKind(err, model.ErrTemporary))
	assert.Equal(t, 1, conn.calls)
}

func TestClassifyNATSError(t *testing.T) {
	assert.Equal(t, resilience.ErrorClassification{}, classifyNATSError(nil))
	assert.Equal(t, resilience.ErrorClassification{}, classifyNATSError(context.Canceled))
	assert.True(t, classifyNATSError(nats.ErrConnectionClosed).Retryable)
	assert.False(t, classifyNATSError(errors.New("boom")).Retryable)
	assert.True(t, classifyNATSError(errors.New("boom")).RecordFailure)
}

func TestClose(t *testing.T) {
	conn := &fakeConn{}
	NewPublisher(conn, "runs", nil).Close()
	assert.True(t, conn.closed)
}
