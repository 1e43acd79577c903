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


package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

var runColumns = []string{
	"run_id", "session_id", "source_reference", "status", "progress", "last_error",
	"video", "transcript", "analysis", "started_at", "recorded_at",
}

func newRepository(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRunRepository(db)
	repo.now = func() time.Time { return time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC) }
	return repo, mock
}

func TestEnsureSchemaRunsInsideLockedTransaction(t *testing.T) {
	repo, mock := newRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pipeline_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunUpsertsFinishedRun(t *testing.T) {
	repo, mock := newRepository(t)
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := "video retrieval failed: not a video"
	run := model.PipelineRun{
		ID:              "run-1",
		SourceReference: model.SourceReference{Bucket: "uploads", Object: "ad.mp4"},
		Status:          model.StatusFailed,
		LastError:       &msg,
		StartedAt:       started,
	}

	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs("run-1", "session-1", "gs://uploads/ad.mp4", "failed", 0, msg,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), started, repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordRun(context.Background(), "session-1", run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRequiresID(t *testing.T) {
	repo, mock := newRepository(t)

	err := repo.RecordRun(context.Background(), "session-1", model.PipelineRun{Status: model.StatusDone})
	assert.True(t, model.IsKind(err, model.ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunDecodesStoredRecords(t *testing.T) {
	repo, mock := newRepository(t)
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	recorded := started.Add(2 * time.Minute)

	rows := sqlmock.NewRows(runColumns).AddRow(
		"run-1", "session-1", "https://cdn.example.com/ad.mp4", "done", 100, nil,
		[]byte(`{"id":"v-1","url":"gs://uploads/remote/v-1.mp4","durationSeconds":31.5}`),
		[]byte(`{"text":"buy now","languageCode":"en","confidence":0.9}`),
		[]byte(`{"targetAudience":{"score":0.7,"description":"Young adults","elements":["urban"]}}`),
		started, recorded,
	)
	mock.ExpectQuery("FROM pipeline_runs").WithArgs("run-1").WillReturnRows(rows)

	got, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, model.StatusDone, got.Run.Status)
	assert.Equal(t, "https://cdn.example.com/ad.mp4", got.Run.SourceReference.URL)
	assert.Nil(t, got.Run.LastError)
	require.NotNil(t, got.Run.Video)
	assert.Equal(t, 31.5, got.Run.Video.DurationSeconds)
	require.NotNil(t, got.Run.Transcript)
	assert.Equal(t, "buy now", got.Run.Transcript.Text)
	require.NotNil(t, got.Run.Analysis)
	assert.Equal(t, 0.7, got.Run.Analysis.TargetAudience.Score)
	assert.True(t, got.Run.Flags.Analyzed)
	assert.Equal(t, recorded, got.RecordedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	repo, mock := newRepository(t)
	mock.ExpectQuery("FROM pipeline_runs").WithArgs("missing").WillReturnRows(sqlmock.NewRows(runColumns))

	_, err := repo.GetRun(context.Background(), "missing")
	assert.True(t, model.IsKind(err, model.ErrNotFound))
}

func TestListBySession(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := "transcription failed: timeout"

	rows := sqlmock.NewRows(runColumns).
		AddRow("run-2", "session-1", "gs://uploads/b.mp4", "failed", 0, msg, nil, nil, nil, now, now.Add(time.Minute)).
		AddRow("run-1", "session-1", "gs://uploads/a.mp4", "done", 100, nil, nil, nil, []byte(`{}`), now, now)
	mock.ExpectQuery("WHERE session_id").WithArgs("session-1", 5).WillReturnRows(rows)

	runs, err := repo.ListBySession(context.Background(), "session-1", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].Run.ID)
	require.NotNil(t, runs[0].Run.LastError)
	assert.Equal(t, msg, *runs[0].Run.LastError)
	assert.Equal(t, "b.mp4", runs[0].Run.SourceReference.Object)
	assert.False(t, runs[0].Run.Flags.VideoRetrieved)
	assert.NotNil(t, runs[1].Run.Analysis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySessionWithoutLimit(t *testing.T) {
	repo, mock := newRepository(t)

	runs, err := repo.ListBySession(context.Background(), "session-1", 0)
	assert.NoError(t, err)
	assert.Nil(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
