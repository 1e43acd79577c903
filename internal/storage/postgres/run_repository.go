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


// Package postgres keeps the history of finished analysis runs in
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
)

// schemaLockID is the advisory lock key held while the schema is created.
const schemaLockID int64 = 2024060101

var _ pipeline.RunRecorder = (*RunRepository)(nil)

// StoredRun is one finished run as read back from the history table.
type StoredRun struct {
	SessionID  string            `json:"sessionId"`
	Run        model.PipelineRun `json:"run"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// RunRepository is the pipeline.RunRecorder backed by the pipeline_runs
// table. Video, transcript and analysis are stored as JSONB.
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunRepository wraps an open database. Call EnsureSchema once at startup.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// OpenDB opens a pgx pool and checks it with a ping.
//
// Inputs:
//   - dsn: A PostgreSQL connection string.
//   - maxOpenConns: Pool size; 10 when not positive.
//
// Outputs:
//   - *sql.DB: The pool, ready to use.
//   - error: When the driver rejects the DSN or the server is unreachable.
func OpenDB(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the table and its index when missing. It is safe to
// run from several replicas at once.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas starting together.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	source_reference TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	video JSONB,
	transcript JSONB,
	analysis JSONB,
	started_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_session ON pipeline_runs(session_id, recorded_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordRun upserts the snapshot of a finished run. Translations requested
// after the run finished are not part of the snapshot.
func (r *RunRepository) RecordRun(ctx context.Context, sessionID string, run model.PipelineRun) error {
	if run.ID == "" {
		return model.WrapError(model.ErrInvalidInput, "record run", errors.New("run has no id"))
	}
	video, err := nullableJSON(run.Video)
	if err != nil {
		return fmt.Errorf("marshal video: %w", err)
	}
	transcript, err := nullableJSON(run.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	analysis, err := nullableJSON(run.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (
	run_id, session_id, source_reference, status, progress, last_error, video, transcript, analysis, started_at, recorded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	progress = EXCLUDED.progress,
	last_error = EXCLUDED.last_error,
	video = EXCLUDED.video,
	transcript = EXCLUDED.transcript,
	analysis = EXCLUDED.analysis,
	recorded_at = EXCLUDED.recorded_at
`,
		run.ID, sessionID, run.SourceReference.String(), string(run.Status), run.Progress, nullableString(run.LastError),
		video, transcript, analysis, run.StartedAt.UTC(), r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

const selectRun = `
SELECT run_id, session_id, source_reference, status, progress, last_error, video, transcript, analysis, started_at, recorded_at
FROM pipeline_runs
`

// GetRun returns one recorded run, or ErrNotFound.
func (r *RunRepository) GetRun(ctx context.Context, runID string) (*StoredRun, error) {
	row := r.db.QueryRowContext(ctx, selectRun+`WHERE run_id = $1`, runID)
	out, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.WrapError(model.ErrNotFound, "get run", fmt.Errorf("run %s", runID))
		}
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}
	return out, nil
}

// ListBySession returns the newest runs of a session first.
func (r *RunRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]StoredRun, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, selectRun+`WHERE session_id = $1
ORDER BY recorded_at DESC
LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	out := make([]StoredRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*StoredRun, error) {
	var (
		out                         StoredRun
		source, status              string
		lastError                   sql.NullString
		video, transcript, analysis []byte
	)
	err := row.Scan(
		&out.Run.ID, &out.SessionID, &source, &status, &out.Run.Progress, &lastError,
		&video, &transcript, &analysis, &out.Run.StartedAt, &out.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	out.Run.Status = model.RunStatus(status)
	if lastError.Valid {
		msg := lastError.String
		out.Run.LastError = &msg
	}
	if source != "" {
		if ref, err := model.ParseSourceReference(source); err == nil {
			out.Run.SourceReference = ref
		}
	}
	if err := decodeJSON(video, &out.Run.Video); err != nil {
		return nil, fmt.Errorf("unmarshal video: %w", err)
	}
	if err := decodeJSON(transcript, &out.Run.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if err := decodeJSON(analysis, &out.Run.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	out.Run.Flags = model.StageFlags{
		VideoRetrieved: out.Run.Video != nil,
		Transcribed:    out.Run.Transcript != nil,
		Analyzed:       out.Run.Analysis != nil,
	}
	out.Run.UpdatedAt = out.RecordedAt
	return &out, nil
}

func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
