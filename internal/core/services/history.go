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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Page sizes of history listings.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// AnalysisHistory reads the analyses persisted to BigQuery.
type AnalysisHistory struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	AnalysisTable  string
}

// GetFQN returns the table name in standard SQL form (project.dataset.table).
func (s *AnalysisHistory) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.AnalysisTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", 1)
}

// Recent lists the latest analyses, newest first. An empty sessionID lists
// every session.
//
// Inputs:
//   - ctx: Bounds the query job.
//   - sessionID: Restricts the listing to one session when set.
//   - limit: Clamped with ClampLimit.
//
// Outputs:
//   - []*model.AnalysisRow: Possibly empty, never nil on success.
//   - error: Query or read failures.
func (s *AnalysisHistory) Recent(ctx context.Context, sessionID string, limit int) ([]*model.AnalysisRow, error) {
	limit = ClampLimit(limit)
	params := []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	query := QryRecentAnalyses
	if sessionID != "" {
		query = QryAnalysesBySession
		params = append(params, bigquery.QueryParameter{Name: "session_id", Value: sessionID})
	}
	return s.read(ctx, fmt.Sprintf(query, s.GetFQN()), params)
}

// Get returns the analysis written by one run.
func (s *AnalysisHistory) Get(ctx context.Context, runID string) (*model.AnalysisRow, error) {
	rows, err := s.read(ctx, fmt.Sprintf(QryAnalysisByRun, s.GetFQN()), []bigquery.QueryParameter{{Name: "run_id", Value: runID}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: analysis for run %q", model.ErrNotFound, runID)
	}
	return rows[0], nil
}

// read runs a parameterized query and collects every row.
func (s *AnalysisHistory) read(ctx context.Context, queryText string, params []bigquery.QueryParameter) ([]*model.AnalysisRow, error) {
	q := s.BigqueryClient.Query(queryText)
	q.Parameters = params
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from BigQuery: %w", err)
	}
	out := make([]*model.AnalysisRow, 0)
	for {
		row := &model.AnalysisRow{}
		err := itr.Next(row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// ClampLimit bounds a page size to [1, MaxHistoryLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}
