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

// BigQuery statements. %s is the fully qualified analysis table; values are
// bound as named parameters.
const (
	QryRecentAnalyses = "SELECT * FROM `%s` ORDER BY created_at DESC LIMIT @limit"

	QryAnalysisByRun = "SELECT * FROM `%s` WHERE run_id = @run_id LIMIT 1"

	QryAnalysesBySession = "SELECT * FROM `%s` WHERE session_id = @session_id ORDER BY created_at DESC LIMIT @limit"
)
