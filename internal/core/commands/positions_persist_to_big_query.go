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

// This file defines the command that exports the positions of a conversion
// to BigQuery.
//
// Logic Flow:
// The export is optional. It only runs when cloud integration is on and the
// request asked for it. Each PersonPosition becomes one model.PositionRow
// tagged with a run ID, so several runs over the same video can be told
// apart.
//
//  1. Retrieve the result from the context.
//  2. Flatten its positions into rows.
//  3. Stream them through a table `Inserter` in batches of PositionBatchSize.
//     The client maps struct fields to columns through the `bigquery` tags.
package commands

import (
	"fmt"
	"log"

	"cloud.google.com/go/bigquery"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/google/uuid"
)

// PositionBatchSize is the number of rows sent per insert call.
const PositionBatchSize = 500

// PositionsPersistToBigQuery writes the positions of a result to BigQuery.
type PositionsPersistToBigQuery struct {
	cor.BaseCommand
	client  *bigquery.Client // The client for interacting with the BigQuery service.
	dataset string           // The name of the BigQuery dataset.
	table   string           // The name of the target table within the dataset.
}

// NewPositionsPersistToBigQuery is the constructor for the PositionsPersistToBigQuery command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - client: A *bigquery.Client, or nil to disable the export.
//   - dataset: The name of the BigQuery dataset.
//   - table: The name of the target table.
//
// Outputs:
//   - *PositionsPersistToBigQuery: A pointer to the newly instantiated command.
func NewPositionsPersistToBigQuery(name string, client *bigquery.Client, dataset string, table string) *PositionsPersistToBigQuery {
	out := &PositionsPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), client: client, dataset: dataset, table: table}
	out.InputParamName = ParamResult
	return out
}

// IsExecutable is true when a client is configured, the result exists and
// the request asked for the export.
func (s *PositionsPersistToBigQuery) IsExecutable(context cor.Context) bool {
	if s.client == nil || context == nil || context.Get(s.GetInputParam()) == nil {
		return false
	}
	req, ok := context.Get(ParamRequest).(*model.ConversionRequest)
	return ok && req.Export
}

// Execute contains the core logic for writing the rows to BigQuery.
func (s *PositionsPersistToBigQuery) Execute(context cor.Context) {
	result := context.Get(s.GetInputParam()).(*model.Video3DTo2DResult)
	runId := uuid.NewString()

	rows := make([]*model.PositionRow, 0, len(result.Positions))
	for _, p := range result.Positions {
		rows = append(rows, model.NewPositionRow(runId, result.VideoID, p))
	}

	i := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	for start := 0; start < len(rows); start += PositionBatchSize {
		end := min(start+PositionBatchSize, len(rows))
		if err := i.Put(context.GetContext(), rows[start:end]); err != nil {
			log.Printf("failed to write positions to database. video %s error %s\n", result.VideoID, err)
			s.Fail(context, fmt.Errorf("bigquery insert failed for video '%s': %w", result.VideoID, err))
			return
		}
	}

	s.Succeed(context)
	context.Add(s.GetOutputParam(), result)
	log.Printf("persisted %d positions for video %s (run %s)", len(rows), result.VideoID, runId)
}
