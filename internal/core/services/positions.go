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
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"google.golang.org/api/iterator"
)

// DefaultPositionLimit caps List when no limit is given.
const DefaultPositionLimit = 1000

// PositionService reads exported positions back from BigQuery.
type PositionService struct {
	BigqueryClient *bigquery.Client // Client for interacting with Google BigQuery.
	DatasetName    string           // The name of the BigQuery dataset.
	PositionsTable string           // The name of the table holding exported positions.
}

// GetFQN returns the table name in the dotted form SQL expects.
func (s *PositionService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.PositionsTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// List returns the exported positions of a video ordered by frame, optionally
// only those of one person. limit <= 0 means DefaultPositionLimit.
func (s *PositionService) List(ctx context.Context, videoID string, personID string, limit int) ([]*model.PositionRow, error) {
	out := make([]*model.PositionRow, 0)
	if s.BigqueryClient == nil {
		return out, ErrCloudDisabled
	}
	if limit <= 0 {
		limit = DefaultPositionLimit
	}

	q := s.BigqueryClient.Query(fmt.Sprintf(QryListPositions, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "video_id", Value: videoID},
		{Name: "person_id", Value: personID},
		{Name: "max_rows", Value: limit},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read from BigQuery: %w", err)
	}

	for {
		r := &model.PositionRow{}
		err := itr.Next(r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
