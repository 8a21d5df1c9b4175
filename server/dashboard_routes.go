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

package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
)

// DashboardStats is the body of GET /stats.
type DashboardStats struct {
	Store       store.Statistics `json:"store"`
	Videos      map[string]int   `json:"videos_by_status"`
	Conversions map[string]int   `json:"conversions_by_status"`
	Positions   int              `json:"converted_positions"`
}

// Dashboard sets up the statistics route used by the editor's overview page.
//
//   - GET /stats: Store counters, videos grouped by status and 3D to 2D
//     conversions grouped by processing status.
func Dashboard(r *gin.RouterGroup, state *StateManager) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			out := DashboardStats{
				Store:       state.store.Statistics(),
				Videos:      make(map[string]int),
				Conversions: make(map[string]int),
			}
			for _, v := range state.store.ListVideos() {
				out.Videos[v.Status]++
				res, ok := v.ProcessingResults[model.ProcessingKey3DTo2D]
				if !ok {
					out.Conversions[model.ProcessingStatusNotStarted]++
					continue
				}
				out.Conversions[res.Status]++
				out.Positions += res.PositionsCount
			}
			c.JSON(http.StatusOK, out)
		})
	}
}
