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
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/services"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
)

// CreateActorRequest is the body of POST /stage/actors.
type CreateActorRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

// UpdatePositionRequest is the body of PUT /stage/actors/:id/position.
type UpdatePositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// abortWithError maps store errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, services.ErrCloudDisabled):
		status = http.StatusServiceUnavailable
	default:
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// storeFailed aborts the request unless err is nil or a store.ErrNotPersisted
// autosave failure. In that case the change is in memory, so the handler
// answers normally and the response carries X-Persisted: false.
func storeFailed(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotPersisted):
		slog.WarnContext(c.Request.Context(), "change applied but not saved", "path", c.FullPath(), "error", err)
		c.Header("X-Persisted", "false")
		return false
	}
	abortWithError(c, err)
	return true
}

// StageRouter sets up the stage editor routes.
//
// This function defines the following endpoints:
//   - GET /stage/project: The current project, created with defaults when there is none.
//   - GET /stage/project/:id: Everything stored for one project.
//   - GET /stage/actors, POST /stage/actors, GET /stage/actors/:id: Actor listing and creation.
//   - PUT /stage/actors/:id/position?timestamp=&video_id=: Drag edit of an actor position.
//   - GET /stage/timeline/:video_id: Transcripts, positions and cues for the editor timeline.
//   - GET /stage/integrity, POST /stage/cleanup: Referential integrity report and repair.
//   - POST /stage/backup: Writes a timestamped copy of the store next to the data file.
func StageRouter(r *gin.RouterGroup, state *StateManager) {
	stage := r.Group("/stage")
	{
		stage.GET("/project", func(c *gin.Context) {
			project, created, err := state.store.EnsureCurrentProject()
			if storeFailed(c, err) {
				return
			}
			c.JSON(http.StatusOK, gin.H{"project": project, "created": created})
		})

		stage.GET("/project/:id", func(c *gin.Context) {
			data, err := state.store.GetProjectData(c.Param("id"))
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, data)
		})

		stage.GET("/actors", func(c *gin.Context) {
			actors := state.store.ListActors()
			c.JSON(http.StatusOK, gin.H{"actors": actors, "count": len(actors)})
		})

		stage.POST("/actors", func(c *gin.Context) {
			var req CreateActorRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			actor, err := state.store.AddActor(req.Name, req.Color)
			if storeFailed(c, err) {
				return
			}
			c.JSON(http.StatusCreated, gin.H{"actor": actor})
		})

		stage.GET("/actors/:id", func(c *gin.Context) {
			actor, err := state.store.GetActor(c.Param("id"))
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"actor": actor})
		})

		stage.PUT("/actors/:id/position", func(c *gin.Context) {
			timestamp, err := strconv.ParseFloat(c.Query("timestamp"), 64)
			if err != nil || math.IsNaN(timestamp) || math.IsInf(timestamp, 0) || timestamp < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "timestamp must be a non-negative number"})
				return
			}
			videoID := c.Query("video_id")
			if videoID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "video_id is required"})
				return
			}
			var req UpdatePositionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			pos, err := state.store.UpdateActorPosition(videoID, c.Param("id"), timestamp, model.Point2D{X: req.X, Y: req.Y})
			if storeFailed(c, err) {
				return
			}
			c.JSON(http.StatusOK, gin.H{"position": pos})
		})

		stage.GET("/timeline/:video_id", func(c *gin.Context) {
			timeline, err := state.store.GetTimeline(c.Param("video_id"))
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, timeline)
		})

		stage.GET("/integrity", func(c *gin.Context) {
			problems := state.store.ValidateIntegrity()
			c.JSON(http.StatusOK, gin.H{
				"valid":      len(problems) == 0,
				"problems":   problems,
				"statistics": state.store.Statistics(),
			})
		})

		stage.POST("/cleanup", func(c *gin.Context) {
			report, err := state.store.CleanupOrphans()
			if storeFailed(c, err) {
				return
			}
			c.JSON(http.StatusOK, gin.H{"removed": report.Total(), "report": report})
		})

		stage.POST("/backup", func(c *gin.Context) {
			name, err := state.store.Backup(state.config.Application.DataFile)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"backup": name})
		})
	}
}
