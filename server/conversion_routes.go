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
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tinuvile/rehearseOnline/internal/core/calibration"
	"github.com/Tinuvile/rehearseOnline/internal/core/commands"
	"github.com/Tinuvile/rehearseOnline/internal/core/converter"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/services"
)

// ConversionRouter sets up the 3D to 2D conversion routes.
//
//   - POST /video-3d-to-2d/process: Starts a conversion and answers 202. With
//     ?wait=true it runs inline and answers with the result. A video that is
//     already being converted answers 409.
//   - GET /video-3d-to-2d/status/:video_id: The recorded processing state.
//   - GET /video-3d-to-2d/results/:video_id: The stored result.json.
//   - POST /video-3d-to-2d/analytics/:video_id: Speeds and boundary events per person.
//   - GET /video-3d-to-2d/exports/:video_id: Positions exported to BigQuery.
func ConversionRouter(r *gin.RouterGroup, state *StateManager) {
	conv := r.Group("/video-3d-to-2d")
	{
		conv.POST("/process", func(c *gin.Context) {
			var req model.ConversionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.VideoID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "video_id is required"})
				return
			}
			v, err := state.store.GetVideo(req.VideoID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			if !services.IsRemote(v.FilePath) {
				if _, err := os.Stat(v.FilePath); err != nil {
					c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "video file missing"})
					return
				}
			}
			if _, err := calibration.NewStageTransform(req.StageAnnotation); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			req.RunID = uuid.NewString()
			if _, err := state.store.ClaimProcessing(req.VideoID, model.ProcessingKey3DTo2D, req.RunID); storeFailed(c, err) {
				return
			}

			if c.Query("wait") == "true" {
				result, err := state.conversion.Run(c.Request.Context(), &req)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, result)
				return
			}

			ctx := context.WithoutCancel(c.Request.Context())
			go func() {
				if _, err := state.conversion.Run(ctx, &req); err != nil {
					slog.ErrorContext(ctx, "background conversion failed", "video_id", req.VideoID, "error", err)
				}
			}()
			c.JSON(http.StatusAccepted, gin.H{"video_id": req.VideoID, "status": model.ProcessingStatusProcessing})
		})

		conv.GET("/status/:video_id", func(c *gin.Context) {
			id := c.Param("video_id")
			res, err := state.store.VideoResult(id, model.ProcessingKey3DTo2D)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"video_id":         id,
				"status":           res.Status,
				"positions_count":  res.PositionsCount,
				"persons_detected": res.PersonsDetected,
				"processing_time":  res.ProcessingTime,
				"error":            res.Error,
			})
		})

		conv.GET("/results/:video_id", func(c *gin.Context) {
			result, ok := loadResult(c, state)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, result)
		})

		conv.POST("/analytics/:video_id", func(c *gin.Context) {
			result, ok := loadResult(c, state)
			if !ok {
				return
			}
			a := result.StageAnnotation
			c.JSON(http.StatusOK, gin.H{
				"video_id": result.VideoID,
				"persons":  converter.Analyze(result.Positions, a.RealWidth, a.RealHeight),
			})
		})

		conv.GET("/exports/:video_id", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
			rows, err := state.positionService.List(c.Request.Context(), c.Param("video_id"), c.Query("person_id"), limit)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"positions": rows, "count": len(rows)})
		})
	}
}

// loadResult reads the completed result of the video named in the path. It
// writes the error response itself and reports false when there is none.
func loadResult(c *gin.Context, state *StateManager) (*model.Video3DTo2DResult, bool) {
	res, err := state.store.VideoResult(c.Param("video_id"), model.ProcessingKey3DTo2D)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if res.Status != model.ProcessingStatusCompleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversion not completed", "status": res.Status})
		return nil, false
	}
	result, err := commands.ReadResult(res.ResultFile)
	if errors.Is(err, fs.ErrNotExist) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "result file missing"})
		return nil, false
	}
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return result, true
}
