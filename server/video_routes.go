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
	"bytes"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/Tinuvile/rehearseOnline/internal/core/services"
)

// sniffLen is how much of an upload is read to detect its type.
const sniffLen = 261

// StreamURLExpiry is the lifetime of a signed playback URL.
const StreamURLExpiry = 15 * time.Minute

// VideoRouter sets up the video routes.
//
//   - GET /video: Every uploaded video.
//   - POST /video/upload: Multipart upload, field "file". Non video payloads are rejected.
//   - GET /video/:id: The video and its transcripts.
//   - GET /video/:id/stream: The file itself, or a signed URL when it lives in GCS.
func VideoRouter(r *gin.RouterGroup, state *StateManager) {
	video := r.Group("/video")
	{
		video.GET("", func(c *gin.Context) {
			videos := state.store.ListVideos()
			c.JSON(http.StatusOK, gin.H{"videos": videos, "count": len(videos)})
		})

		video.POST("/upload", func(c *gin.Context) {
			header, err := c.FormFile("file")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing file: " + err.Error()})
				return
			}
			f, err := header.Open()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			defer f.Close()

			head := make([]byte, sniffLen)
			n, err := io.ReadFull(f, head)
			if err != nil && err != io.ErrUnexpectedEOF {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
				return
			}
			head = head[:n]
			if !filetype.IsVideo(head) {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "file is not a video"})
				return
			}

			path, err := state.videoService.Save(c.Request.Context(), header.Filename, io.MultiReader(bytes.NewReader(head), f))
			if err != nil {
				abortWithError(c, err)
				return
			}
			v, err := state.store.AddVideo(header.Filename, path)
			if storeFailed(c, err) {
				return
			}
			c.JSON(http.StatusCreated, gin.H{"video": v})
		})

		video.GET("/:id", func(c *gin.Context) {
			data, err := state.store.GetVideoData(c.Param("id"))
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, data)
		})

		video.GET("/:id/stream", func(c *gin.Context) {
			v, err := state.store.GetVideo(c.Param("id"))
			if err != nil {
				abortWithError(c, err)
				return
			}
			if services.IsRemote(v.FilePath) {
				u, err := state.videoService.GenerateSignedURL(c.Request.Context(), v.FilePath, StreamURLExpiry)
				if err != nil {
					abortWithError(c, err)
					return
				}
				c.JSON(http.StatusOK, gin.H{"url": u})
				return
			}
			if _, err := os.Stat(v.FilePath); err != nil {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "video file missing"})
				return
			}
			c.File(v.FilePath)
		})
	}
}
