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

package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/google/uuid"
)

// ConversionDirName groups the per video work directories.
const ConversionDirName = "video_3d_to_2d"

// VideoResolver looks up the requested video, claims it for this run and
// prepares its work directory. A video already claimed by another run fails
// with store.ErrBusy, and neither run's state is touched. Videos stored in GCS are handed to
// GCSToTempFile through the GCS object parameter; local videos go straight
// to ParamVideoFile.
type VideoResolver struct {
	cor.BaseCommand
	store   *store.Store
	workDir string
}

// NewVideoResolver is the constructor for the VideoResolver command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - store: The project store holding the videos.
//   - workDir: The root work directory from the application config.
func NewVideoResolver(name string, store *store.Store, workDir string) *VideoResolver {
	out := &VideoResolver{BaseCommand: *cor.NewBaseCommand(name), store: store, workDir: workDir}
	out.InputParamName = ParamRequest
	return out
}

// WorkDirFor is the directory holding the intermediate files and result of a
// video's conversion.
func WorkDirFor(root string, videoID string) string {
	return filepath.Join(root, ConversionDirName, videoID)
}

// Execute resolves the video.
func (c *VideoResolver) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.ConversionRequest)

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	video, err := c.store.ClaimProcessing(req.VideoID, model.ProcessingKey3DTo2D, req.RunID)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrBusy):
		c.Fail(context, cor.Permanent(err))
		return
	case err != nil && !errors.Is(err, store.ErrNotPersisted):
		c.Fail(context, err)
		return
	}

	dir := WorkDirFor(c.workDir, video.Id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Fail(context, fmt.Errorf("creating work dir %s: %w", dir, err))
		return
	}
	context.Add(ParamWorkDir, dir)

	if strings.HasPrefix(video.FilePath, "gs://") {
		obj, err := cloud.ParseGCSURI(video.FilePath)
		if err != nil {
			c.Fail(context, cor.Permanent(err))
			return
		}
		context.Add(cloud.GetGCSObjectName(), obj)
		context.Add(c.GetOutputParam(), obj)
	} else {
		if _, err := os.Stat(video.FilePath); err != nil {
			c.Fail(context, cor.Permanent(fmt.Errorf("video file of %s: %w", video.Id, err)))
			return
		}
		context.Add(ParamVideoFile, video.FilePath)
		context.Add(c.GetOutputParam(), video.FilePath)
	}

	slog.InfoContext(context.GetContext(), "video resolved", "video_id", video.Id, "run_id", req.RunID, "file", video.FilePath, "work_dir", dir)
	c.Succeed(context)
}
