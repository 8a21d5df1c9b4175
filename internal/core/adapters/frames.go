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

package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
)

// FrameExtractor writes the still frames of a video to a directory.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath string, framesDir string) ([]string, error)
}

// FFMpegFrames extracts every frame with ffmpeg as numbered images.
type FFMpegFrames struct {
	runner  *Runner
	pattern string
}

// NewFFMpegFrames creates the extractor from the [frames] config section.
func NewFFMpegFrames(cfg cloud.FramesConfig) *FFMpegFrames {
	command := cfg.Command
	if command == "" {
		command = "ffmpeg"
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "%06d.jpg"
	}
	return &FFMpegFrames{
		runner:  NewRunner("ffmpeg", command, "", "", 0, 0),
		pattern: pattern,
	}
}

// Extract runs ffmpeg and returns the written frames sorted by name.
func (f *FFMpegFrames) Extract(ctx context.Context, videoPath string, framesDir string) ([]string, error) {
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating frames dir: %w", err)
	}
	_, err := f.runner.Run(ctx,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		filepath.Join(framesDir, f.pattern))
	if err != nil {
		return nil, err
	}
	return ListImages(framesDir)
}
