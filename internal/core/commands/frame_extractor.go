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

// This file defines the command that splits a video into still frames with
// FFmpeg.
//
// Logic Flow:
// The depth tool works on single images, so the video is exploded into
// numbered frames first. The frame number in each file name is what later
// pairs a depth map with the pose detections of the same frame.
//
//  1. Get the local video path and the work directory from the context.
//  2. Run the extractor into <work_dir>/frames.
//  3. Track the frames directory for cleanup and store it under ParamFramesDir.
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/Tinuvile/rehearseOnline/internal/core/adapters"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FrameExtractor runs frame extraction for the conversion's video.
type FrameExtractor struct {
	cor.BaseCommand
	extractor adapters.FrameExtractor
}

// NewFrameExtractor is the constructor for the FrameExtractor command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - extractor: The frame extraction tool, usually adapters.FFMpegFrames.
func NewFrameExtractor(name string, extractor adapters.FrameExtractor) *FrameExtractor {
	out := &FrameExtractor{BaseCommand: *cor.NewBaseCommand(name), extractor: extractor}
	out.InputParamName = ParamVideoFile
	out.OutputParamName = ParamFramesDir
	return out
}

// Execute extracts the frames.
func (c *FrameExtractor) Execute(context cor.Context) {
	video := context.Get(c.GetInputParam()).(string)
	dir := filepath.Join(context.Get(ParamWorkDir).(string), FramesDirName)

	frames, err := c.extractor.Extract(context.GetContext(), video, dir)
	if err != nil {
		c.Fail(context, fmt.Errorf("error extracting frames: %w", err))
		return
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(attribute.Int("frames", len(frames)))

	c.Succeed(context)
	context.AddTempFile(dir)
	context.Add(c.GetOutputParam(), dir)
}
