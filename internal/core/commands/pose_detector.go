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
	"fmt"
	"path/filepath"

	"github.com/Tinuvile/rehearseOnline/internal/core/adapters"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PoseDetector runs the pose tool over the conversion's video and stores the
// parsed detections under ParamPose. A tool failure fails the run.
type PoseDetector struct {
	cor.BaseCommand
	detector adapters.PoseDetector
}

// NewPoseDetector is the constructor for the PoseDetector command.
func NewPoseDetector(name string, detector adapters.PoseDetector) *PoseDetector {
	out := &PoseDetector{BaseCommand: *cor.NewBaseCommand(name), detector: detector}
	out.InputParamName = ParamVideoFile
	out.OutputParamName = ParamPose
	return out
}

// Execute runs pose detection.
func (c *PoseDetector) Execute(context cor.Context) {
	video := context.Get(c.GetInputParam()).(string)
	dir := filepath.Join(context.Get(ParamWorkDir).(string), PoseOutputDirName)

	result, err := c.detector.Detect(context.GetContext(), video, dir)
	if err != nil {
		c.Fail(context, fmt.Errorf("pose detection failed: %w", err))
		return
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(attribute.Int("detections", len(result.Detections)))

	c.Succeed(context)
	context.AddTempFile(dir)
	context.Add(c.GetOutputParam(), result)
}
