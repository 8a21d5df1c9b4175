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

// DepthEstimator runs the depth tool over the extracted frames and stores the
// depth frames under ParamDepth.
type DepthEstimator struct {
	cor.BaseCommand
	estimator adapters.DepthEstimator
}

// NewDepthEstimator is the constructor for the DepthEstimator command.
func NewDepthEstimator(name string, estimator adapters.DepthEstimator) *DepthEstimator {
	out := &DepthEstimator{BaseCommand: *cor.NewBaseCommand(name), estimator: estimator}
	out.InputParamName = ParamFramesDir
	out.OutputParamName = ParamDepth
	return out
}

// Execute runs depth estimation.
func (c *DepthEstimator) Execute(context cor.Context) {
	frames := context.Get(c.GetInputParam()).(string)
	dir := filepath.Join(context.Get(ParamWorkDir).(string), DepthOutputDirName)

	result, err := c.estimator.Estimate(context.GetContext(), frames, dir)
	if err != nil {
		c.Fail(context, fmt.Errorf("depth estimation failed: %w", err))
		return
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(attribute.Int("depth_frames", len(result.Frames)))

	c.Succeed(context)
	context.AddTempFile(dir)
	context.Add(c.GetOutputParam(), result)
}
