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

// This file defines the command that fuses tracks, depth frames and the stage
// calibration into stage positions.
//
// Logic Flow:
//  1. Read the tracks, the depth result and the request from the context.
//  2. Run the converter. Its worker pool converts tracks in parallel and keeps
//     their order.
//  3. An invalid calibration fails the run. Tracks that cannot be resolved are
//     only counted: `<name>.tracks.skipped` (by reason) and
//     `<name>.positions.emitted`.
//  4. Store the positions under ParamPositions and the report under
//     ParamReport.
package commands

import (
	"fmt"
	"log"

	"github.com/Tinuvile/rehearseOnline/internal/core/converter"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StageConverter converts tracks into stage positions.
type StageConverter struct {
	cor.BaseCommand
	converter       *converter.Converter
	skippedCounter  metric.Int64Counter // <name>.tracks.skipped
	positionCounter metric.Int64Counter // <name>.positions.emitted
}

// NewStageConverter is the constructor for the StageConverter command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - conv: The converter, built with the worker count of the application.
func NewStageConverter(name string, conv *converter.Converter) *StageConverter {
	out := &StageConverter{BaseCommand: *cor.NewBaseCommand(name), converter: conv}
	out.InputParamName = ParamTracks
	out.OutputParamName = ParamPositions

	var err error
	out.skippedCounter, err = out.GetMeter().Int64Counter(fmt.Sprintf("%s.tracks.skipped", name))
	if err != nil {
		log.Printf("error creating skipped counter for command '%s': %v\n", name, err)
	}
	out.positionCounter, err = out.GetMeter().Int64Counter(fmt.Sprintf("%s.positions.emitted", name))
	if err != nil {
		log.Printf("error creating positions counter for command '%s': %v\n", name, err)
	}
	return out
}

// IsExecutable needs the tracks, the depth result and the request.
func (c *StageConverter) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(ParamDepth) != nil &&
		context.Get(ParamRequest) != nil
}

// Execute converts the tracks.
func (c *StageConverter) Execute(context cor.Context) {
	tracks := context.Get(c.GetInputParam()).([]model.Track)
	depth := context.Get(ParamDepth).(*model.DepthResult)
	req := context.Get(ParamRequest).(*model.ConversionRequest)
	ctx := context.GetContext()

	positions, report, err := c.converter.Convert(ctx, tracks, depth.Frames, req.StageAnnotation, req.TrackingPersonID)
	if err != nil {
		c.Fail(context, fmt.Errorf("stage conversion failed: %w", err))
		return
	}

	for reason, n := range report.Skipped {
		c.skippedCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	}
	c.positionCounter.Add(ctx, int64(report.Emitted))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("tracks", report.Tracks),
		attribute.Int("positions", report.Emitted),
		attribute.Int("skipped", report.SkippedTotal()),
	)

	c.Succeed(context)
	context.Add(ParamReport, report)
	context.Add(c.GetOutputParam(), positions)
}
