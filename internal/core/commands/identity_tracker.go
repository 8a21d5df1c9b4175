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
	"log/slog"

	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// IdentityTracker labels the pose detections with person IDs.
type IdentityTracker struct {
	cor.BaseCommand
	tracker tracker.Tracker
}

// NewIdentityTracker is the constructor for the IdentityTracker command.
func NewIdentityTracker(name string, t tracker.Tracker) *IdentityTracker {
	out := &IdentityTracker{BaseCommand: *cor.NewBaseCommand(name), tracker: t}
	out.InputParamName = ParamPose
	out.OutputParamName = ParamTracks
	return out
}

// Execute tracks the detections.
func (c *IdentityTracker) Execute(context cor.Context) {
	pose := context.Get(c.GetInputParam()).(*model.PoseResult)

	tracks := c.tracker.Track(pose.Detections)
	persons := tracker.PersonIDs(tracks)
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("tracks", len(tracks)),
		attribute.Int("persons", len(persons)),
	)
	slog.InfoContext(context.GetContext(), "tracking finished", "tracks", len(tracks), "persons", len(persons))

	c.Succeed(context)
	context.Add(c.GetOutputParam(), tracks)
}
