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

package model

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var (
	validVideoStatuses = []string{VideoStatusUploaded, VideoStatusProcessing, VideoStatusProcessed, VideoStatusError}
	validMusicActions  = []string{MusicActionStart, MusicActionStop, MusicActionFadeIn, MusicActionFadeOut}
)

func unit(v float64) bool { return v >= 0 && v <= 1 }

// finite rejects NaN and both infinities, which cannot be written as JSON.
func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func nonNegative(v float64) bool { return finite(v) && v >= 0 }

// Valid reports whether both coordinates are finite.
func (p Point2D) Valid() bool { return finite(p.X) && finite(p.Y) }

// Valid reports whether all three coordinates are finite.
func (p Point3D) Valid() bool { return finite(p.X) && finite(p.Y) && finite(p.Z) }

// ValidHexColor reports whether color is #RRGGBB.
func ValidHexColor(color string) bool {
	return hexColor.MatchString(color)
}

// Validate returns one message per problem; an empty slice means valid.
func (p *Project) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name must not be empty")
	}
	return errs
}

func (v *Video) Validate() []string {
	var errs []string
	if strings.TrimSpace(v.Filename) == "" {
		errs = append(errs, "filename must not be empty")
	}
	if strings.TrimSpace(v.FilePath) == "" {
		errs = append(errs, "file_path must not be empty")
	}
	if !nonNegative(v.Duration) {
		errs = append(errs, "duration must be non-negative")
	}
	if v.FPS <= 0 {
		errs = append(errs, "fps must be a positive integer")
	}
	if !slices.Contains(validVideoStatuses, v.Status) {
		errs = append(errs, fmt.Sprintf("status must be one of: %s", strings.Join(validVideoStatuses, ", ")))
	}
	return errs
}

func (a *Actor) Validate() []string {
	var errs []string
	if strings.TrimSpace(a.Name) == "" {
		errs = append(errs, "name must not be empty")
	}
	if !ValidHexColor(a.Color) {
		errs = append(errs, "color must be a hex color code such as #FF5733")
	}
	return errs
}

func (s *TranscriptSegment) Validate() []string {
	var errs []string
	if !nonNegative(s.StartTime) {
		errs = append(errs, "start_time must be non-negative")
	}
	if !nonNegative(s.EndTime) {
		errs = append(errs, "end_time must be non-negative")
	}
	if !(s.StartTime < s.EndTime) {
		errs = append(errs, "start_time must be less than end_time")
	}
	if !unit(s.Confidence) {
		errs = append(errs, "confidence must be between 0.0 and 1.0")
	}
	return errs
}

func (p *ActorPosition) Validate() []string {
	var errs []string
	if p.ActorId == "" {
		errs = append(errs, "actor_id is required")
	}
	if !nonNegative(p.Timestamp) {
		errs = append(errs, "timestamp must be non-negative")
	}
	if !p.Position2D.Valid() {
		errs = append(errs, "position_2d must have finite coordinates")
	}
	if !unit(p.Confidence) {
		errs = append(errs, "confidence must be between 0.0 and 1.0")
	}
	return errs
}

func (c RGB) valid() bool {
	in := func(v int) bool { return v >= 0 && v <= 255 }
	return in(c.R) && in(c.G) && in(c.B)
}

func (l *LightState) Validate() []string {
	var errs []string
	if l.LightId == "" {
		errs = append(errs, "light_id is required")
	}
	if !l.Color.valid() {
		errs = append(errs, "color channels must be between 0 and 255")
	}
	if !unit(l.Intensity) {
		errs = append(errs, "intensity must be between 0.0 and 1.0")
	}
	return errs
}

func (c *LightingCue) Validate() []string {
	var errs []string
	if !nonNegative(c.Timestamp) {
		errs = append(errs, "timestamp must be non-negative")
	}
	for i := range c.Lights {
		for _, e := range c.Lights[i].Validate() {
			errs = append(errs, fmt.Sprintf("lights[%d]: %s", i, e))
		}
	}
	if !nonNegative(c.TransitionDuration) {
		errs = append(errs, "transition_duration must be non-negative")
	}
	return errs
}

func (c *MusicCue) Validate() []string {
	var errs []string
	if !nonNegative(c.Timestamp) {
		errs = append(errs, "timestamp must be non-negative")
	}
	if !slices.Contains(validMusicActions, c.Action) {
		errs = append(errs, fmt.Sprintf("action must be one of: %s", strings.Join(validMusicActions, ", ")))
	}
	if !unit(c.Volume) {
		errs = append(errs, "volume must be between 0.0 and 1.0")
	}
	if !nonNegative(c.FadeDuration) {
		errs = append(errs, "fade_duration must be non-negative")
	}
	return errs
}
