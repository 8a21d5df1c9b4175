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

package converter

import (
	"math"
	"sort"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// Speeds returns the stage-plane speed between consecutive positions of one
// person. Pairs whose time delta is not positive are skipped.
func Speeds(positions []model.PersonPosition) []model.SpeedEntry {
	out := make([]model.SpeedEntry, 0)
	for i := 1; i < len(positions); i++ {
		prev, cur := positions[i-1], positions[i]
		dt := cur.Timestamp - prev.Timestamp
		if dt <= 0 {
			continue
		}
		dx := cur.Position2D.X - prev.Position2D.X
		dy := cur.Position2D.Y - prev.Position2D.Y
		out = append(out, model.SpeedEntry{
			FrameNumber: cur.FrameNumber,
			Speed:       math.Hypot(dx, dy) / dt,
			Direction:   model.Direction{X: dx / dt, Y: dy / dt},
		})
	}
	return out
}

// BoundaryEvents flags positions outside [0,width] x [0,height]. Each event
// names one boundary, checked in the order left, right, top, bottom.
//
// The pre-clamp position is checked when the converter recorded one, so
// positions pushed back onto the stage by clamping are still reported.
// Positions without it are checked as they are.
func BoundaryEvents(positions []model.PersonPosition, width float64, height float64) []model.BoundaryEvent {
	out := make([]model.BoundaryEvent, 0)
	for _, p := range positions {
		at := p.Position2D
		if p.UnclampedPosition2D != nil {
			at = *p.UnclampedPosition2D
		}

		var boundary string
		switch {
		case at.X < 0:
			boundary = model.BoundaryLeft
		case at.X > width:
			boundary = model.BoundaryRight
		case at.Y < 0:
			boundary = model.BoundaryTop
		case at.Y > height:
			boundary = model.BoundaryBottom
		default:
			continue
		}
		out = append(out, model.BoundaryEvent{
			FrameNumber:  p.FrameNumber,
			Timestamp:    p.Timestamp,
			PersonID:     p.PersonID,
			BoundaryType: boundary,
			Position:     at,
		})
	}
	return out
}

// GroupByPerson splits positions per person, each series ordered by frame.
// The relative order of equal frames is kept.
func GroupByPerson(positions []model.PersonPosition) map[string][]model.PersonPosition {
	out := make(map[string][]model.PersonPosition)
	for _, p := range positions {
		out[p.PersonID] = append(out[p.PersonID], p)
	}
	for id := range out {
		series := out[id]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].FrameNumber < series[j].FrameNumber
		})
	}
	return out
}

// Analyze computes speeds and boundary events for every person.
//
// Inputs:
//   - positions: Converted positions of any number of people, in any order.
//   - width, height: The stage size in stage units.
//
// Outputs:
//   - []model.PersonAnalytics: One entry per person, ordered by person ID.
func Analyze(positions []model.PersonPosition, width float64, height float64) []model.PersonAnalytics {
	groups := GroupByPerson(positions)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.PersonAnalytics, 0, len(ids))
	for _, id := range ids {
		series := groups[id]
		speeds := Speeds(series)
		a := model.PersonAnalytics{
			PersonID:       id,
			PositionCount:  len(series),
			Speeds:         speeds,
			BoundaryEvents: BoundaryEvents(series, width, height),
		}
		if len(speeds) > 0 {
			sum := 0.0
			for _, s := range speeds {
				sum += s.Speed
				a.MaxSpeed = math.Max(a.MaxSpeed, s.Speed)
			}
			a.AverageSpeed = sum / float64(len(speeds))
		}
		out = append(out, a)
	}
	return out
}

// PersonIDs returns the distinct person IDs in positions, sorted.
func PersonIDs(positions []model.PersonPosition) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, p := range positions {
		if !seen[p.PersonID] {
			seen[p.PersonID] = true
			ids = append(ids, p.PersonID)
		}
	}
	sort.Strings(ids)
	return ids
}
