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

// Package tracker assigns stable person IDs to pose detections using only
// positional continuity between frames.
//
// The default CentroidTracker is greedy and single pass. Each detection is
// matched to the nearest known person whose last centroid lies strictly
// within MaxDistance pixels, otherwise a new ID is minted. Within a frame the
// known set is not narrowed as IDs are claimed, so two detections close to the
// same person both receive that person's ID (first match wins, in detection
// order). IDs are never retired.
package tracker

import (
	"fmt"
	"math"
	"sort"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// DefaultMaxDistance is the match radius in pixels.
const DefaultMaxDistance = 100.0

// Tracker labels detections with person IDs.
type Tracker interface {
	// Track returns one Track per detection, sorted by frame number. The input
	// slice is not modified.
	Track(detections []model.Detection) []model.Track
}

// TrackerConfig configures a CentroidTracker.
type TrackerConfig struct {
	MaxDistance float64 // Match radius in pixels, DefaultMaxDistance when <= 0.
	IDPrefix    string  // Prefix of minted IDs, "person_" when empty.
}

type activePerson struct {
	id     string
	center model.Point2D
}

// CentroidTracker is the nearest-centroid Tracker. It is stateless between
// calls to Track.
type CentroidTracker struct {
	maxDistance float64
	prefix      string
}

// NewCentroidTracker creates a tracker from config.
func NewCentroidTracker(config TrackerConfig) *CentroidTracker {
	t := &CentroidTracker{maxDistance: config.MaxDistance, prefix: config.IDPrefix}
	if t.maxDistance <= 0 {
		t.maxDistance = DefaultMaxDistance
	}
	if t.prefix == "" {
		t.prefix = "person_"
	}
	return t
}

// Track implements Tracker.
func (t *CentroidTracker) Track(detections []model.Detection) []model.Track {
	if len(detections) == 0 {
		return []model.Track{}
	}

	ordered := make([]model.Detection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FrameNumber < ordered[j].FrameNumber
	})

	// A slice rather than a map keeps matching independent of iteration order.
	active := make([]activePerson, 0)
	nextID := 1
	mint := func() string {
		id := fmt.Sprintf("%s%d", t.prefix, nextID)
		nextID++
		return id
	}

	out := make([]model.Track, 0, len(ordered))
	for _, d := range ordered {
		track := model.Track{Detection: d}

		center, ok := d.Center()
		if !ok {
			track.PersonID = mint()
			out = append(out, track)
			continue
		}
		c := center
		track.CenterPoint = &c

		best := -1
		minDistance := math.Inf(1)
		for i, p := range active {
			distance := center.Distance(p.center)
			if distance < minDistance && distance < t.maxDistance {
				minDistance = distance
				best = i
			}
		}

		if best < 0 {
			track.PersonID = mint()
			active = append(active, activePerson{id: track.PersonID, center: center})
		} else {
			track.PersonID = active[best].id
			active[best].center = center
		}
		out = append(out, track)
	}
	return out
}

// PersonIDs returns the distinct IDs in tracks in order of first appearance.
func PersonIDs(tracks []model.Track) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, t := range tracks {
		if !seen[t.PersonID] {
			seen[t.PersonID] = true
			ids = append(ids, t.PersonID)
		}
	}
	return ids
}
