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

// Package model defines the data structures shared across the service.
//
// The types in this file live only for the duration of a conversion run. They
// flow between the pipeline commands: the pose tool produces Detections, the
// tracker turns them into Tracks, the depth tool produces DepthFrames, and the
// converter fuses all of them into PersonPositions.
package model

import "math"

// Point2D is a point in image pixels or stage metres, depending on context.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance is the Euclidean distance between p and q.
func (p Point2D) Distance(q Point2D) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Point3D is a camera-relative position in metres.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Keypoint is one named body joint.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// MinKeypointConfidence is the confidence a keypoint needs to contribute to a
// centroid.
const MinKeypointConfidence = 0.1

// Detection is one candidate person found by the pose tool in one frame.
type Detection struct {
	FrameNumber int       `json:"frame_number"`
	ImageID     string    `json:"image_id,omitempty"`
	CategoryID  int       `json:"category_id,omitempty"`
	BBox        []float64 `json:"bbox"`      // x, y, width, height in pixels.
	Keypoints   []float64 `json:"keypoints"` // Flat x, y, confidence triples.
	Score       float64   `json:"score"`
}

// BBoxCenter returns the bounding box centroid. ok is false when the box has
// fewer than four values or a non-finite value.
func (d *Detection) BBoxCenter() (center Point2D, ok bool) {
	if len(d.BBox) < 4 {
		return Point2D{}, false
	}
	for _, v := range d.BBox[:4] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Point2D{}, false
		}
	}
	return Point2D{X: d.BBox[0] + d.BBox[2]/2, Y: d.BBox[1] + d.BBox[3]/2}, true
}

// KeypointCenter returns the mean of the keypoints whose confidence exceeds
// MinKeypointConfidence. ok is false when there are none.
func (d *Detection) KeypointCenter() (center Point2D, ok bool) {
	var sx, sy float64
	n := 0
	for i := 0; i+2 < len(d.Keypoints); i += 3 {
		if d.Keypoints[i+2] > MinKeypointConfidence {
			sx += d.Keypoints[i]
			sy += d.Keypoints[i+1]
			n++
		}
	}
	if n == 0 {
		return Point2D{}, false
	}
	return Point2D{X: sx / float64(n), Y: sy / float64(n)}, true
}

// Center is the bounding box centroid, falling back to the keypoint centroid.
func (d *Detection) Center() (Point2D, bool) {
	if c, ok := d.BBoxCenter(); ok {
		return c, true
	}
	return d.KeypointCenter()
}

// Track is a Detection with an identity. CenterPoint is nil when neither the
// bounding box nor the keypoints gave a usable centroid.
type Track struct {
	Detection
	PersonID    string   `json:"person_id"`
	CenterPoint *Point2D `json:"center_point,omitempty"`
}

// ImagePosition resolves the pixel used for depth sampling: the tracked centre
// first, then the bounding box centroid, then the keypoint centroid.
func (t *Track) ImagePosition() (Point2D, bool) {
	if t.CenterPoint != nil {
		return *t.CenterPoint, true
	}
	return t.Detection.Center()
}

// DepthFrame is one frame's dense depth map plus summary statistics normalised
// to [0,1].
type DepthFrame struct {
	FrameNumber int     `json:"frame_number"`
	FrameFile   string  `json:"frame_file,omitempty"`
	DepthFile   string  `json:"depth_file"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	MinDepth    float64 `json:"min_depth"`
	MaxDepth    float64 `json:"max_depth"`
	MeanDepth   float64 `json:"mean_depth"`
}

// StageAnnotation is the user's planar calibration of the stage. Corners are
// ordered top-left, top-right, bottom-right, bottom-left.
type StageAnnotation struct {
	Corners        []Point2D `json:"corners"`
	DepthReference float64   `json:"depth_reference"`
	RealWidth      float64   `json:"real_width"`
	RealHeight     float64   `json:"real_height"`
}

// PersonPosition is one person in one frame, in camera space and on the stage
// plane. Position2D is always inside the stage rectangle; the pre-clamp value
// is kept in UnclampedPosition2D for boundary analysis.
type PersonPosition struct {
	FrameNumber         int                 `json:"frame_number"`
	Timestamp           float64             `json:"timestamp"`
	PersonID            string              `json:"person_id"`
	Position3D          Point3D             `json:"position_3d"`
	Position2D          Point2D             `json:"position_2d"`
	Confidence          float64             `json:"confidence"`
	UnclampedPosition2D *Point2D            `json:"unclamped_position_2d,omitempty"`
	PlanePosition2D     *Point2D            `json:"plane_position_2d,omitempty"`
	Keypoints           map[string]Keypoint `json:"keypoints,omitempty"`
}

// Direction is a velocity vector on the stage plane in metres per second.
type Direction struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SpeedEntry is the speed between a position and the one before it.
type SpeedEntry struct {
	FrameNumber int       `json:"frame_number"`
	Speed       float64   `json:"speed"`
	Direction   Direction `json:"direction"`
}

// Boundary names reported by boundary detection.
const (
	BoundaryLeft   = "left"
	BoundaryRight  = "right"
	BoundaryTop    = "top"
	BoundaryBottom = "bottom"
)

// BoundaryEvent flags a position outside the stage rectangle.
type BoundaryEvent struct {
	FrameNumber  int     `json:"frame_number"`
	Timestamp    float64 `json:"timestamp"`
	PersonID     string  `json:"person_id"`
	BoundaryType string  `json:"boundary_type"`
	Position     Point2D `json:"position"`
}

// PersonAnalytics groups the movement analysis of one person.
type PersonAnalytics struct {
	PersonID       string          `json:"person_id"`
	PositionCount  int             `json:"position_count"`
	Speeds         []SpeedEntry    `json:"speeds"`
	AverageSpeed   float64         `json:"average_speed"`
	MaxSpeed       float64         `json:"max_speed"`
	BoundaryEvents []BoundaryEvent `json:"boundary_events"`
}

// PoseResult is the parsed output of a pose tool run.
type PoseResult struct {
	OutputDir  string      `json:"output_dir"`
	Detections []Detection `json:"detections"`
	FrameFiles []string    `json:"frame_files,omitempty"`
}

// DepthResult is the parsed output of a depth tool run.
type DepthResult struct {
	OutputDir string       `json:"output_dir"`
	Frames    []DepthFrame `json:"frames"`
}

// ByFrame indexes the depth frames by frame number. The first frame wins when
// a number repeats.
func (r *DepthResult) ByFrame() map[int]DepthFrame {
	out := make(map[int]DepthFrame, len(r.Frames))
	for _, f := range r.Frames {
		if _, ok := out[f.FrameNumber]; !ok {
			out[f.FrameNumber] = f
		}
	}
	return out
}

// ConversionRequest asks for a video to be converted to stage positions. It is
// the body of the REST call and of the Pub/Sub trigger.
type ConversionRequest struct {
	VideoID          string          `json:"video_id"`
	StageAnnotation  StageAnnotation `json:"stage_annotation"`
	TrackingPersonID string          `json:"tracking_person_id,omitempty"`
	Export           bool            `json:"export,omitempty"` // Also write positions to BigQuery.

	// RunID names the run that claimed the video. It is set by the server, never decoded.
	RunID string `json:"-"`
}

// Video3DTo2DResult is the outcome of a conversion run, written to result.json.
type Video3DTo2DResult struct {
	VideoID         string           `json:"video_id"`
	Status          string           `json:"status"`
	StageAnnotation StageAnnotation  `json:"stage_annotation"`
	Positions       []PersonPosition `json:"positions"`
	ProcessingTime  float64          `json:"processing_time"`
	FrameCount      int              `json:"frame_count"`
	PersonsDetected []string         `json:"persons_detected"`
	SkippedTracks   int              `json:"skipped_tracks"`
}
