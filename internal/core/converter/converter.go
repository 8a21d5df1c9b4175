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

// Package converter fuses tracked pose detections, per-frame depth maps and
// the stage calibration into stage-plane positions, and derives movement
// analytics from the resulting series.
//
// For each track the image position is lifted into camera space with a fixed
// field of view camera, where depth = (1 - sample) * DepthScale + DepthOffset.
// The camera-space x and y are then rescaled to the calibration's reference
// depth, shifted so the stage centre is the origin of the lens axis, and
// clamped into the stage rectangle.
//
// Tracks that cannot be resolved (no depth frame, no image position, an
// unreadable depth map) are skipped and counted; they never fail a run. Only
// an invalid calibration fails the whole conversion.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Tinuvile/rehearseOnline/internal/core/calibration"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// DepthSampler returns the normalised depth of frame at pixel p.
type DepthSampler interface {
	Sample(frame model.DepthFrame, p model.Point2D) (float64, error)
}

// CameraModel holds the fixed assumptions used to lift pixels into 3D.
type CameraModel struct {
	FPS           float64 // Frame rate used for timestamps.
	HorizontalFOV float64 // Degrees.
	VerticalFOV   float64 // Degrees.
	DefaultWidth  int     // Used when a depth frame carries no size.
	DefaultHeight int
	DepthScale    float64
	DepthOffset   float64
	MinDepth      float64 // Floor for z in the reference depth rescale.
}

// DefaultCameraModel is 30 fps, 70 x 45 degrees, depth mapped into [1,11] m.
func DefaultCameraModel() CameraModel {
	return CameraModel{
		FPS:           30,
		HorizontalFOV: 70,
		VerticalFOV:   45,
		DefaultWidth:  1920,
		DefaultHeight: 1080,
		DepthScale:    10,
		DepthOffset:   1,
		MinDepth:      0.1,
	}
}

// ActualDepth converts a normalised depth sample to metres from the camera.
func (m CameraModel) ActualDepth(sample float64) float64 {
	return (1-sample)*m.DepthScale + m.DepthOffset
}

// Lift maps an image pixel with a depth sample to camera space. y is positive
// up.
func (m CameraModel) Lift(pixel model.Point2D, sample float64, width int, height int) model.Point3D {
	if width <= 0 {
		width = m.DefaultWidth
	}
	if height <= 0 {
		height = m.DefaultHeight
	}
	normX := pixel.X/float64(width)*2 - 1
	normY := pixel.Y/float64(height)*2 - 1
	depth := m.ActualDepth(sample)
	return model.Point3D{
		X: normX * depth * math.Tan(radians(m.HorizontalFOV/2)),
		Y: -normY * depth * math.Tan(radians(m.VerticalFOV/2)),
		Z: depth,
	}
}

// ToStage rescales p to the reference depth and centres it on the stage. The
// result is not clamped.
func (m CameraModel) ToStage(p model.Point3D, transform *calibration.StageTransform) model.Point2D {
	scale := transform.DepthReference / math.Max(p.Z, m.MinDepth)
	return model.Point2D{
		X: p.X*scale + transform.RealWidth/2,
		Y: p.Y*scale + transform.RealHeight/2,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ErrNonFinite is returned by ConvertTrack when the depth sample or the
// computed position is NaN or infinite.
var ErrNonFinite = errors.New("non-finite value")

// Skip reasons reported in Report.
const (
	SkipNoDepthFrame    = "no_depth_frame"
	SkipNoPosition      = "no_image_position"
	SkipDepthUnreadable = "depth_unreadable"
	SkipPanic           = "conversion_panic"
)

// Report summarises a conversion run.
type Report struct {
	Tracks  int            // Tracks considered after the person filter.
	Emitted int            // Positions produced.
	Skipped map[string]int // Skipped tracks by reason.
}

// SkippedTotal is the number of tracks that produced no position.
func (r Report) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// Option configures a Converter.
type Option func(*Converter)

// WithWorkers sets the number of goroutines converting tracks. Values below
// one mean one.
func WithWorkers(n int) Option {
	return func(c *Converter) { c.workers = max(1, n) }
}

// WithLogger sets the logger used for skipped tracks.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

// WithKeypoints attaches named keypoints to each position.
func WithKeypoints(enabled bool) Option {
	return func(c *Converter) { c.keypoints = enabled }
}

// Converter turns tracks into stage positions. It is safe for concurrent use.
type Converter struct {
	camera    CameraModel
	sampler   DepthSampler
	workers   int
	logger    *slog.Logger
	keypoints bool
}

// NewConverter creates a Converter reading depth through sampler.
func NewConverter(camera CameraModel, sampler DepthSampler, opts ...Option) *Converter {
	c := &Converter{
		camera:  camera,
		sampler: sampler,
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.camera.FPS <= 0 {
		c.camera.FPS = DefaultCameraModel().FPS
	}
	return c
}

// IndexDepthFrames indexes frames by number. The first frame wins when a
// number repeats; later duplicates are logged and dropped.
func (c *Converter) IndexDepthFrames(ctx context.Context, frames []model.DepthFrame) map[int]model.DepthFrame {
	index := make(map[int]model.DepthFrame, len(frames))
	for _, f := range frames {
		if _, ok := index[f.FrameNumber]; ok {
			c.logger.WarnContext(ctx, "duplicate depth frame dropped",
				"frame_number", f.FrameNumber, "depth_file", f.DepthFile)
			continue
		}
		index[f.FrameNumber] = f
	}
	return index
}

type slot struct {
	position *model.PersonPosition
	reason   string
}

// Convert produces one PersonPosition per track that resolves, in track order.
//
// Inputs:
//   - ctx: Cancels the run. Workers stop picking up tracks once it is done.
//   - tracks: The tracker output. Each track is matched to the depth frame
//     with the same frame number.
//   - depth: Depth frame descriptors for the video.
//   - annotation: The stage calibration used to build the StageTransform.
//   - personID: When not empty only that person's tracks are converted.
//
// Outputs:
//   - []model.PersonPosition: The resolved positions, in track order.
//   - Report: Counts of converted tracks and of skipped tracks by reason.
//   - error: A calibration error for an invalid annotation, or ctx.Err() when
//     the run was cancelled. Skipped tracks never produce an error.
func (c *Converter) Convert(
	ctx context.Context,
	tracks []model.Track,
	depth []model.DepthFrame,
	annotation model.StageAnnotation,
	personID string,
) ([]model.PersonPosition, Report, error) {
	report := Report{Skipped: make(map[string]int)}

	transform, err := calibration.NewStageTransform(annotation)
	if err != nil {
		return nil, report, err
	}

	selected := tracks
	if personID != "" {
		selected = make([]model.Track, 0)
		for _, t := range tracks {
			if t.PersonID == personID {
				selected = append(selected, t)
			}
		}
	}
	report.Tracks = len(selected)

	index := c.IndexDepthFrames(ctx, depth)
	slots := make([]slot, len(selected))

	jobs := make(chan int, len(selected))
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				slots[i] = c.convertOne(ctx, selected[i], index, transform)
			}
		}()
	}
	for i := range selected {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	positions := make([]model.PersonPosition, 0, len(selected))
	for _, s := range slots {
		if s.position == nil {
			report.Skipped[s.reason]++
			continue
		}
		positions = append(positions, *s.position)
	}
	report.Emitted = len(positions)
	return positions, report, nil
}

func (c *Converter) convertOne(
	ctx context.Context,
	track model.Track,
	index map[int]model.DepthFrame,
	transform *calibration.StageTransform,
) (out slot) {
	defer func() {
		if r := recover(); r != nil {
			c.skip(ctx, track, SkipPanic, fmt.Errorf("%v", r))
			out = slot{reason: SkipPanic}
		}
	}()

	frame, ok := index[track.FrameNumber]
	if !ok {
		c.skip(ctx, track, SkipNoDepthFrame, nil)
		return slot{reason: SkipNoDepthFrame}
	}
	pixel, ok := track.ImagePosition()
	if !ok || !pixel.Valid() {
		c.skip(ctx, track, SkipNoPosition, nil)
		return slot{reason: SkipNoPosition}
	}
	position, err := c.ConvertTrack(track, pixel, frame, transform)
	if err != nil {
		c.skip(ctx, track, SkipDepthUnreadable, err)
		return slot{reason: SkipDepthUnreadable}
	}
	return slot{position: position}
}

// ConvertTrack converts one track whose image position and depth frame are
// already resolved. Image coordinates are truncated to whole pixels.
//
// Inputs:
//   - track: The detection being converted. Its person, frame and timestamp
//     are copied to the result.
//   - pixel: The image position of the track.
//   - frame: The depth frame sampled at pixel.
//   - transform: The calibrated stage transform.
//
// Outputs:
//   - model.PersonPosition: The clamped stage position with its raw
//     pre-clamp position attached.
//   - error: The sampler error, or an error wrapping ErrNonFinite when the
//     sample or any derived coordinate is NaN or infinite.
func (c *Converter) ConvertTrack(
	track model.Track,
	pixel model.Point2D,
	frame model.DepthFrame,
	transform *calibration.StageTransform,
) (*model.PersonPosition, error) {
	pixel = model.Point2D{X: math.Trunc(pixel.X), Y: math.Trunc(pixel.Y)}

	sample, err := c.sampler.Sample(frame, pixel)
	if err != nil {
		return nil, fmt.Errorf("sampling depth of frame %d: %w", frame.FrameNumber, err)
	}
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return nil, fmt.Errorf("depth of frame %d at %v is %v: %w", frame.FrameNumber, pixel, sample, ErrNonFinite)
	}

	p3 := c.camera.Lift(pixel, sample, frame.Width, frame.Height)
	raw := c.camera.ToStage(p3, transform)
	if !p3.Valid() || !raw.Valid() {
		return nil, fmt.Errorf("position of frame %d: %w", frame.FrameNumber, ErrNonFinite)
	}
	clamped := transform.Clamp(raw)

	position := &model.PersonPosition{
		FrameNumber:         track.FrameNumber,
		Timestamp:           float64(track.FrameNumber) / c.camera.FPS,
		PersonID:            track.PersonID,
		Position3D:          p3,
		Position2D:          clamped,
		Confidence:          track.Score,
		UnclampedPosition2D: &raw,
	}
	if plane, ok := transform.Project(pixel); ok {
		position.PlanePosition2D = &plane
	}
	if c.keypoints && len(track.Keypoints) > 0 {
		position.Keypoints = model.KeypointsByName(track.Keypoints)
	}
	return position, nil
}

func (c *Converter) skip(ctx context.Context, track model.Track, reason string, err error) {
	attrs := []any{"frame_number", track.FrameNumber, "person_id", track.PersonID, "reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.WarnContext(ctx, "track skipped", attrs...)
}
