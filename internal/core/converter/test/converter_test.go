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

package converter_test

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/core/calibration"
	"github.com/Tinuvile/rehearseOnline/internal/core/converter"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const tName = "github.com/Tinuvile/rehearseOnline/tests/converter"

var logger = otelslog.NewLogger(tName)

func trackAt(frame int, person string, x float64, y float64, score float64) model.Track {
	center := model.Point2D{X: x, Y: y}
	return model.Track{
		Detection:   test.PersonAt(frame, x, y, score),
		PersonID:    person,
		CenterPoint: &center,
	}
}

func newConverter(sampler converter.DepthSampler, opts ...converter.Option) *converter.Converter {
	opts = append(opts, converter.WithLogger(logger))
	return converter.NewConverter(converter.DefaultCameraModel(), sampler, opts...)
}

func TestActualDepthEndpoints(t *testing.T) {
	camera := converter.DefaultCameraModel()
	assert.InDelta(t, 1.0, camera.ActualDepth(1.0), 1e-12)
	assert.InDelta(t, 11.0, camera.ActualDepth(0.0), 1e-12)
	assert.InDelta(t, 6.0, camera.ActualDepth(0.5), 1e-12)
}

func TestScenario(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5})
	tracks := []model.Track{trackAt(10, "person_1", 450, 350, 0.87)}

	positions, report, err := c.Convert(context.Background(), tracks,
		test.DepthFrames(1920, 1080, 10), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, 10, p.FrameNumber)
	assert.Equal(t, "person_1", p.PersonID)
	assert.InDelta(t, 10.0/30.0, p.Timestamp, 1e-12)
	assert.InDelta(t, 6.0, p.Position3D.Z, 1e-12)
	assert.InDelta(t, -2.231912, p.Position3D.X, 1e-5)
	assert.InDelta(t, 0.874451, p.Position3D.Y, 1e-5)
	assert.InDelta(t, 0.140073, p.Position2D.X, 1e-5)
	assert.InDelta(t, 2.228709, p.Position2D.Y, 1e-5)
	assert.Equal(t, 0.87, p.Confidence)
	require.NotNil(t, p.PlanePosition2D)

	assert.Equal(t, 1, report.Tracks)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, 0, report.SkippedTotal())
}

func TestPositionsAreAlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	annotation := model.GetExampleStageAnnotation()

	tracks := make([]model.Track, 0, 500)
	byFrame := make(map[int]float64)
	frames := make([]int, 0, 500)
	for f := 1; f <= 500; f++ {
		tracks = append(tracks, trackAt(f, "person_1", rng.Float64()*1920, rng.Float64()*1080, 0.5))
		byFrame[f] = rng.Float64()
		frames = append(frames, f)
	}

	c := newConverter(test.StaticSampler{ByFrame: byFrame}, converter.WithWorkers(4))
	positions, _, err := c.Convert(context.Background(), tracks, test.DepthFrames(1920, 1080, frames...), annotation, "")
	require.NoError(t, err)
	require.Len(t, positions, 500)

	for i, p := range positions {
		assert.Equal(t, i+1, p.FrameNumber, "order must follow the tracks")
		assert.GreaterOrEqual(t, p.Position2D.X, 0.0)
		assert.LessOrEqual(t, p.Position2D.X, annotation.RealWidth)
		assert.GreaterOrEqual(t, p.Position2D.Y, 0.0)
		assert.LessOrEqual(t, p.Position2D.Y, annotation.RealHeight)
	}
}

func TestUnclampedPositionIsKept(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 1.0})
	// Far right edge at 1 m: well outside a 4 m stage once rescaled to 5 m.
	positions, _, err := c.Convert(context.Background(),
		[]model.Track{trackAt(1, "person_1", 1919, 540, 0.9)},
		test.DepthFrames(1920, 1080, 1), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	require.NotNil(t, p.UnclampedPosition2D)
	assert.Greater(t, p.UnclampedPosition2D.X, 4.0)
	assert.Equal(t, 4.0, p.Position2D.X)
}

func TestMissingDepthFrameIsSkipped(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5})
	tracks := []model.Track{
		trackAt(1, "person_1", 400, 300, 0.9),
		trackAt(2, "person_1", 410, 300, 0.9),
		trackAt(3, "person_1", 420, 300, 0.9),
	}

	positions, report, err := c.Convert(context.Background(), tracks,
		test.DepthFrames(1920, 1080, 1, 3), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)

	require.Len(t, positions, 2)
	assert.Equal(t, 1, positions[0].FrameNumber)
	assert.Equal(t, 3, positions[1].FrameNumber)
	assert.Equal(t, 1, report.Skipped[converter.SkipNoDepthFrame])
}

func TestUnreadableDepthAndUnknownPositionAreSkipped(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5, Fail: map[int]bool{2: true}})
	noCenter := model.Track{Detection: model.Detection{FrameNumber: 3, Score: 0.2}, PersonID: "person_2"}
	tracks := []model.Track{trackAt(1, "person_1", 400, 300, 0.9), trackAt(2, "person_1", 410, 300, 0.9), noCenter}

	positions, report, err := c.Convert(context.Background(), tracks,
		test.DepthFrames(1920, 1080, 1, 2, 3), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)

	assert.Len(t, positions, 1)
	assert.Equal(t, 1, report.Skipped[converter.SkipDepthUnreadable])
	assert.Equal(t, 1, report.Skipped[converter.SkipNoPosition])
	assert.Equal(t, 2, report.SkippedTotal())
}

func TestNonFiniteDepthIsSkipped(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5, ByFrame: map[int]float64{2: math.NaN(), 3: math.Inf(1)}})
	tracks := []model.Track{
		trackAt(1, "person_1", 400, 300, 0.9),
		trackAt(2, "person_1", 410, 300, 0.9),
		trackAt(3, "person_1", 420, 300, 0.9),
	}

	positions, report, err := c.Convert(context.Background(), tracks,
		test.DepthFrames(1920, 1080, 1, 2, 3), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)

	require.Len(t, positions, 1)
	assert.Equal(t, 1, positions[0].FrameNumber)
	assert.Equal(t, 2, report.Skipped[converter.SkipDepthUnreadable])

	// The surviving positions can always be written to result.json.
	_, err = json.Marshal(positions)
	assert.NoError(t, err)
}

func TestNonFiniteCenterIsSkipped(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5})
	lost := trackAt(1, "person_1", 400, 300, 0.9)
	lost.CenterPoint = &model.Point2D{X: math.NaN(), Y: 300}

	positions, report, err := c.Convert(context.Background(), []model.Track{lost},
		test.DepthFrames(1920, 1080, 1), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)

	assert.Empty(t, positions)
	assert.Equal(t, 1, report.Skipped[converter.SkipNoPosition])
}

func TestConvertTrackRejectsNonFiniteDepth(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: math.NaN()})
	transform, err := calibration.NewStageTransform(model.GetExampleStageAnnotation())
	require.NoError(t, err)

	track := trackAt(1, "person_1", 400, 300, 0.9)
	_, err = c.ConvertTrack(track, *track.CenterPoint, test.DepthFrames(1920, 1080, 1)[0], transform)
	assert.ErrorIs(t, err, converter.ErrNonFinite)
}

func TestPersonFilter(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5})
	tracks := []model.Track{
		trackAt(1, "person_1", 400, 300, 0.9),
		trackAt(1, "person_2", 900, 300, 0.9),
		trackAt(2, "person_2", 910, 300, 0.9),
	}

	positions, report, err := c.Convert(context.Background(), tracks,
		test.DepthFrames(1920, 1080, 1, 2), model.GetExampleStageAnnotation(), "person_2")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Tracks)
	require.Len(t, positions, 2)
	for _, p := range positions {
		assert.Equal(t, "person_2", p.PersonID)
	}
}

func TestInvalidCalibrationFailsTheRun(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5})
	annotation := model.GetExampleStageAnnotation()
	annotation.Corners = annotation.Corners[:2]

	positions, _, err := c.Convert(context.Background(),
		[]model.Track{trackAt(1, "person_1", 400, 300, 0.9)},
		test.DepthFrames(1920, 1080, 1), annotation, "")
	assert.ErrorIs(t, err, calibration.ErrInsufficientCorners)
	assert.Nil(t, positions)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newConverter(test.StaticSampler{Value: 0.5})

	_, _, err := c.Convert(ctx, []model.Track{trackAt(1, "person_1", 400, 300, 0.9)},
		test.DepthFrames(1920, 1080, 1), model.GetExampleStageAnnotation(), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultSizeAndDuplicateFrames(t *testing.T) {
	c := newConverter(test.StaticSampler{ByFrame: map[int]float64{}, Value: 0.5})
	frames := append(test.DepthFrames(0, 0, 10), test.DepthFrames(640, 480, 10)...)

	positions, _, err := c.Convert(context.Background(),
		[]model.Track{trackAt(10, "person_1", 450, 350, 0.87)}, frames, model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	// The first frame wins and has no size, so 1920x1080 applies.
	assert.InDelta(t, 0.140073, positions[0].Position2D.X, 1e-5)
}

func TestKeypointsAttached(t *testing.T) {
	c := newConverter(test.StaticSampler{Value: 0.5}, converter.WithKeypoints(true))
	track := trackAt(1, "person_1", 400, 300, 0.9)
	track.Keypoints = make([]float64, 17*3)
	track.Keypoints[0], track.Keypoints[1], track.Keypoints[2] = 400, 200, 0.95

	positions, _, err := c.Convert(context.Background(), []model.Track{track},
		test.DepthFrames(1920, 1080, 1), model.GetExampleStageAnnotation(), "")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, model.Keypoint{X: 400, Y: 200, Confidence: 0.95}, positions[0].Keypoints["nose"])
}
