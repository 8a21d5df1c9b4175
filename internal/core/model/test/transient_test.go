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

package model_test

import (
	"math"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func TestDetectionCenterPrefersBBox(t *testing.T) {
	d := model.Detection{
		BBox:      []float64{10, 20, 100, 200},
		Keypoints: []float64{0, 0, 1},
	}
	c, ok := d.Center()
	assert.True(t, ok)
	assert.Equal(t, model.Point2D{X: 60, Y: 120}, c)
}

func TestDetectionCenterFallsBackToKeypoints(t *testing.T) {
	d := model.Detection{
		BBox: []float64{1, 2, math.NaN(), 4},
		Keypoints: []float64{
			10, 10, 0.9,
			20, 30, 0.5,
			500, 500, model.MinKeypointConfidence, // not above the threshold
		},
	}
	c, ok := d.Center()
	assert.True(t, ok)
	assert.Equal(t, model.Point2D{X: 15, Y: 20}, c)
}

func TestDetectionWithoutCenter(t *testing.T) {
	d := model.Detection{BBox: []float64{1, 2}, Keypoints: []float64{1, 1, 0}}
	_, ok := d.Center()
	assert.False(t, ok)
}

func TestTrackImagePosition(t *testing.T) {
	center := model.Point2D{X: 7, Y: 8}
	tr := model.Track{Detection: model.Detection{BBox: []float64{0, 0, 10, 10}}, CenterPoint: &center}
	p, ok := tr.ImagePosition()
	assert.True(t, ok)
	assert.Equal(t, center, p)

	tr.CenterPoint = nil
	p, ok = tr.ImagePosition()
	assert.True(t, ok)
	assert.Equal(t, model.Point2D{X: 5, Y: 5}, p)
}

func TestKeypointsByName(t *testing.T) {
	flat := []float64{
		100, 50, 0.9, // nose
		90, 45, 0.8, // left_eye
	}
	named := model.KeypointsByName(flat)

	assert.Len(t, named, len(model.KeypointNames))
	assert.Equal(t, model.Keypoint{X: 100, Y: 50, Confidence: 0.9}, named["nose"])
	assert.Equal(t, model.Keypoint{X: 90, Y: 45, Confidence: 0.8}, named["left_eye"])
	assert.Equal(t, model.Keypoint{}, named["right_ankle"])
}

func TestDepthResultByFrameFirstWins(t *testing.T) {
	r := model.DepthResult{Frames: []model.DepthFrame{
		{FrameNumber: 1, DepthFile: "a.png"},
		{FrameNumber: 2, DepthFile: "b.png"},
		{FrameNumber: 1, DepthFile: "c.png"},
	}}
	byFrame := r.ByFrame()
	assert.Len(t, byFrame, 2)
	assert.Equal(t, "a.png", byFrame[1].DepthFile)
}

func TestPointDistance(t *testing.T) {
	assert.Equal(t, 5.0, model.Point2D{X: 0, Y: 0}.Distance(model.Point2D{X: 3, Y: 4}))
}
