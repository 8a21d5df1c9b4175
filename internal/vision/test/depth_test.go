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

// Package vision_test writes small rasters with OpenCV and reads them back
// through the depth map reader.
package vision_test

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"github.com/Tinuvile/rehearseOnline/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const delta = 1e-6

// writeRaster encodes data as a rows x cols image of type mt under dir.
func writeRaster(t *testing.T, dir string, name string, rows int, cols int, mt gocv.MatType, data []byte) string {
	t.Helper()
	img, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	require.NoError(t, err)
	defer img.Close()
	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img), "writing %s", path)
	return path
}

func uint16Bytes(values ...uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.NativeEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.NativeEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// gradient8 is a 3x2 map: 0.0 0.2 0.4 on the first row, 0.6 0.8 1.0 on the second.
func gradient8(t *testing.T) string {
	return writeRaster(t, t.TempDir(), "000001.png", 2, 3, gocv.MatTypeCV8U, []byte{0, 51, 102, 153, 204, 255})
}

func TestEightBitMapIsNormalised(t *testing.T) {
	m, err := vision.ReadDepthMap(gradient8(t))
	require.NoError(t, err)

	assert.Equal(t, 3, m.Width)
	assert.Equal(t, 2, m.Height)
	assert.InDelta(t, 0.2, m.At(1, 0), delta)
	assert.InDelta(t, 0.8, m.At(1, 1), delta)

	s := m.Stats()
	assert.InDelta(t, 0.0, s.Min, delta)
	assert.InDelta(t, 1.0, s.Max, delta)
	assert.InDelta(t, 0.5, s.Mean, delta)
}

func TestSamplingClampsToTheEdges(t *testing.T) {
	m, err := vision.ReadDepthMap(gradient8(t))
	require.NoError(t, err)

	for _, tt := range []struct {
		x, y int
		want float64
	}{
		{-5, -5, 0.0},  // top left
		{100, 100, 1},  // bottom right
		{10, 0, 0.4},   // right edge of the first row
		{0, 7, 0.6},    // bottom edge of the first column
		{-1, 1, 0.6},   // left edge of the second row
		{2, -3, 0.4},   // top edge of the last column
		{1, 1000, 0.8}, // bottom edge of the middle column
	} {
		assert.InDelta(t, tt.want, m.At(tt.x, tt.y), delta, "At(%d, %d)", tt.x, tt.y)
	}
}

func TestSixteenBitMapIsNormalised(t *testing.T) {
	path := writeRaster(t, t.TempDir(), "000002.png", 1, 2, gocv.MatTypeCV16U, uint16Bytes(65535, 13107))

	m, err := vision.ReadDepthMap(path)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.At(0, 0), delta)
	assert.InDelta(t, 0.2, m.At(1, 0), delta)
	s := m.Stats()
	assert.InDelta(t, 0.2, s.Min, delta)
	assert.InDelta(t, 1.0, s.Max, delta)
	assert.InDelta(t, 0.6, s.Mean, delta)
}

func TestColourMapIsReducedToGray(t *testing.T) {
	path := writeRaster(t, t.TempDir(), "000003.png", 1, 2, gocv.MatTypeCV8UC3, []byte{
		51, 51, 51,
		255, 255, 255,
	})

	m, err := vision.ReadDepthMap(path)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Width)
	assert.Equal(t, 1, m.Height)
	assert.InDelta(t, 0.2, m.At(0, 0), 1.0/255)
	assert.InDelta(t, 1.0, m.At(1, 0), 1.0/255)
}

func TestNaNPixelsHaveNoDepth(t *testing.T) {
	nan := float32(math.NaN())
	path := writeRaster(t, t.TempDir(), "000004.tiff", 1, 3, gocv.MatTypeCV32F, float32Bytes(0.25, nan, 0.75))

	m, err := vision.ReadDepthMap(path)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.At(1, 0)))

	s := m.Stats()
	assert.InDelta(t, 0.25, s.Min, delta)
	assert.InDelta(t, 0.75, s.Max, delta)
	assert.InDelta(t, 0.5, s.Mean, delta)

	frame := model.DepthFrame{FrameNumber: 4, DepthFile: path}
	_, err = vision.FileSampler{}.Sample(frame, model.Point2D{X: 1, Y: 0})
	assert.ErrorIs(t, err, vision.ErrNoDepth)

	v, err := vision.FileSampler{}.Sample(frame, model.Point2D{X: 2.9, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v, delta)
}

func TestDescribe(t *testing.T) {
	path := gradient8(t)

	frame, err := vision.Describe(7, "000007.jpg", path)
	require.NoError(t, err)

	assert.Equal(t, 7, frame.FrameNumber)
	assert.Equal(t, "000007.jpg", frame.FrameFile)
	assert.Equal(t, path, frame.DepthFile)
	assert.Equal(t, 3, frame.Width)
	assert.Equal(t, 2, frame.Height)
	assert.InDelta(t, 0.0, frame.MinDepth, delta)
	assert.InDelta(t, 1.0, frame.MaxDepth, delta)
	assert.InDelta(t, 0.5, frame.MeanDepth, delta)
}

func TestUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000005.png")
	test.WriteFile(t, path, "not a png")

	_, err := vision.ReadDepthMap(path)
	assert.ErrorIs(t, err, vision.ErrUnreadable)

	_, err = vision.Describe(5, "000005.jpg", path)
	assert.ErrorIs(t, err, vision.ErrUnreadable)
}
