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

// Package vision reads the depth rasters written by the depth tool.
package vision

import (
	"errors"
	"fmt"
	"math"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"gocv.io/x/gocv"
)

var (
	// ErrUnreadable is returned for files OpenCV cannot decode.
	ErrUnreadable = errors.New("depth map unreadable")
	// ErrNoDepth is returned when the sampled pixel holds NaN.
	ErrNoDepth = errors.New("no depth at pixel")
)

// Stats summarises a normalised depth map.
type Stats struct {
	Min  float64 `json:"min_depth"`
	Max  float64 `json:"max_depth"`
	Mean float64 `json:"mean_depth"`
}

// DepthMap is a single channel depth raster normalised to [0,1], 1 being
// closest to the camera.
type DepthMap struct {
	Width  int
	Height int
	data   []float32
	stats  Stats
}

// ReadDepthMap decodes path at its native bit depth, reduces it to one channel
// and divides by the maximum of its sample type (255 for 8 bit, 65535 for 16
// bit). Float rasters are taken as already normalised; their NaN pixels are
// left out of the statistics.
func ReadDepthMap(path string) (*DepthMap, error) {
	img := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, path)
	}

	gray := img
	switch img.Channels() {
	case 1:
	case 3:
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	case 4:
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		return nil, fmt.Errorf("%w: %s has %d channels", ErrUnreadable, path, img.Channels())
	}

	scale := 1.0
	switch gocv.MatType(int(gray.Type()) & 7) {
	case gocv.MatTypeCV8U:
		scale = 1.0 / 255.0
	case gocv.MatTypeCV16U:
		scale = 1.0 / 65535.0
	}

	normalized := gocv.NewMat()
	defer normalized.Close()
	gray.ConvertTo(&normalized, gocv.MatTypeCV32F)
	if scale != 1.0 {
		normalized.MultiplyFloat(float32(scale))
	}

	raw, err := normalized.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	data := make([]float32, len(raw))
	copy(data, raw)

	stats, ok := finiteStats(data)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no finite pixel", ErrUnreadable, path)
	}
	return &DepthMap{
		Width:  normalized.Cols(),
		Height: normalized.Rows(),
		data:   data,
		stats:  stats,
	}, nil
}

func finiteStats(data []float32) (Stats, bool) {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum, n := 0.0, 0
	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		sum += f
		n++
	}
	if n == 0 {
		return Stats{}, false
	}
	s.Mean = sum / float64(n)
	return s, true
}

// Stats returns min, max and mean of the normalised map.
func (d *DepthMap) Stats() Stats {
	return d.stats
}

// At samples the map at pixel (x, y). Coordinates outside the map are clamped
// to its edges and the value is clamped to [0,1]. A NaN pixel gives NaN.
func (d *DepthMap) At(x, y int) float64 {
	x = max(0, min(x, d.Width-1))
	y = max(0, min(y, d.Height-1))
	v := float64(d.data[y*d.Width+x])
	if math.IsNaN(v) {
		return v
	}
	return math.Max(0, math.Min(1, v))
}

// FileSampler reads the depth file of a frame on every call. Each call is
// independent, so it is safe for concurrent use.
type FileSampler struct{}

// Sample returns the normalised depth at pixel p of frame's depth map.
func (FileSampler) Sample(frame model.DepthFrame, p model.Point2D) (float64, error) {
	m, err := ReadDepthMap(frame.DepthFile)
	if err != nil {
		return 0, err
	}
	v := m.At(int(p.X), int(p.Y))
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s at %v", ErrNoDepth, frame.DepthFile, p)
	}
	return v, nil
}

// Describe reads path and fills the size and statistics of a DepthFrame.
func Describe(frameNumber int, frameFile string, path string) (model.DepthFrame, error) {
	m, err := ReadDepthMap(path)
	if err != nil {
		return model.DepthFrame{}, err
	}
	s := m.Stats()
	return model.DepthFrame{
		FrameNumber: frameNumber,
		FrameFile:   frameFile,
		DepthFile:   path,
		Width:       m.Width,
		Height:      m.Height,
		MinDepth:    s.Min,
		MaxDepth:    s.Max,
		MeanDepth:   s.Mean,
	}, nil
}
