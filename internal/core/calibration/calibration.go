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

// Package calibration derives the planar stage transform from a user's four
// corner annotation.
//
// The transform is the 3x3 homography H that maps the image quadrilateral
// (top-left, top-right, bottom-right, bottom-left) onto the rectangle
// [0,W] x [0,H] in metres. With h33 fixed to 1 each correspondence gives two
// linear equations, so four corners determine the remaining eight entries.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientCorners means the annotation has fewer than four corners.
	ErrInsufficientCorners = errors.New("stage annotation needs 4 corners")
	// ErrDegenerateCorners means the corners do not span a quadrilateral,
	// e.g. three of them are collinear.
	ErrDegenerateCorners = errors.New("stage corners are degenerate")
	// ErrInvalidStage means the real stage dimensions are not positive and
	// finite, or the depth reference is not finite.
	ErrInvalidStage = errors.New("stage dimensions must be positive")
)

// StageTransform maps image pixels to stage-plane metres. It is immutable and
// safe for concurrent use.
type StageTransform struct {
	matrix         *mat.Dense
	DepthReference float64
	RealWidth      float64
	RealHeight     float64
}

// NewStageTransform solves the homography for annotation. Corners beyond the
// fourth are ignored. The reference depth is carried along, not used in the
// matrix.
func NewStageTransform(annotation model.StageAnnotation) (*StageTransform, error) {
	if len(annotation.Corners) < 4 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientCorners, len(annotation.Corners))
	}
	if !positive(annotation.RealWidth) || !positive(annotation.RealHeight) {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidStage, annotation.RealWidth, annotation.RealHeight)
	}
	if math.IsNaN(annotation.DepthReference) || math.IsInf(annotation.DepthReference, 0) {
		return nil, fmt.Errorf("%w: depth reference %v", ErrInvalidStage, annotation.DepthReference)
	}
	for i, c := range annotation.Corners[:4] {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: corner %d is %v", ErrDegenerateCorners, i, c)
		}
	}

	src := annotation.Corners[:4]
	dst := []model.Point2D{
		{X: 0, Y: 0},
		{X: annotation.RealWidth, Y: 0},
		{X: annotation.RealWidth, Y: annotation.RealHeight},
		{X: 0, Y: annotation.RealHeight},
	}

	h, err := solveHomography(src, dst)
	if err != nil {
		return nil, err
	}
	return &StageTransform{
		matrix:         h,
		DepthReference: annotation.DepthReference,
		RealWidth:      annotation.RealWidth,
		RealHeight:     annotation.RealHeight,
	}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func solveHomography(src, dst []model.Point2D) (*mat.Dense, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateCorners, err)
	}

	values := make([]float64, 9)
	for i := 0; i < 8; i++ {
		v := h.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrDegenerateCorners
		}
		values[i] = v
	}
	values[8] = 1
	return mat.NewDense(3, 3, values), nil
}

// Project maps an image pixel onto the stage plane. ok is false for points on
// the horizon line of the plane.
func (t *StageTransform) Project(p model.Point2D) (model.Point2D, bool) {
	in := mat.NewVecDense(3, []float64{p.X, p.Y, 1})
	var out mat.VecDense
	out.MulVec(t.matrix, in)
	w := out.AtVec(2)
	if !(math.Abs(w) >= 1e-12) {
		return model.Point2D{}, false
	}
	q := model.Point2D{X: out.AtVec(0) / w, Y: out.AtVec(1) / w}
	return q, q.Valid()
}

// Matrix returns the homography in row-major order.
func (t *StageTransform) Matrix() [9]float64 {
	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = t.matrix.At(r, c)
		}
	}
	return out
}

// Clamp limits p to the stage rectangle. A NaN coordinate becomes 0, so the
// result is always inside [0,W] x [0,H].
func (t *StageTransform) Clamp(p model.Point2D) model.Point2D {
	return model.Point2D{
		X: clamp(p.X, t.RealWidth),
		Y: clamp(p.Y, t.RealHeight),
	}
}

func clamp(v float64, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, hi))
}
