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

// Package workflow_test runs the conversion pipeline end to end with the
// external tools replaced by in-process fakes. TestMain installs the local
// telemetry providers once for the whole package.
package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/telemetry"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const tName = "rehearse-online/tests/workflow"

var (
	ctx    context.Context
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

func TestMain(m *testing.M) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(context.Background())

	shutdown, err := telemetry.SetupLocalTelemetry(ctx, test.GetConfig())
	if err != nil {
		panic(err)
	}

	code := m.Run()

	if err := shutdown(ctx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
	cancel()
	os.Exit(code)
}

// fakeFrames writes empty numbered frames.
type fakeFrames struct {
	count int
	err   error
}

func (f fakeFrames) Extract(_ context.Context, _ string, framesDir string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, err
	}
	out := make([]string, 0, f.count)
	for i := 1; i <= f.count; i++ {
		p := filepath.Join(framesDir, fmt.Sprintf("%06d.jpg", i))
		if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// fakePose returns canned detections and creates its output directory.
type fakePose struct {
	detections []model.Detection
	err        error
}

func (p fakePose) Detect(_ context.Context, _ string, outputDir string) (*model.PoseResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	return &model.PoseResult{OutputDir: outputDir, Detections: p.detections}, nil
}

// fakeDepth returns one 1280x720 depth frame per frame number.
type fakeDepth struct {
	frames []int
}

func (d fakeDepth) Estimate(_ context.Context, _ string, outputDir string) (*model.DepthResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	return &model.DepthResult{OutputDir: outputDir, Frames: test.DepthFrames(1280, 720, d.frames...)}, nil
}

var errPoseCrashed = errors.New("pose tool crashed")

// countingTools stands in for all three external tools and only counts calls.
type countingTools struct {
	calls atomic.Int32
}

func (c *countingTools) Extract(context.Context, string, string) ([]string, error) {
	c.calls.Add(1)
	return nil, errors.New("frames extracted")
}

func (c *countingTools) Detect(context.Context, string, string) (*model.PoseResult, error) {
	c.calls.Add(1)
	return nil, errors.New("poses detected")
}

func (c *countingTools) Estimate(context.Context, string, string) (*model.DepthResult, error) {
	c.calls.Add(1)
	return nil, errors.New("depth estimated")
}
