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

package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/vision"
)

// Directories of the depth tool, relative to its working directory.
const (
	DepthInputDir  = "input"
	DepthOutputDir = "output"
)

// DepthEstimator produces one depth map per frame image.
type DepthEstimator interface {
	Estimate(ctx context.Context, framesDir string, outputDir string) (*model.DepthResult, error)
}

// Describer reads a depth raster and fills a DepthFrame.
type Describer func(frameNumber int, frameFile string, path string) (model.DepthFrame, error)

// DepthAdapter drives the external depth tool:
//
//	<command> <script> --model_type <m> --input_path input --output_path output
//
// The tool reads and writes fixed directories under its working directory,
// so runs are serialized.
type DepthAdapter struct {
	mu        sync.Mutex
	runner    *Runner
	script    string
	modelType string
	args      []string
	describe  Describer
}

// DepthOption configures a DepthAdapter.
type DepthOption func(*DepthAdapter)

// WithDescriber replaces the raster reader, vision.Describe by default.
func WithDescriber(d Describer) DepthOption {
	return func(a *DepthAdapter) { a.describe = d }
}

// NewDepthAdapter creates the adapter from the [depth] config section.
func NewDepthAdapter(cfg cloud.AdapterConfig, opts ...DepthOption) *DepthAdapter {
	a := &DepthAdapter{
		runner:    NewRunnerFromConfig("depth", cfg),
		script:    cfg.Script,
		modelType: cfg.ModelType,
		args:      cfg.Args,
		describe:  vision.Describe,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Estimate stages the frames of framesDir into the tool's input directory,
// runs the tool, copies its output to outputDir and pairs every depth raster
// with the frame of the same name. Rasters without a frame are ignored and
// unreadable ones are logged and dropped. At most one DepthFrame is returned
// per frame number; the first by file name wins.
func (a *DepthAdapter) Estimate(ctx context.Context, framesDir string, outputDir string) (*model.DepthResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	toolIn := filepath.Join(a.runner.Dir(), DepthInputDir)
	toolOut := filepath.Join(a.runner.Dir(), DepthOutputDir)
	if err := os.RemoveAll(toolIn); err != nil {
		return nil, fmt.Errorf("clearing depth input dir: %w", err)
	}
	if err := os.RemoveAll(toolOut); err != nil {
		return nil, fmt.Errorf("clearing depth output dir: %w", err)
	}
	frames, err := ListImages(framesDir)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	for _, f := range frames {
		if err := copyFile(f, filepath.Join(toolIn, filepath.Base(f))); err != nil {
			return nil, fmt.Errorf("staging frame: %w", err)
		}
	}
	slog.InfoContext(ctx, "depth input prepared", "frames", len(frames), "dir", toolIn)

	args := make([]string, 0, 7+len(a.args))
	if a.script != "" {
		args = append(args, a.script)
	}
	if a.modelType != "" {
		args = append(args, "--model_type", a.modelType)
	}
	args = append(args, "--input_path", DepthInputDir, "--output_path", DepthOutputDir)
	args = append(args, a.args...)
	if _, err := a.runner.Run(ctx, args...); err != nil {
		return nil, err
	}

	if err := copyDir(toolOut, outputDir); err != nil {
		return nil, fmt.Errorf("collecting depth output: %w", err)
	}
	return a.Collect(ctx, framesDir, outputDir)
}

// Collect pairs the depth rasters in outputDir with the frames in framesDir.
func (a *DepthAdapter) Collect(ctx context.Context, framesDir string, outputDir string) (*model.DepthResult, error) {
	rasters, err := ListImages(outputDir)
	if err != nil {
		return nil, fmt.Errorf("listing depth output: %w", err)
	}
	result := &model.DepthResult{OutputDir: outputDir, Frames: make([]model.DepthFrame, 0, len(rasters))}
	seen := make(map[int]bool, len(rasters))
	for _, raster := range rasters {
		frame, ok := matchFrame(raster, framesDir, a.modelType)
		if !ok {
			continue
		}
		number := FrameNumber(strings.TrimSuffix(filepath.Base(frame), filepath.Ext(frame)))
		if seen[number] {
			slog.WarnContext(ctx, "duplicate depth frame dropped", "frame_number", number, "depth_file", raster)
			continue
		}
		df, err := a.describe(number, frame, raster)
		if err != nil {
			slog.WarnContext(ctx, "depth map unreadable", "depth_file", raster, "error", err)
			continue
		}
		seen[number] = true
		result.Frames = append(result.Frames, df)
	}
	slog.InfoContext(ctx, "depth results parsed", "depth_frames", len(result.Frames))
	return result, nil
}

// matchFrame finds the frame image with the same stem as raster. Rasters
// named <stem>-<model>.png are matched on <stem>.
func matchFrame(raster string, framesDir string, modelType string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(raster), filepath.Ext(raster))
	stems := []string{stem}
	if modelType != "" {
		if s, ok := strings.CutSuffix(stem, "-"+modelType); ok {
			stems = append(stems, s)
		}
	}
	for _, s := range stems {
		for _, ext := range imageExtensions {
			candidate := filepath.Join(framesDir, s+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}
	}
	return "", false
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyDir(src string, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
