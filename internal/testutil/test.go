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

// Package test provides helpers and fixtures for the test suites: the test
// configuration, canned detections, conversion trigger messages, in-memory
// depth samplers and throwaway executables that stand in for the external
// pose and depth tools.
package test

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

var (
	configOnce sync.Once
	config     *cloud.Config
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod. Tests run inside their package directory, so relative paths to
// configs/ would not resolve otherwise.
func RepoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the repository's configs
// directory and the "test" runtime, so `.env.test.toml` overrides the base.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(RepoRoot(), "configs"))
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once and returns a copy, so a test
// may change its copy freely.
func GetConfig() *cloud.Config {
	configOnce.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		c := cloud.NewConfig()
		cloud.LoadConfig(c)
		config = c
	})
	out := *config
	out.TopicSubscriptions = make(map[string]cloud.TopicSubscription, len(config.TopicSubscriptions))
	for k, v := range config.TopicSubscriptions {
		out.TopicSubscriptions[k] = v
	}
	return &out
}

// GetTestConfig is GetConfig with the work directory and data file moved
// into a per-test temporary directory.
func GetTestConfig(t *testing.T) *cloud.Config {
	t.Helper()
	c := GetConfig()
	dir := t.TempDir()
	c.Application.WorkDir = filepath.Join(dir, "work")
	c.Application.DataFile = filepath.Join(dir, "data", "stage_data.json")
	return c
}

// GetTestConversionMessageText returns the body of a Pub/Sub conversion
// trigger for videoID using the example stage annotation.
func GetTestConversionMessageText(videoID string) string {
	b, err := json.Marshal(model.GetExampleConversionRequest(videoID))
	if err != nil {
		panic(err)
	}
	return string(b)
}

// PersonAt returns a detection in frame whose bounding box is centred on
// (cx, cy). The box is 100 x 200 pixels.
func PersonAt(frame int, cx float64, cy float64, score float64) model.Detection {
	return model.Detection{
		FrameNumber: frame,
		ImageID:     fmt.Sprintf("%06d.jpg", frame),
		CategoryID:  1,
		BBox:        []float64{cx - 50, cy - 100, 100, 200},
		Score:       score,
	}
}

// WalkingPerson returns one detection per frame in [first, last], moving step
// pixels to the right each frame from (x, y).
func WalkingPerson(first int, last int, x float64, y float64, step float64) []model.Detection {
	out := make([]model.Detection, 0, last-first+1)
	for f := first; f <= last; f++ {
		out = append(out, PersonAt(f, x+float64(f-first)*step, y, 0.9))
	}
	return out
}

// DepthFrames returns one depth frame per frame number with the given size.
// The depth files do not exist; pair them with a StaticSampler.
func DepthFrames(width int, height int, frames ...int) []model.DepthFrame {
	out := make([]model.DepthFrame, 0, len(frames))
	for _, f := range frames {
		out = append(out, model.DepthFrame{
			FrameNumber: f,
			FrameFile:   fmt.Sprintf("%06d.jpg", f),
			DepthFile:   fmt.Sprintf("%06d.png", f),
			Width:       width,
			Height:      height,
			MaxDepth:    1,
		})
	}
	return out
}

// StaticSampler answers every sample with Value, or with the per-frame value
// in ByFrame when present. Frames listed in Fail return an error.
type StaticSampler struct {
	Value   float64
	ByFrame map[int]float64
	Fail    map[int]bool
}

// Sample implements converter.DepthSampler.
func (s StaticSampler) Sample(frame model.DepthFrame, _ model.Point2D) (float64, error) {
	if s.Fail[frame.FrameNumber] {
		return 0, fmt.Errorf("depth map for frame %d unreadable", frame.FrameNumber)
	}
	if v, ok := s.ByFrame[frame.FrameNumber]; ok {
		return v, nil
	}
	return s.Value, nil
}

// WriteTool writes an executable shell script named name into dir and returns
// its path. body runs under /bin/sh with the tool arguments in "$@".
func WriteTool(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing tool %s: %v", path, err)
	}
	return path
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
