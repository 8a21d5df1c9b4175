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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// PoseResultGlob matches the detection file written by the pose tool.
const PoseResultGlob = "alphapose-results*.json"

var digits = regexp.MustCompile(`\d+`)

// imageExtensions are the frame formats produced and consumed by the tools.
var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// PoseDetector runs pose estimation over a whole video.
type PoseDetector interface {
	Detect(ctx context.Context, videoPath string, outputDir string) (*model.PoseResult, error)
}

// PoseAdapter drives the external pose tool:
//
//	<command> <script> --video <video> --output <dir> [args...]
type PoseAdapter struct {
	runner *Runner
	script string
	args   []string
}

// NewPoseAdapter creates the adapter from the [pose] config section.
func NewPoseAdapter(cfg cloud.AdapterConfig) *PoseAdapter {
	return &PoseAdapter{
		runner: NewRunnerFromConfig("pose", cfg),
		script: cfg.Script,
		args:   cfg.Args,
	}
}

// Detect runs the tool and parses its output. A tool failure is returned as
// an *ExitError; a run that wrote no result file yields no detections.
func (a *PoseAdapter) Detect(ctx context.Context, videoPath string, outputDir string) (*model.PoseResult, error) {
	video, err := filepath.Abs(videoPath)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("creating pose output dir: %w", err)
	}

	args := make([]string, 0, 5+len(a.args))
	if a.script != "" {
		args = append(args, a.script)
	}
	args = append(args, "--video", video, "--output", out)
	args = append(args, a.args...)
	if _, err := a.runner.Run(ctx, args...); err != nil {
		return nil, err
	}

	detections, err := ParsePoseResults(ctx, out)
	if err != nil {
		return nil, err
	}
	frames, err := ListImages(out)
	if err != nil {
		return nil, err
	}
	return &model.PoseResult{OutputDir: out, Detections: detections, FrameFiles: frames}, nil
}

type poseRecord struct {
	ImageID    json.RawMessage `json:"image_id"`
	CategoryID *int            `json:"category_id"`
	Keypoints  []float64       `json:"keypoints"`
	Score      float64         `json:"score"`
	BBox       []float64       `json:"bbox"`
}

// ParsePoseResults reads the first result file in dir, by name. When there is
// none a warning is logged and an empty slice is returned.
func ParsePoseResults(ctx context.Context, dir string) ([]model.Detection, error) {
	matches, err := filepath.Glob(filepath.Join(dir, PoseResultGlob))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		slog.WarnContext(ctx, "no pose result file found", "dir", dir)
		return []model.Detection{}, nil
	}
	sort.Strings(matches)

	b, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("reading pose results: %w", err)
	}
	var records []poseRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decoding pose results %s: %w", matches[0], err)
	}

	out := make([]model.Detection, 0, len(records))
	for _, r := range records {
		imageID := rawString(r.ImageID)
		d := model.Detection{
			FrameNumber: FrameNumber(imageID),
			ImageID:     imageID,
			CategoryID:  1,
			BBox:        r.BBox,
			Keypoints:   r.Keypoints,
			Score:       r.Score,
		}
		if r.CategoryID != nil {
			d.CategoryID = *r.CategoryID
		}
		out = append(out, d)
	}
	slog.InfoContext(ctx, "pose results parsed", "file", matches[0], "detections", len(out))
	return out, nil
}

// rawString accepts image ids written either as strings or as numbers.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// FrameNumber is the last run of digits in name, or 0 when there is none.
func FrameNumber(name string) int {
	runs := digits.FindAllString(name, -1)
	if len(runs) == 0 {
		return 0
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil {
		return 0
	}
	return n
}

// ListImages returns the frame images directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
