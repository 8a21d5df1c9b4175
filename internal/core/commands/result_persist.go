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

package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/converter"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
)

// ResultPersist writes result.json to the work directory and attaches a
// summary to the video under processing_results["3d_to_2d"]. The video is
// marked processed.
type ResultPersist struct {
	cor.BaseCommand
	store *store.Store
}

// NewResultPersist is the constructor for the ResultPersist command.
func NewResultPersist(name string, store *store.Store) *ResultPersist {
	out := &ResultPersist{BaseCommand: *cor.NewBaseCommand(name), store: store}
	out.InputParamName = ParamPositions
	out.OutputParamName = ParamResult
	return out
}

// Execute assembles and saves the result.
func (c *ResultPersist) Execute(context cor.Context) {
	positions := context.Get(c.GetInputParam()).([]model.PersonPosition)
	req := context.Get(ParamRequest).(*model.ConversionRequest)
	dir := context.Get(ParamWorkDir).(string)

	started, ok := context.Get(ParamStarted).(time.Time)
	if !ok {
		started = time.Now()
	}
	frameCount := 0
	if depth, ok := context.Get(ParamDepth).(*model.DepthResult); ok {
		frameCount = len(depth.Frames)
	}
	skipped := 0
	if report, ok := context.Get(ParamReport).(converter.Report); ok {
		skipped = report.SkippedTotal()
	}

	result := &model.Video3DTo2DResult{
		VideoID:         req.VideoID,
		Status:          model.ProcessingStatusCompleted,
		StageAnnotation: req.StageAnnotation,
		Positions:       positions,
		ProcessingTime:  time.Since(started).Seconds(),
		FrameCount:      frameCount,
		PersonsDetected: converter.PersonIDs(positions),
		SkippedTracks:   skipped,
	}

	resultFile := filepath.Join(dir, ResultFileName)
	if err := WriteResult(resultFile, result); err != nil {
		c.Fail(context, err)
		return
	}

	err := c.store.SetProcessingResult(req.VideoID, model.ProcessingKey3DTo2D, model.ProcessingResult{
		Status:          model.ProcessingStatusCompleted,
		ResultFile:      resultFile,
		PositionsCount:  len(positions),
		PersonsDetected: len(result.PersonsDetected),
		ProcessingTime:  result.ProcessingTime,
	})
	if err != nil {
		c.Fail(context, err)
		return
	}
	if err := c.store.UpdateVideoStatus(req.VideoID, model.VideoStatusProcessed, 0, 0); err != nil {
		c.Fail(context, err)
		return
	}

	slog.InfoContext(context.GetContext(), "conversion result saved",
		"video_id", req.VideoID,
		"positions", len(positions),
		"persons", len(result.PersonsDetected),
		"result_file", resultFile)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), result)
}

// WriteResult writes result as indented JSON.
func WriteResult(path string, result *model.Video3DTo2DResult) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing result %s: %w", path, err)
	}
	return nil
}

// ReadResult reads a result.json written by WriteResult.
func ReadResult(path string) (*model.Video3DTo2DResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result %s: %w", path, err)
	}
	out := &model.Video3DTo2DResult{}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", path, err)
	}
	return out, nil
}
