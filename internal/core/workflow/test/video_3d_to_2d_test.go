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

package workflow_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/calibration"
	"github.com/Tinuvile/rehearseOnline/internal/core/commands"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/Tinuvile/rehearseOnline/internal/core/workflow"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	config *cloud.Config
	store  *store.Store
	video  model.Video
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	config := test.GetTestConfig(t)
	s := store.New()
	path := filepath.Join(t.TempDir(), "rehearsal.mp4")
	test.WriteFile(t, path, "not really a video")
	v, err := s.AddVideo("rehearsal.mp4", path)
	test.HandleErr(err, t)
	return fixture{config: config, store: s, video: v}
}

func (f fixture) workflow(opts ...workflow.Option) *workflow.Video3DTo2DWorkflow {
	base := []workflow.Option{
		workflow.WithFrameExtractor(fakeFrames{count: 5}),
		workflow.WithPoseDetector(fakePose{detections: test.WalkingPerson(1, 5, 400, 300, 10)}),
		workflow.WithDepthEstimator(fakeDepth{frames: []int{1, 2, 3, 4, 5}}),
		workflow.WithDepthSampler(test.StaticSampler{Value: 0.5}),
	}
	return workflow.NewVideo3DTo2DWorkflow(f.config, nil, f.store, append(base, opts...)...)
}

func TestConversionCompletes(t *testing.T) {
	traceCtx, span := tracer.Start(ctx, "conversion-completes")
	defer span.End()

	f := newFixture(t)
	result, err := f.workflow().Run(traceCtx, model.GetExampleConversionRequest(f.video.Id))
	require.NoError(t, err)

	assert.Equal(t, f.video.Id, result.VideoID)
	assert.Equal(t, model.ProcessingStatusCompleted, result.Status)
	assert.Len(t, result.Positions, 5)
	assert.Equal(t, []string{"person_1"}, result.PersonsDetected)
	assert.Equal(t, 5, result.FrameCount)
	assert.Zero(t, result.SkippedTracks)

	v, err := f.store.GetVideo(f.video.Id)
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusProcessed, v.Status)

	res, err := f.store.VideoResult(f.video.Id, model.ProcessingKey3DTo2D)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessingStatusCompleted, res.Status)
	assert.Equal(t, 5, res.PositionsCount)
	assert.Equal(t, 1, res.PersonsDetected)

	workDir := commands.WorkDirFor(f.config.Application.WorkDir, f.video.Id)
	assert.Equal(t, filepath.Join(workDir, commands.ResultFileName), res.ResultFile)
	stored, err := commands.ReadResult(res.ResultFile)
	require.NoError(t, err)
	assert.Len(t, stored.Positions, 5)

	// Intermediate outputs are removed, the result is kept.
	assert.NoDirExists(t, filepath.Join(workDir, commands.FramesDirName))
	assert.NoDirExists(t, filepath.Join(workDir, commands.PoseOutputDirName))
	assert.NoDirExists(t, filepath.Join(workDir, commands.DepthOutputDirName))
	assert.FileExists(t, res.ResultFile)
}

func TestConversionPositionsStayOnStage(t *testing.T) {
	f := newFixture(t)
	req := model.GetExampleConversionRequest(f.video.Id)
	result, err := f.workflow().Run(ctx, req)
	require.NoError(t, err)

	for _, p := range result.Positions {
		assert.GreaterOrEqual(t, p.Position2D.X, 0.0)
		assert.LessOrEqual(t, p.Position2D.X, req.StageAnnotation.RealWidth)
		assert.GreaterOrEqual(t, p.Position2D.Y, 0.0)
		assert.LessOrEqual(t, p.Position2D.Y, req.StageAnnotation.RealHeight)
		assert.Equal(t, "person_1", p.PersonID)
	}
}

func TestConversionFromTriggerMessage(t *testing.T) {
	f := newFixture(t)
	w := f.workflow()

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, test.GetTestConversionMessageText(f.video.Id))

	require.True(t, w.IsExecutable(chCtx))
	w.Execute(chCtx)
	require.NoError(t, chCtx.Err())

	result, ok := chCtx.Get(commands.ParamResult).(*model.Video3DTo2DResult)
	require.True(t, ok)
	assert.Len(t, result.Positions, 5)
}

func TestConversionMissingDepthSkipsTracks(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(workflow.WithDepthEstimator(fakeDepth{frames: []int{1, 2}}))

	result, err := w.Run(ctx, model.GetExampleConversionRequest(f.video.Id))
	require.NoError(t, err)
	assert.Len(t, result.Positions, 2)
	assert.Equal(t, 3, result.SkippedTracks)
}

func TestConversionToolFailureMarksVideo(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(workflow.WithPoseDetector(fakePose{err: errPoseCrashed}))

	_, err := w.Run(ctx, model.GetExampleConversionRequest(f.video.Id))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errPoseCrashed))

	v, err := f.store.GetVideo(f.video.Id)
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusError, v.Status)

	res, err := f.store.VideoResult(f.video.Id, model.ProcessingKey3DTo2D)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessingStatusFailed, res.Status)
	assert.Contains(t, res.Error, "pose tool crashed")
}

func TestConversionUnknownVideo(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow().Run(ctx, model.GetExampleConversionRequest("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConversionRejectsBadTrigger(t *testing.T) {
	f := newFixture(t)
	w := f.workflow()

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, "{not json")

	w.Execute(chCtx)
	assert.Error(t, chCtx.Err())

	v, err := f.store.GetVideo(f.video.Id)
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusUploaded, v.Status)
}

func TestConversionGCSVideoNeedsStorage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveVideoData(store.VideoData{Video: model.Video{
		Id:       "remote",
		Filename: "remote.mp4",
		FilePath: "gs://bucket/uploads/remote.mp4",
	}}))

	_, err := f.workflow().Run(ctx, model.GetExampleConversionRequest("remote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud storage is not enabled")
}

func (f fixture) countingWorkflow() (*workflow.Video3DTo2DWorkflow, *countingTools) {
	tools := &countingTools{}
	return f.workflow(
		workflow.WithFrameExtractor(tools),
		workflow.WithPoseDetector(tools),
		workflow.WithDepthEstimator(tools),
	), tools
}

func TestInvalidAnnotationStopsBeforeAnyTool(t *testing.T) {
	f := newFixture(t)
	w, tools := f.countingWorkflow()

	few := model.GetExampleConversionRequest(f.video.Id)
	few.StageAnnotation.Corners = few.StageAnnotation.Corners[:3]
	_, err := w.Run(ctx, few)
	require.Error(t, err)
	assert.True(t, cor.IsPermanent(err))
	assert.ErrorIs(t, err, calibration.ErrInsufficientCorners)

	unknownSize := model.GetExampleConversionRequest(f.video.Id)
	unknownSize.StageAnnotation.RealWidth = math.NaN()
	_, err = w.Run(ctx, unknownSize)
	assert.True(t, cor.IsPermanent(err))
	assert.ErrorIs(t, err, calibration.ErrInvalidStage)

	assert.Zero(t, tools.calls.Load())

	v, err := f.store.GetVideo(f.video.Id)
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusUploaded, v.Status)
	res, err := f.store.VideoResult(f.video.Id, model.ProcessingKey3DTo2D)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessingStatusNotStarted, res.Status)
}

func TestUnknownVideoIsPermanent(t *testing.T) {
	f := newFixture(t)
	w, tools := f.countingWorkflow()

	_, err := w.Run(ctx, model.GetExampleConversionRequest("missing"))
	assert.True(t, cor.IsPermanent(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, tools.calls.Load())
}

func TestBusyVideoIsLeftToItsRun(t *testing.T) {
	f := newFixture(t)
	w, tools := f.countingWorkflow()
	_, err := f.store.ClaimProcessing(f.video.Id, model.ProcessingKey3DTo2D, "earlier-run")
	require.NoError(t, err)

	_, err = w.Run(ctx, model.GetExampleConversionRequest(f.video.Id))
	assert.True(t, cor.IsPermanent(err))
	assert.ErrorIs(t, err, store.ErrBusy)
	assert.Zero(t, tools.calls.Load())

	// The earlier run's claim is untouched.
	v, err := f.store.GetVideo(f.video.Id)
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusProcessing, v.Status)
	res := v.ProcessingResults[model.ProcessingKey3DTo2D]
	assert.Equal(t, model.ProcessingStatusProcessing, res.Status)
	assert.Equal(t, "earlier-run", res.RunId)
}

func TestToolFailureIsNotPermanent(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(workflow.WithPoseDetector(fakePose{err: errPoseCrashed}))

	_, err := w.Run(ctx, model.GetExampleConversionRequest(f.video.Id))
	require.Error(t, err)
	assert.False(t, cor.IsPermanent(err))
}
