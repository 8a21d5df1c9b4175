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

// Package workflow assembles commands into the pipelines the service runs.
//
// Video3DTo2DWorkflow turns a rehearsal video and a stage calibration into
// per person stage positions:
//
//	trigger -> resolve video -> (download) -> frames -> pose -> depth
//	        -> track -> convert -> persist result -> (BigQuery) -> (snapshot)
//
// Steps in parentheses only run when cloud integration is configured for
// them. The whole run is bounded by the application request timeout. A
// failed run leaves the video in the error state with the failure recorded
// under processing_results["3d_to_2d"]. Failures that a retry cannot fix,
// such as a bad annotation or an unknown video, are marked cor.Permanent;
// the annotation is checked before any external tool runs.
package workflow

import (
	goctx "context"
	"errors"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/adapters"
	"github.com/Tinuvile/rehearseOnline/internal/core/commands"
	"github.com/Tinuvile/rehearseOnline/internal/core/converter"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/Tinuvile/rehearseOnline/internal/core/tracker"
	"github.com/Tinuvile/rehearseOnline/internal/vision"
)

// Video3DTo2DWorkflow is the conversion pipeline. It is safe to run several
// conversions at once; the depth tool serializes itself.
type Video3DTo2DWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	store          *store.Store
	storageClient  *storage.Client
	bigqueryClient *bigquery.Client
	frames         adapters.FrameExtractor
	pose           adapters.PoseDetector
	depth          adapters.DepthEstimator
	tracker        tracker.Tracker
	sampler        converter.DepthSampler
	chain          cor.Chain
}

// Option replaces one of the workflow's collaborators.
type Option func(*Video3DTo2DWorkflow)

// WithFrameExtractor replaces the ffmpeg frame extractor.
func WithFrameExtractor(f adapters.FrameExtractor) Option {
	return func(w *Video3DTo2DWorkflow) { w.frames = f }
}

// WithPoseDetector replaces the external pose tool.
func WithPoseDetector(p adapters.PoseDetector) Option {
	return func(w *Video3DTo2DWorkflow) { w.pose = p }
}

// WithDepthEstimator replaces the external depth tool.
func WithDepthEstimator(d adapters.DepthEstimator) Option {
	return func(w *Video3DTo2DWorkflow) { w.depth = d }
}

// WithDepthSampler replaces the reader used to sample depth maps.
func WithDepthSampler(s converter.DepthSampler) Option {
	return func(w *Video3DTo2DWorkflow) { w.sampler = s }
}

// NewVideo3DTo2DWorkflow builds the pipeline.
//
// Inputs:
//   - config: The application configuration.
//   - serviceClients: The cloud clients, or nil when cloud integration is off.
//   - store: The project store receiving the results.
//   - opts: Replacements for the external tools, mostly for tests.
func NewVideo3DTo2DWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	store *store.Store,
	opts ...Option) *Video3DTo2DWorkflow {

	w := &Video3DTo2DWorkflow{
		BaseCommand: *cor.NewBaseCommand("video-3d-to-2d-pipeline"),
		config:      config,
		store:       store,
		frames:      adapters.NewFFMpegFrames(config.Frames),
		pose:        adapters.NewPoseAdapter(config.Pose),
		depth:       adapters.NewDepthAdapter(config.Depth),
		tracker:     tracker.NewCentroidTracker(tracker.TrackerConfig{MaxDistance: config.Calibration.MatchDistance}),
		sampler:     vision.FileSampler{},
	}
	if serviceClients != nil {
		w.storageClient = serviceClients.StorageClient
		w.bigqueryClient = serviceClients.BiqQueryClient
	}
	for _, opt := range opts {
		opt(w)
	}
	w.initializeChain()
	return w
}

// CameraModel maps the calibration section of the config onto the converter's
// camera assumptions.
func CameraModel(c cloud.CalibrationConfig) converter.CameraModel {
	return converter.CameraModel{
		FPS:           c.AssumedFPS,
		HorizontalFOV: c.HorizontalFOV,
		VerticalFOV:   c.VerticalFOV,
		DefaultWidth:  c.DefaultWidth,
		DefaultHeight: c.DefaultHeight,
		DepthScale:    c.DepthScale,
		DepthOffset:   c.DepthOffset,
		MinDepth:      c.MinDepth,
	}
}

func (w *Video3DTo2DWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	out.AddCommand(commands.NewConversionTriggerReader("conversion-trigger-reader"))
	out.AddCommand(commands.NewVideoResolver("resolve-video", w.store, w.config.Application.WorkDir))
	out.AddCommand(commands.NewGCSToTempFile("gcs-to-temp-file", w.storageClient, "video-3d-to-2d-"))
	out.AddCommand(commands.NewFrameExtractor("extract-frames", w.frames))
	out.AddCommand(commands.NewPoseDetector("detect-poses", w.pose))
	out.AddCommand(commands.NewDepthEstimator("estimate-depth", w.depth))
	out.AddCommand(commands.NewIdentityTracker("track-identities", w.tracker))

	conv := converter.NewConverter(CameraModel(w.config.Calibration), w.sampler,
		converter.WithWorkers(w.config.Application.ThreadPoolSize),
		converter.WithKeypoints(true))
	out.AddCommand(commands.NewStageConverter("convert-to-stage", conv))

	out.AddCommand(commands.NewResultPersist("persist-result", w.store))
	out.AddCommand(commands.NewPositionsPersistToBigQuery(
		"write-to-bigquery",
		w.bigqueryClient,
		w.config.BigQueryDataSource.DatasetName,
		w.config.BigQueryDataSource.PositionsTable))
	out.AddCommand(commands.NewSnapshotUpload(
		"upload-snapshot",
		w.storageClient,
		w.store,
		w.config.Storage.SnapshotBucket,
		w.config.Storage.SnapshotObject))

	w.chain = out
}

// IsExecutable needs a trigger in CtxIn.
func (w *Video3DTo2DWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(cor.CtxIn) != nil
}

// Execute runs the chain under the request timeout and records a failure on
// the video when any step failed.
func (w *Video3DTo2DWorkflow) Execute(context cor.Context) {
	parent := context.GetContext()
	ctx, cancel := goctx.WithTimeout(parent, w.config.RequestTimeout())
	defer cancel()
	context.SetContext(ctx)
	defer context.SetContext(parent)

	w.chain.Execute(context)

	if context.HasErrors() {
		w.GetErrorCounter().Add(parent, 1)
		w.markFailed(parent, context)
		return
	}
	w.GetSuccessCounter().Add(parent, 1)
}

func (w *Video3DTo2DWorkflow) markFailed(ctx goctx.Context, context cor.Context) {
	err := context.Err()
	req, ok := context.Get(commands.ParamRequest).(*model.ConversionRequest)
	if !ok {
		slog.ErrorContext(ctx, "conversion failed before the request was read", "error", err)
		return
	}
	slog.ErrorContext(ctx, "conversion failed", "video_id", req.VideoID, "error", err)

	// A busy video belongs to the run holding the claim.
	if errors.Is(err, store.ErrBusy) {
		return
	}
	if _, getErr := w.store.GetVideo(req.VideoID); errors.Is(getErr, store.ErrNotFound) {
		return
	}
	if e := w.store.SetProcessingResult(req.VideoID, model.ProcessingKey3DTo2D, model.ProcessingResult{
		Status: model.ProcessingStatusFailed,
		Error:  err.Error(),
	}); e != nil {
		slog.ErrorContext(ctx, "failed to record conversion failure", "video_id", req.VideoID, "error", e)
	}
	if e := w.store.UpdateVideoStatus(req.VideoID, model.VideoStatusError, 0, 0); e != nil {
		slog.ErrorContext(ctx, "failed to update video status", "video_id", req.VideoID, "error", e)
	}
}

// Run converts one request and returns its result. Intermediate files are
// removed before it returns; result.json is kept.
func (w *Video3DTo2DWorkflow) Run(ctx goctx.Context, req *model.ConversionRequest) (*model.Video3DTo2DResult, error) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, req)

	w.Execute(chCtx)
	if err := chCtx.Err(); err != nil {
		return nil, err
	}
	result, ok := chCtx.Get(commands.ParamResult).(*model.Video3DTo2DResult)
	if !ok {
		return nil, errors.New("conversion produced no result")
	}
	return result, nil
}
