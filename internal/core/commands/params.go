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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface for the 3D to 2D
// conversion pipeline.
//
// Steps hand their results to each other through named context parameters
// rather than the CtxIn/CtxOut pipe, because several steps read more than one
// earlier result (the converter needs the tracks, the depth frames and the
// request).
package commands

// Context parameters shared by the conversion commands.
const (
	ParamRequest   = "__CONVERSION_REQUEST__" // *model.ConversionRequest
	ParamStarted   = "__STARTED_AT__"         // time.Time
	ParamWorkDir   = "__WORK_DIR__"           // string, per video output directory
	ParamVideoFile = "__VIDEO_FILE__"         // string, local path of the video
	ParamFramesDir = "__FRAMES_DIR__"         // string
	ParamPose      = "__POSE_RESULT__"        // *model.PoseResult
	ParamDepth     = "__DEPTH_RESULT__"       // *model.DepthResult
	ParamTracks    = "__TRACKS__"             // []model.Track
	ParamPositions = "__POSITIONS__"          // []model.PersonPosition
	ParamReport    = "__CONVERSION_REPORT__"  // converter.Report
	ParamResult    = "__RESULT__"             // *model.Video3DTo2DResult
)

// Directory and file names under the per video work directory.
const (
	FramesDirName      = "frames"
	PoseOutputDirName  = "alphapose_output"
	DepthOutputDirName = "midas_output"
	ResultFileName     = "result.json"
)
