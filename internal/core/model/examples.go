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

package model

// DefaultProjectName is used when the editor opens with no current project.
const DefaultProjectName = "Untitled Stage"

// NewDefaultProject creates the project handed out when none is current.
func NewDefaultProject() *Project {
	return NewProject(DefaultProjectName, "Created automatically")
}

// GetExampleStageAnnotation returns a 4m x 3m stage seen slightly off-axis,
// with a 5m reference depth. It documents the request shape and seeds tests.
func GetExampleStageAnnotation() StageAnnotation {
	return StageAnnotation{
		Corners: []Point2D{
			{X: 100, Y: 100},
			{X: 800, Y: 120},
			{X: 780, Y: 600},
			{X: 120, Y: 580},
		},
		DepthReference: 5.0,
		RealWidth:      4.0,
		RealHeight:     3.0,
	}
}

// GetExampleConversionRequest wraps the example annotation in a request.
func GetExampleConversionRequest(videoID string) *ConversionRequest {
	return &ConversionRequest{
		VideoID:         videoID,
		StageAnnotation: GetExampleStageAnnotation(),
	}
}
