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

// KeypointNames are the 17 COCO body joints in the order the pose tool emits them.
var KeypointNames = []string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// KeypointsByName maps a flat x, y, confidence array onto KeypointNames.
// Joints missing from the array are zero.
func KeypointsByName(flat []float64) map[string]Keypoint {
	out := make(map[string]Keypoint, len(KeypointNames))
	for i, name := range KeypointNames {
		if i*3+2 < len(flat) {
			out[name] = Keypoint{X: flat[i*3], Y: flat[i*3+1], Confidence: flat[i*3+2]}
		} else {
			out[name] = Keypoint{}
		}
	}
	return out
}
