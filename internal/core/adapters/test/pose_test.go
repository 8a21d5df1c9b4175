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

package adapters_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/adapters"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zassert "github.com/zeebo/assert"
)

const poseResults = `[
  {"image_id": "000012.jpg", "category_id": 1, "keypoints": [1, 2, 0.9], "score": 2.7, "bbox": [10, 20, 30, 40]},
  {"image_id": 7, "keypoints": [], "score": 1.1, "bbox": [0, 0, 5, 5]}
]`

func TestParsePoseResults(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, filepath.Join(dir, "alphapose-results.json"), poseResults)

	got, err := adapters.ParsePoseResults(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 12, got[0].FrameNumber)
	assert.Equal(t, "000012.jpg", got[0].ImageID)
	assert.Equal(t, []float64{10, 20, 30, 40}, got[0].BBox)
	assert.Equal(t, []float64{1, 2, 0.9}, got[0].Keypoints)

	assert.Equal(t, 7, got[1].FrameNumber)
	assert.Equal(t, "7", got[1].ImageID)
	assert.Equal(t, 1, got[1].CategoryID)
}

func TestParsePoseResultsWithoutFile(t *testing.T) {
	got, err := adapters.ParsePoseResults(context.Background(), t.TempDir())
	zassert.Nil(t, err)
	zassert.NotNil(t, got)
	zassert.Equal(t, len(got), 0)
}

func TestParsePoseResultsMalformed(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, filepath.Join(dir, "alphapose-results.json"), `{"not": "a list"}`)

	_, err := adapters.ParsePoseResults(context.Background(), dir)
	assert.Error(t, err)
}

func TestFrameNumber(t *testing.T) {
	cases := map[string]int{
		"000123.jpg":         123,
		"frame_0042":         42,
		"take2_frame_000009": 9,
		"poster.jpg":         0,
		"":                   0,
	}
	for name, want := range cases {
		assert.Equal(t, want, adapters.FrameNumber(name), name)
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "c.jpeg", "notes.txt", "sub/d.jpg"} {
		test.WriteFile(t, filepath.Join(dir, name), "x")
	}

	got, err := adapters.ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "c.jpeg"),
	}, got)

	_, err = adapters.ListImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPoseAdapterDetect(t *testing.T) {
	// Arguments: --video <video> --output <dir>
	tool := test.WriteTool(t, t.TempDir(), "alphapose", `
test "$1" = "--video" || exit 2
printf '[{"image_id": "000003.jpg", "bbox": [0, 0, 10, 10], "score": 0.9, "keypoints": []}]' > "$4/alphapose-results.json"
touch "$4/000003.jpg"`)
	a := adapters.NewPoseAdapter(cloud.AdapterConfig{Command: tool, TimeoutInSeconds: 30})

	out := filepath.Join(t.TempDir(), "pose")
	res, err := a.Detect(context.Background(), "video.mp4", out)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, 3, res.Detections[0].FrameNumber)
	assert.Equal(t, out, res.OutputDir)
	assert.Equal(t, []string{filepath.Join(out, "000003.jpg")}, res.FrameFiles)
}

func TestPoseAdapterFailure(t *testing.T) {
	tool := test.WriteTool(t, t.TempDir(), "alphapose", "echo 'CUDA out of memory' >&2\nexit 1")
	a := adapters.NewPoseAdapter(cloud.AdapterConfig{Command: tool})

	_, err := a.Detect(context.Background(), "video.mp4", t.TempDir())
	assert.ErrorIs(t, err, adapters.ErrAdapterFailed)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}
