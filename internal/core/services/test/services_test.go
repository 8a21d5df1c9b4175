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

// Package services_test exercises the local fallbacks of the services. The
// cloud paths need live GCS and BigQuery clients and are not covered here.
package services_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/services"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesLocalUpload(t *testing.T) {
	svc := &services.VideoService{WorkDir: t.TempDir()}

	path, err := svc.Save(context.Background(), "../../etc/take_1.mp4", strings.NewReader("frames"))
	require.NoError(t, err)

	assert.False(t, services.IsRemote(path))
	assert.Equal(t, filepath.Join(svc.WorkDir, services.UploadDirName), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_take_1.mp4"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(b))
}

func TestStoredNamesAreUnique(t *testing.T) {
	a := services.StoredName("take.mp4")
	b := services.StoredName("take.mp4")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "_take.mp4"))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, services.IsRemote("gs://bucket/take.mp4"))
	assert.False(t, services.IsRemote("temp/uploads/take.mp4"))
}

func TestCloudPathsDisabledWithoutClients(t *testing.T) {
	ctx := context.Background()

	_, err := (&services.VideoService{}).GenerateSignedURL(ctx, "gs://bucket/take.mp4", time.Minute)
	assert.ErrorIs(t, err, services.ErrCloudDisabled)

	_, err = (&services.PositionService{}).List(ctx, "video", "", 0)
	assert.ErrorIs(t, err, services.ErrCloudDisabled)

	mirror := &services.SnapshotMirror{Bucket: "bucket", Object: "stage_data.json"}
	assert.False(t, mirror.Enabled())
	assert.ErrorIs(t, mirror.Upload(ctx, store.New()), services.ErrCloudDisabled)
	restored, err := mirror.Restore(ctx, store.New())
	assert.False(t, restored)
	assert.ErrorIs(t, err, services.ErrCloudDisabled)

	var none *services.SnapshotMirror
	assert.False(t, none.Enabled())
}
