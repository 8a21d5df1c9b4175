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

package store_test

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	test "github.com/Tinuvile/rehearseOnline/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zassert "github.com/zeebo/assert"
)

var ignoreSavedAt = cmpopts.IgnoreFields(store.Snapshot{}, "SavedAt")

// populated returns a store with at least one of every entity.
func populated(t *testing.T) *store.Store {
	t.Helper()
	s, v, a := seed(t)
	p, err := s.CreateProject("Tempest", "storm scene")
	test.HandleErr(err, t)

	seg := model.NewTranscriptSegment("Full fathom five", 1, 3, 0.8)
	seg.SpeakerId = &a.Id
	test.HandleErr(s.SetTranscripts(v.Id, []model.TranscriptSegment{*seg}), t)
	_, err = s.UpdateActorPosition(v.Id, a.Id, 1.5, model.Point2D{X: 2, Y: 1})
	test.HandleErr(err, t)

	light := model.LightState{LightId: "wash", Color: model.RGB{R: 10, G: 20, B: 30}, Intensity: 0.5, Position: &model.Point3D{X: 1, Y: 2, Z: 3}}
	test.HandleErr(s.AddLightingCue(p.Id, *model.NewLightingCue(2, []model.LightState{light})), t)
	test.HandleErr(s.AddMusicCue(p.Id, *model.NewMusicCue(0, model.MusicActionStart)), t)
	test.HandleErr(s.SetProcessingResult(v.Id, model.ProcessingKey3DTo2D, model.ProcessingResult{
		Status:     model.ProcessingStatusCompleted,
		ResultFile: "/tmp/result.json",
	}), t)
	return s
}

func TestSnapshotStreamRoundTrip(t *testing.T) {
	src := populated(t)

	var buf bytes.Buffer
	_, err := src.WriteTo(&buf)
	require.NoError(t, err)

	dst := store.New()
	_, err = dst.ReadFrom(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(src.Snapshot(), dst.Snapshot(), ignoreSavedAt); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	src := populated(t)
	path := filepath.Join(t.TempDir(), "nested", "stage_data.json")
	require.NoError(t, src.Save(path))

	dst := store.New()
	loaded, err := dst.LoadIfExists(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	if diff := cmp.Diff(src.Snapshot(), dst.Snapshot(), ignoreSavedAt); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIfExistsMissingFile(t *testing.T) {
	s := store.New()
	loaded, err := s.LoadIfExists(filepath.Join(t.TempDir(), "absent.json"))
	zassert.Nil(t, err)
	zassert.That(t, !loaded)
}

func TestLoadCorruptFileKeepsState(t *testing.T) {
	s, _, _ := seed(t)
	path := filepath.Join(t.TempDir(), "broken.json")
	test.WriteFile(t, path, "{not json")

	assert.Error(t, s.Load(path))
	assert.Len(t, s.ListActors(), 1)
}

func TestAutosaveWritesAfterMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "stage_data.json")
	s := store.New(store.WithAutosave(path))

	a, err := s.AddActor("Ariel", "#00FF00")
	require.NoError(t, err)

	reloaded := store.New()
	require.NoError(t, reloaded.Load(path))
	got, err := reloaded.GetActor(a.Id)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	// Failed mutations do not touch the file.
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = s.AddActor("", "")
	require.Error(t, err)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBackupName(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	zassert.Equal(t, store.BackupName("data/stage_data.json", at), "data/stage_data_backup_20240102_030405.json")
}

func TestBackupAndRestore(t *testing.T) {
	src := populated(t)
	path := filepath.Join(t.TempDir(), "stage_data.json")

	name, err := src.Backup(path)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`stage_data_backup_\d{8}_\d{6}\.json$`), name)
	assert.FileExists(t, name)

	dst := store.New()
	require.NoError(t, dst.RestoreFromBackup(name))
	assert.Equal(t, src.Statistics(), dst.Statistics())

	assert.Error(t, dst.RestoreFromBackup(filepath.Join(t.TempDir(), "nope.json")))
}
