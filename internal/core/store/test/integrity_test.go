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
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStoreHasNoProblems(t *testing.T) {
	s, v, a := seed(t)
	_, err := s.UpdateActorPosition(v.Id, a.Id, 1, model.Point2D{})
	require.NoError(t, err)

	assert.Empty(t, s.ValidateIntegrity())

	report, err := s.CleanupOrphans()
	require.NoError(t, err)
	assert.Zero(t, report.Total())
}

func TestDeletedActorLeavesOrphans(t *testing.T) {
	s, v, a := seed(t)
	_, err := s.UpdateActorPosition(v.Id, a.Id, 1, model.Point2D{})
	require.NoError(t, err)

	seg := model.NewTranscriptSegment("Alas", 0, 1, 1)
	seg.SpeakerId = &a.Id
	require.NoError(t, s.SetTranscripts(v.Id, []model.TranscriptSegment{*seg}))

	require.NoError(t, s.DeleteActor(a.Id))
	problems := s.ValidateIntegrity()
	assert.Len(t, problems, 2)

	report, err := s.CleanupOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, report.ActorPositions)
	assert.Equal(t, 1, report.SpeakersCleared)
	assert.Equal(t, 2, report.Total())

	assert.Empty(t, s.ActorPositions(v.Id))
	segments := s.Transcripts(v.Id)
	require.Len(t, segments, 1)
	assert.Nil(t, segments[0].SpeakerId)
	assert.Empty(t, s.ValidateIntegrity())
}

func TestDeletedVideoAndProjectLeaveOrphans(t *testing.T) {
	s, v, a := seed(t)
	_, err := s.UpdateActorPosition(v.Id, a.Id, 1, model.Point2D{})
	require.NoError(t, err)
	require.NoError(t, s.SetTranscripts(v.Id, []model.TranscriptSegment{*model.NewTranscriptSegment("Alas", 0, 1, 1)}))

	p, err := s.CreateProject("Tempest", "")
	require.NoError(t, err)
	require.NoError(t, s.AddMusicCue(p.Id, *model.NewMusicCue(1, model.MusicActionStart)))
	require.NoError(t, s.AddLightingCue(p.Id, *model.NewLightingCue(1, nil)))

	require.NoError(t, s.DeleteVideo(v.Id))
	require.NoError(t, s.DeleteProject(p.Id))

	// Transcripts, positions, two cue kinds and the current project pointer.
	assert.Len(t, s.ValidateIntegrity(), 5)

	report, err := s.CleanupOrphans()
	require.NoError(t, err)
	assert.Equal(t, store.CleanupReport{
		Transcripts:         1,
		ActorPositions:      1,
		LightingCues:        1,
		MusicCues:           1,
		CurrentProjectReset: true,
	}, report)
	assert.Equal(t, 5, report.Total())
	assert.Empty(t, s.ValidateIntegrity())

	_, err = s.CurrentProject()
	assert.ErrorIs(t, err, store.ErrNotFound)
}
