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

package store

import (
	"fmt"
	"sort"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// ValidateIntegrity lists dangling references. An empty result means the
// store is consistent. Messages are sorted so the output is stable.
func (s *Store) ValidateIntegrity() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	errs := make([]string, 0)
	for videoID, segments := range s.transcripts {
		if _, ok := s.videos[videoID]; !ok {
			errs = append(errs, fmt.Sprintf("transcripts reference missing video %s", videoID))
		}
		for _, seg := range segments {
			if seg.SpeakerId == nil {
				continue
			}
			if _, ok := s.actors[*seg.SpeakerId]; !ok {
				errs = append(errs, fmt.Sprintf("transcript segment %s references missing speaker %s", seg.Id, *seg.SpeakerId))
			}
		}
	}
	for videoID, positions := range s.actorPositions {
		if _, ok := s.videos[videoID]; !ok {
			errs = append(errs, fmt.Sprintf("actor positions reference missing video %s", videoID))
		}
		for _, p := range positions {
			if _, ok := s.actors[p.ActorId]; !ok {
				errs = append(errs, fmt.Sprintf("actor position %s references missing actor %s", p.Id, p.ActorId))
			}
		}
	}
	for projectID := range s.lightingCues {
		if _, ok := s.projects[projectID]; !ok {
			errs = append(errs, fmt.Sprintf("lighting cues reference missing project %s", projectID))
		}
	}
	for projectID := range s.musicCues {
		if _, ok := s.projects[projectID]; !ok {
			errs = append(errs, fmt.Sprintf("music cues reference missing project %s", projectID))
		}
	}
	if s.currentProject != "" {
		if _, ok := s.projects[s.currentProject]; !ok {
			errs = append(errs, fmt.Sprintf("current project %s does not exist", s.currentProject))
		}
	}
	sort.Strings(errs)
	return errs
}

// CleanupReport counts what CleanupOrphans removed.
type CleanupReport struct {
	Transcripts         int  `json:"transcripts"`
	ActorPositions      int  `json:"actor_positions"`
	LightingCues        int  `json:"lighting_cues"`
	MusicCues           int  `json:"music_cues"`
	SpeakersCleared     int  `json:"speakers_cleared"`
	CurrentProjectReset bool `json:"current_project_reset"`
}

// Total is the number of removed or cleared entries.
func (r CleanupReport) Total() int {
	n := r.Transcripts + r.ActorPositions + r.LightingCues + r.MusicCues + r.SpeakersCleared
	if r.CurrentProjectReset {
		n++
	}
	return n
}

// CleanupOrphans removes every entry ValidateIntegrity would report.
//
// Inputs:
//   - None. It works on the store's current contents.
//
// Outputs:
//   - CleanupReport: How many entries of each kind were removed or cleared.
//     Transcripts, positions and cues whose owner is missing are dropped.
//     Transcript speakers that no longer exist are cleared and a dangling
//     current project is reset.
//   - error: ErrNotPersisted when the cleanup was applied but the autosave
//     failed.
func (s *Store) CleanupOrphans() (CleanupReport, error) {
	var report CleanupReport
	err := s.mutate(func() error {
		for videoID, segments := range s.transcripts {
			if _, ok := s.videos[videoID]; !ok {
				report.Transcripts += len(segments)
				delete(s.transcripts, videoID)
				continue
			}
			for i := range segments {
				if segments[i].SpeakerId == nil {
					continue
				}
				if _, ok := s.actors[*segments[i].SpeakerId]; !ok {
					segments[i].SpeakerId = nil
					report.SpeakersCleared++
				}
			}
		}
		for videoID, positions := range s.actorPositions {
			if _, ok := s.videos[videoID]; !ok {
				report.ActorPositions += len(positions)
				delete(s.actorPositions, videoID)
				continue
			}
			kept := positions[:0]
			for _, p := range positions {
				if _, ok := s.actors[p.ActorId]; ok {
					kept = append(kept, p)
				} else {
					report.ActorPositions++
				}
			}
			s.actorPositions[videoID] = kept
		}
		for projectID, cues := range s.lightingCues {
			if _, ok := s.projects[projectID]; !ok {
				report.LightingCues += len(cues)
				delete(s.lightingCues, projectID)
			}
		}
		for projectID, cues := range s.musicCues {
			if _, ok := s.projects[projectID]; !ok {
				report.MusicCues += len(cues)
				delete(s.musicCues, projectID)
			}
		}
		if s.currentProject != "" {
			if _, ok := s.projects[s.currentProject]; !ok {
				s.currentProject = ""
				report.CurrentProjectReset = true
			}
		}
		return nil
	})
	if err == nil && report.Total() > 0 {
		s.logger.Info("orphaned data removed",
			"transcripts", report.Transcripts,
			"actor_positions", report.ActorPositions,
			"lighting_cues", report.LightingCues,
			"music_cues", report.MusicCues,
			"speakers_cleared", report.SpeakersCleared,
			"current_project_reset", report.CurrentProjectReset)
	}
	return report, err
}

// Statistics counts the entities in the store.
type Statistics struct {
	ProjectsCount     int     `json:"projects_count"`
	VideosCount       int     `json:"videos_count"`
	ActorsCount       int     `json:"actors_count"`
	TranscriptsCount  int     `json:"transcripts_count"`
	PositionsCount    int     `json:"positions_count"`
	LightingCuesCount int     `json:"lighting_cues_count"`
	MusicCuesCount    int     `json:"music_cues_count"`
	CurrentProjectID  *string `json:"current_project_id"`
}

// Statistics returns entity counts.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Statistics{
		ProjectsCount: len(s.projects),
		VideosCount:   len(s.videos),
		ActorsCount:   len(s.actors),
	}
	for _, v := range s.transcripts {
		st.TranscriptsCount += len(v)
	}
	for _, v := range s.actorPositions {
		st.PositionsCount += len(v)
	}
	for _, v := range s.lightingCues {
		st.LightingCuesCount += len(v)
	}
	for _, v := range s.musicCues {
		st.MusicCuesCount += len(v)
	}
	if s.currentProject != "" {
		id := s.currentProject
		st.CurrentProjectID = &id
	}
	return st
}

// VideoResult returns the processing result stored under key for a video.
func (s *Store) VideoResult(videoID string, key string) (model.ProcessingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[videoID]
	if !ok {
		return model.ProcessingResult{}, notFound("video", videoID)
	}
	r, ok := v.ProcessingResults[key]
	if !ok {
		return model.ProcessingResult{Status: model.ProcessingStatusNotStarted}, nil
	}
	return r, nil
}
