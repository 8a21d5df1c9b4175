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

// Package store is the in-memory project store: projects, videos, actors,
// transcripts, actor positions and cues, with whole-store JSON snapshots.
//
// All access goes through a single RWMutex. Values are copied in and out so
// callers never share mutable state with the store. Writes are checked against
// the entity validators, but cross references (a position naming an unknown
// actor, a cue for a deleted project) are only reported by ValidateIntegrity
// and removed by CleanupOrphans.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when an entity fails validation.
	ErrInvalid = errors.New("invalid")
	// ErrNotPersisted is returned when a mutation was applied in memory but
	// the autosave snapshot could not be written. The returned values of the
	// call are valid.
	ErrNotPersisted = errors.New("applied but not persisted")
	// ErrBusy is returned when another run already holds a processing claim.
	ErrBusy = errors.New("already processing")
)

// PositionMatchWindow is how close, in seconds, a drag edit must be to an
// existing actor position to update it instead of adding a new one.
const PositionMatchWindow = 0.1

// Store holds every entity of the service.
type Store struct {
	mu             sync.RWMutex
	projects       map[string]model.Project
	videos         map[string]model.Video
	actors         map[string]model.Actor
	transcripts    map[string][]model.TranscriptSegment // video ID
	actorPositions map[string][]model.ActorPosition     // video ID
	lightingCues   map[string][]model.LightingCue       // project ID
	musicCues      map[string][]model.MusicCue          // project ID
	currentProject string

	saveMu   sync.Mutex
	autosave string
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithAutosave writes a snapshot to path after every successful mutation.
func WithAutosave(path string) Option {
	return func(s *Store) { s.autosave = path }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) reset() {
	s.projects = make(map[string]model.Project)
	s.videos = make(map[string]model.Video)
	s.actors = make(map[string]model.Actor)
	s.transcripts = make(map[string][]model.TranscriptSegment)
	s.actorPositions = make(map[string][]model.ActorPosition)
	s.lightingCues = make(map[string][]model.LightingCue)
	s.musicCues = make(map[string][]model.MusicCue)
	s.currentProject = ""
}

// mutate runs fn under the write lock and, when autosave is on and fn
// succeeded, persists a snapshot taken before the lock is released. File
// writes happen in mutation order. A failed write is reported as
// ErrNotPersisted; the change itself stays applied.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.autosave == "" {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.snapshotLocked()
	s.saveMu.Lock()
	s.mu.Unlock()
	defer s.saveMu.Unlock()
	if err := writeSnapshot(s.autosave, snapshot); err != nil {
		s.logger.Error("autosave failed", "path", s.autosave, "error", err)
		return fmt.Errorf("%w: autosave: %w", ErrNotPersisted, err)
	}
	return nil
}

func invalid(kind string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %s: %s", ErrInvalid, kind, strings.Join(errs, "; "))
}

func notFound(kind string, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// CreateProject adds a project and makes it current.
func (s *Store) CreateProject(name string, description string) (model.Project, error) {
	p := model.NewProject(name, description)
	if err := invalid("project", p.Validate()); err != nil {
		return model.Project{}, err
	}
	err := s.mutate(func() error {
		s.projects[p.Id] = *p
		s.currentProject = p.Id
		return nil
	})
	return *p, err
}

// GetProject returns the project with id.
func (s *Store) GetProject(id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, notFound("project", id)
	}
	return p, nil
}

// CurrentProject returns the current project.
func (s *Store) CurrentProject() (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentProject == "" {
		return model.Project{}, notFound("project", "current")
	}
	p, ok := s.projects[s.currentProject]
	if !ok {
		return model.Project{}, notFound("project", s.currentProject)
	}
	return p, nil
}

// EnsureCurrentProject returns the current project, creating the default one
// when there is none. created reports whether a project was created.
func (s *Store) EnsureCurrentProject() (project model.Project, created bool, err error) {
	if p, err := s.CurrentProject(); err == nil {
		return p, false, nil
	}
	d := model.NewDefaultProject()
	err = s.mutate(func() error {
		// Another caller may have won the race.
		if p, ok := s.projects[s.currentProject]; ok {
			project = p
			return nil
		}
		s.projects[d.Id] = *d
		s.currentProject = d.Id
		project = *d
		created = true
		return nil
	})
	return project, created, err
}

// SetCurrentProject makes id the current project.
func (s *Store) SetCurrentProject(id string) error {
	return s.mutate(func() error {
		if _, ok := s.projects[id]; !ok {
			return notFound("project", id)
		}
		s.currentProject = id
		return nil
	})
}

// DeleteProject removes a project. Its cues stay until CleanupOrphans.
func (s *Store) DeleteProject(id string) error {
	return s.mutate(func() error {
		if _, ok := s.projects[id]; !ok {
			return notFound("project", id)
		}
		delete(s.projects, id)
		return nil
	})
}

// AddVideo registers an uploaded video.
func (s *Store) AddVideo(filename string, filePath string) (model.Video, error) {
	v := model.NewVideo(filename, filePath)
	if err := invalid("video", v.Validate()); err != nil {
		return model.Video{}, err
	}
	err := s.mutate(func() error {
		s.videos[v.Id] = copyVideo(*v)
		return nil
	})
	return *v, err
}

// GetVideo returns the video with id.
func (s *Store) GetVideo(id string) (model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return model.Video{}, notFound("video", id)
	}
	return copyVideo(v), nil
}

// ListVideos returns every video, oldest first.
func (s *Store) ListVideos() []model.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listVideosLocked()
}

func (s *Store) listVideosLocked() []model.Video {
	out := make([]model.Video, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, copyVideo(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Id < out[j].Id
	})
	return out
}

// UpdateVideo replaces a stored video.
func (s *Store) UpdateVideo(v model.Video) error {
	if err := invalid("video", v.Validate()); err != nil {
		return err
	}
	return s.mutate(func() error {
		if _, ok := s.videos[v.Id]; !ok {
			return notFound("video", v.Id)
		}
		s.videos[v.Id] = copyVideo(v)
		return nil
	})
}

// UpdateVideoStatus sets the status, and the duration and fps when positive.
func (s *Store) UpdateVideoStatus(id string, status string, duration float64, fps int) error {
	return s.mutate(func() error {
		v, ok := s.videos[id]
		if !ok {
			return notFound("video", id)
		}
		v.Status = status
		if duration > 0 {
			v.Duration = duration
		}
		if fps > 0 {
			v.FPS = fps
		}
		if err := invalid("video", v.Validate()); err != nil {
			return err
		}
		s.videos[id] = v
		return nil
	})
}

// SetProcessingResult records result under key in the video's processing results.
func (s *Store) SetProcessingResult(id string, key string, result model.ProcessingResult) error {
	return s.mutate(func() error {
		v, ok := s.videos[id]
		if !ok {
			return notFound("video", id)
		}
		v = copyVideo(v)
		if result.UpdatedAt.IsZero() {
			result.UpdatedAt = time.Now()
		}
		v.ProcessingResults[key] = result
		s.videos[id] = v
		return nil
	})
}

// ClaimProcessing marks the video and its key result as processing on behalf
// of runID. It fails with ErrBusy while a different run holds the claim; the
// same runID may claim again. The claim ends when the result is overwritten
// with any other status.
//
// Inputs:
//   - videoID: The video to convert.
//   - key: The processing_results key, for example model.ProcessingKey3DTo2D.
//   - runID: A unique name for the run.
//
// Outputs:
//   - model.Video: A copy of the claimed video.
//   - error: ErrNotFound, ErrBusy or an ErrNotPersisted autosave failure.
func (s *Store) ClaimProcessing(videoID string, key string, runID string) (model.Video, error) {
	var out model.Video
	err := s.mutate(func() error {
		v, ok := s.videos[videoID]
		if !ok {
			return notFound("video", videoID)
		}
		if cur, ok := v.ProcessingResults[key]; ok && cur.Status == model.ProcessingStatusProcessing && cur.RunId != runID {
			return fmt.Errorf("video %q %s run %s: %w", videoID, key, cur.RunId, ErrBusy)
		}
		v = copyVideo(v)
		v.Status = model.VideoStatusProcessing
		v.ProcessingResults[key] = model.ProcessingResult{
			Status:    model.ProcessingStatusProcessing,
			RunId:     runID,
			UpdatedAt: time.Now(),
		}
		s.videos[videoID] = v
		out = copyVideo(v)
		return nil
	})
	return out, err
}

// ReleaseInterrupted fails every key result still marked processing. It runs
// at startup, when no run can be alive, and returns how many were released.
func (s *Store) ReleaseInterrupted(key string) (int, error) {
	released := 0
	err := s.mutate(func() error {
		for id, v := range s.videos {
			cur, ok := v.ProcessingResults[key]
			if !ok || cur.Status != model.ProcessingStatusProcessing {
				continue
			}
			v = copyVideo(v)
			v.Status = model.VideoStatusError
			v.ProcessingResults[key] = model.ProcessingResult{
				Status:    model.ProcessingStatusFailed,
				Error:     "interrupted by a restart",
				UpdatedAt: time.Now(),
			}
			s.videos[id] = v
			released++
		}
		return nil
	})
	return released, err
}

// DeleteVideo removes a video. Its transcripts and positions stay until
// CleanupOrphans.
func (s *Store) DeleteVideo(id string) error {
	return s.mutate(func() error {
		if _, ok := s.videos[id]; !ok {
			return notFound("video", id)
		}
		delete(s.videos, id)
		return nil
	})
}

// AddActor creates an actor. An empty color uses the default.
func (s *Store) AddActor(name string, color string) (model.Actor, error) {
	a := model.NewActor(name, color)
	if err := invalid("actor", a.Validate()); err != nil {
		return model.Actor{}, err
	}
	err := s.mutate(func() error {
		s.actors[a.Id] = *a
		return nil
	})
	return *a, err
}

// GetActor returns the actor with id.
func (s *Store) GetActor(id string) (model.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return model.Actor{}, notFound("actor", id)
	}
	return a, nil
}

// ListActors returns every actor ordered by name.
func (s *Store) ListActors() []model.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listActorsLocked()
}

func (s *Store) listActorsLocked() []model.Actor {
	out := make([]model.Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Id < out[j].Id
	})
	return out
}

// DeleteActor removes an actor. Positions naming it stay until CleanupOrphans.
func (s *Store) DeleteActor(id string) error {
	return s.mutate(func() error {
		if _, ok := s.actors[id]; !ok {
			return notFound("actor", id)
		}
		delete(s.actors, id)
		return nil
	})
}

// SetTranscripts replaces the transcript of a video.
func (s *Store) SetTranscripts(videoID string, segments []model.TranscriptSegment) error {
	for i := range segments {
		if err := invalid(fmt.Sprintf("transcript segment %d", i), segments[i].Validate()); err != nil {
			return err
		}
	}
	return s.mutate(func() error {
		s.transcripts[videoID] = append([]model.TranscriptSegment(nil), segments...)
		return nil
	})
}

// Transcripts returns the transcript of a video.
func (s *Store) Transcripts(videoID string) []model.TranscriptSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.TranscriptSegment{}, s.transcripts[videoID]...)
}

// SetActorPositions replaces the actor positions of a video.
func (s *Store) SetActorPositions(videoID string, positions []model.ActorPosition) error {
	for i := range positions {
		if err := invalid(fmt.Sprintf("actor position %d", i), positions[i].Validate()); err != nil {
			return err
		}
	}
	return s.mutate(func() error {
		s.actorPositions[videoID] = append([]model.ActorPosition(nil), positions...)
		return nil
	})
}

// ActorPositions returns the actor positions of a video.
func (s *Store) ActorPositions(videoID string) []model.ActorPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ActorPosition{}, s.actorPositions[videoID]...)
}

// UpdateActorPosition applies a drag edit.
//
// Inputs:
//   - videoID: The video the position belongs to. It must exist.
//   - actorID: The dragged actor. It must exist.
//   - timestamp: Seconds into the video. It must be finite and not negative.
//   - at: The new stage position. Both coordinates must be finite.
//
// Outputs:
//   - model.ActorPosition: The first position of the actor within
//     PositionMatchWindow of timestamp, moved to at. When there is none a new
//     position with confidence 1.0 is appended and returned.
//   - error: ErrInvalid for a non-finite or negative input, ErrNotFound for a
//     missing actor or video, or ErrNotPersisted when the edit was applied but
//     the autosave failed.
func (s *Store) UpdateActorPosition(videoID string, actorID string, timestamp float64, at model.Point2D) (model.ActorPosition, error) {
	candidate := model.NewActorPosition(actorID, timestamp, at, 1.0)
	if err := invalid("actor position", candidate.Validate()); err != nil {
		return model.ActorPosition{}, err
	}
	var out model.ActorPosition
	err := s.mutate(func() error {
		if _, ok := s.actors[actorID]; !ok {
			return notFound("actor", actorID)
		}
		if _, ok := s.videos[videoID]; !ok {
			return notFound("video", videoID)
		}
		positions := s.actorPositions[videoID]
		for i := range positions {
			p := &positions[i]
			if p.ActorId == actorID && math.Abs(p.Timestamp-timestamp) < PositionMatchWindow {
				p.Position2D = at
				out = *p
				return nil
			}
		}
		s.actorPositions[videoID] = append(positions, *candidate)
		out = *candidate
		return nil
	})
	return out, err
}

// AddLightingCue appends a cue to a project.
func (s *Store) AddLightingCue(projectID string, cue model.LightingCue) error {
	if err := invalid("lighting cue", cue.Validate()); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.lightingCues[projectID] = append(s.lightingCues[projectID], copyLightingCue(cue))
		return nil
	})
}

// LightingCues returns the lighting cues of a project.
func (s *Store) LightingCues(projectID string) []model.LightingCue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lightingCuesLocked(projectID)
}

func (s *Store) lightingCuesLocked(projectID string) []model.LightingCue {
	out := make([]model.LightingCue, 0, len(s.lightingCues[projectID]))
	for _, c := range s.lightingCues[projectID] {
		out = append(out, copyLightingCue(c))
	}
	return out
}

// AddMusicCue appends a cue to a project.
func (s *Store) AddMusicCue(projectID string, cue model.MusicCue) error {
	if err := invalid("music cue", cue.Validate()); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.musicCues[projectID] = append(s.musicCues[projectID], cue)
		return nil
	})
}

// MusicCues returns the music cues of a project.
func (s *Store) MusicCues(projectID string) []model.MusicCue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MusicCue{}, s.musicCues[projectID]...)
}

// VideoData is a video together with its transcript.
type VideoData struct {
	model.Video
	Transcripts []model.TranscriptSegment `json:"transcripts"`
}

// SaveVideoData stores a video under its own ID, replacing any previous one,
// together with its transcript.
func (s *Store) SaveVideoData(data VideoData) error {
	v := data.Video
	if v.Id == "" {
		return fmt.Errorf("%w video: id is required", ErrInvalid)
	}
	if v.FPS == 0 {
		v.FPS = model.DefaultFPS
	}
	if v.Resolution == "" {
		v.Resolution = model.DefaultResolution
	}
	if v.Status == "" {
		v.Status = model.VideoStatusUploaded
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if err := invalid("video", v.Validate()); err != nil {
		return err
	}
	for i := range data.Transcripts {
		if err := invalid(fmt.Sprintf("transcript segment %d", i), data.Transcripts[i].Validate()); err != nil {
			return err
		}
	}
	return s.mutate(func() error {
		s.videos[v.Id] = copyVideo(v)
		if data.Transcripts != nil {
			s.transcripts[v.Id] = append([]model.TranscriptSegment(nil), data.Transcripts...)
		}
		return nil
	})
}

// GetVideoData returns a video with its transcript.
func (s *Store) GetVideoData(id string) (VideoData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return VideoData{}, notFound("video", id)
	}
	return VideoData{
		Video:       copyVideo(v),
		Transcripts: append([]model.TranscriptSegment{}, s.transcripts[id]...),
	}, nil
}

// ProjectData is the nested view of a project sent to the editor.
type ProjectData struct {
	Project        model.Project                        `json:"project"`
	Videos         []model.Video                        `json:"videos"`
	Actors         []model.Actor                        `json:"actors"`
	Transcripts    map[string][]model.TranscriptSegment `json:"transcripts"`
	ActorPositions map[string][]model.ActorPosition     `json:"actor_positions"`
	LightingCues   []model.LightingCue                  `json:"lighting_cues"`
	MusicCues      []model.MusicCue                     `json:"music_cues"`
}

// GetProjectData assembles everything the editor shows for a project. Videos
// and actors are not owned by a project, so all of them are included.
func (s *Store) GetProjectData(projectID string) (ProjectData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ProjectData{}, notFound("project", projectID)
	}
	data := ProjectData{
		Project:        p,
		Videos:         s.listVideosLocked(),
		Actors:         s.listActorsLocked(),
		Transcripts:    make(map[string][]model.TranscriptSegment),
		ActorPositions: make(map[string][]model.ActorPosition),
		LightingCues:   s.lightingCuesLocked(projectID),
		MusicCues:      append([]model.MusicCue{}, s.musicCues[projectID]...),
	}
	for _, v := range data.Videos {
		data.Transcripts[v.Id] = append([]model.TranscriptSegment{}, s.transcripts[v.Id]...)
		data.ActorPositions[v.Id] = append([]model.ActorPosition{}, s.actorPositions[v.Id]...)
	}
	return data, nil
}

// Timeline is everything placed on the timeline of one video.
type Timeline struct {
	Video          model.Video               `json:"video"`
	Transcripts    []model.TranscriptSegment `json:"transcripts"`
	ActorPositions []model.ActorPosition     `json:"actor_positions"`
	LightingCues   []model.LightingCue       `json:"lighting_cues"`
	MusicCues      []model.MusicCue          `json:"music_cues"`
}

// GetTimeline returns the timeline of a video. Cues come from the current
// project, if there is one.
func (s *Store) GetTimeline(videoID string) (Timeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[videoID]
	if !ok {
		return Timeline{}, notFound("video", videoID)
	}
	t := Timeline{
		Video:          copyVideo(v),
		Transcripts:    append([]model.TranscriptSegment{}, s.transcripts[videoID]...),
		ActorPositions: append([]model.ActorPosition{}, s.actorPositions[videoID]...),
		LightingCues:   []model.LightingCue{},
		MusicCues:      []model.MusicCue{},
	}
	if _, ok := s.projects[s.currentProject]; ok {
		t.LightingCues = s.lightingCuesLocked(s.currentProject)
		t.MusicCues = append(t.MusicCues, s.musicCues[s.currentProject]...)
	}
	return t, nil
}

// ClearAll removes every entity and the current project pointer.
func (s *Store) ClearAll() error {
	s.logger.Info("clearing all store data")
	return s.mutate(func() error {
		s.reset()
		return nil
	})
}

func copyVideo(v model.Video) model.Video {
	results := make(map[string]model.ProcessingResult, len(v.ProcessingResults))
	for k, r := range v.ProcessingResults {
		results[k] = r
	}
	v.ProcessingResults = results
	return v
}

func copyLightingCue(c model.LightingCue) model.LightingCue {
	c.Lights = append([]model.LightState(nil), c.Lights...)
	return c
}
