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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// BackupTimeLayout is the timestamp used in backup file names.
const BackupTimeLayout = "20060102_150405"

// Snapshot is the persisted form of the whole store.
type Snapshot struct {
	Projects         map[string]model.Project             `json:"projects"`
	Videos           map[string]model.Video               `json:"videos"`
	Actors           map[string]model.Actor               `json:"actors"`
	Transcripts      map[string][]model.TranscriptSegment `json:"transcripts"`
	ActorPositions   map[string][]model.ActorPosition     `json:"actor_positions"`
	LightingCues     map[string][]model.LightingCue       `json:"lighting_cues"`
	MusicCues        map[string][]model.MusicCue          `json:"music_cues"`
	CurrentProjectID *string                              `json:"current_project_id"`
	SavedAt          time.Time                            `json:"saved_at"`
}

// Snapshot returns a deep copy of the store taken under the read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Projects:       make(map[string]model.Project, len(s.projects)),
		Videos:         make(map[string]model.Video, len(s.videos)),
		Actors:         make(map[string]model.Actor, len(s.actors)),
		Transcripts:    make(map[string][]model.TranscriptSegment, len(s.transcripts)),
		ActorPositions: make(map[string][]model.ActorPosition, len(s.actorPositions)),
		LightingCues:   make(map[string][]model.LightingCue, len(s.lightingCues)),
		MusicCues:      make(map[string][]model.MusicCue, len(s.musicCues)),
		SavedAt:        time.Now(),
	}
	for k, v := range s.projects {
		snap.Projects[k] = v
	}
	for k, v := range s.videos {
		snap.Videos[k] = copyVideo(v)
	}
	for k, v := range s.actors {
		snap.Actors[k] = v
	}
	for k, v := range s.transcripts {
		snap.Transcripts[k] = append([]model.TranscriptSegment{}, v...)
	}
	for k, v := range s.actorPositions {
		snap.ActorPositions[k] = append([]model.ActorPosition{}, v...)
	}
	for k := range s.lightingCues {
		snap.LightingCues[k] = s.lightingCuesLocked(k)
	}
	for k, v := range s.musicCues {
		snap.MusicCues[k] = append([]model.MusicCue{}, v...)
	}
	if s.currentProject != "" {
		id := s.currentProject
		snap.CurrentProjectID = &id
	}
	return snap
}

// Restore replaces the whole store with snap. Nil sections become empty.
func (s *Store) Restore(snap Snapshot) error {
	return s.mutate(func() error {
		s.restoreLocked(snap)
		return nil
	})
}

func (s *Store) restoreLocked(snap Snapshot) {
	s.reset()
	for k, v := range snap.Projects {
		s.projects[k] = v
	}
	for k, v := range snap.Videos {
		if v.ProcessingResults == nil {
			v.ProcessingResults = make(map[string]model.ProcessingResult)
		}
		s.videos[k] = copyVideo(v)
	}
	for k, v := range snap.Actors {
		s.actors[k] = v
	}
	for k, v := range snap.Transcripts {
		s.transcripts[k] = append([]model.TranscriptSegment(nil), v...)
	}
	for k, v := range snap.ActorPositions {
		s.actorPositions[k] = append([]model.ActorPosition(nil), v...)
	}
	for k, v := range snap.LightingCues {
		cues := make([]model.LightingCue, 0, len(v))
		for _, c := range v {
			cues = append(cues, copyLightingCue(c))
		}
		s.lightingCues[k] = cues
	}
	for k, v := range snap.MusicCues {
		s.musicCues[k] = append([]model.MusicCue(nil), v...)
	}
	if snap.CurrentProjectID != nil {
		s.currentProject = *snap.CurrentProjectID
	}
}

// WriteTo encodes a snapshot of the store as indented JSON.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	snap := s.Snapshot()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}
	n, err := w.Write(b)
	return int64(n), err
}

// ReadFrom decodes a snapshot and replaces the store with it.
func (s *Store) ReadFrom(r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return int64(len(b)), fmt.Errorf("decoding snapshot: %w", err)
	}
	return int64(len(b)), s.Restore(snap)
}

// Save writes a snapshot to path. The file is replaced atomically.
func (s *Store) Save(path string) error {
	snap := s.Snapshot()
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := writeSnapshot(path, snap); err != nil {
		return err
	}
	s.logger.Info("store saved", "path", path)
	return nil
}

// Load replaces the store with the snapshot at path.
//
// Inputs:
//   - path: A JSON snapshot written by Save.
//
// Outputs:
//   - error: An error wrapping fs.ErrNotExist for a missing file, or a decode
//     error. The store is left untouched in both cases.
func (s *Store) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	s.mu.Lock()
	s.restoreLocked(snap)
	s.mu.Unlock()
	s.logger.Info("store loaded", "path", path, "projects", len(snap.Projects), "videos", len(snap.Videos))
	return nil
}

// LoadIfExists loads path when it exists. It reports whether a file was read.
func (s *Store) LoadIfExists(path string) (bool, error) {
	err := s.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// BackupName returns the backup file name for path at t.
func BackupName(path string, t time.Time) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s_backup_%s.json", base, t.Format(BackupTimeLayout))
}

// Backup saves a timestamped copy next to path and returns its name.
func (s *Store) Backup(path string) (string, error) {
	name := BackupName(path, time.Now())
	if err := s.Save(name); err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	return name, nil
}

// RestoreFromBackup replaces the store with a backup file.
func (s *Store) RestoreFromBackup(path string) error {
	if err := s.Load(path); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

func writeSnapshot(path string, snap Snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
