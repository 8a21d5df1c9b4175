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

import (
	"time"

	"github.com/google/uuid"
)

// Video statuses.
const (
	VideoStatusUploaded   = "uploaded"
	VideoStatusProcessing = "processing"
	VideoStatusProcessed  = "processed"
	VideoStatusError      = "error"
)

// Music cue actions.
const (
	MusicActionStart   = "start"
	MusicActionStop    = "stop"
	MusicActionFadeIn  = "fade_in"
	MusicActionFadeOut = "fade_out"
)

// ProcessingKey3DTo2D is the processing_results entry of a stage conversion.
const ProcessingKey3DTo2D = "3d_to_2d"

// Processing result statuses.
const (
	ProcessingStatusNotStarted = "not_started"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted  = "completed"
	ProcessingStatusFailed     = "failed"
)

const (
	DefaultFPS        = 30
	DefaultResolution = "1920x1080"
	DefaultActorColor = "#FF5733"
)

// Project is the root of a stage plan.
type Project struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewProject creates a project with a random ID.
func NewProject(name string, description string) *Project {
	return &Project{
		Id:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

// ProcessingResult records the state of one analysis attached to a video.
type ProcessingResult struct {
	Status          string    `json:"status"`
	ResultFile      string    `json:"result_file,omitempty"`
	PositionsCount  int       `json:"positions_count"`
	PersonsDetected int       `json:"persons_detected,omitempty"`
	ProcessingTime  float64   `json:"processing_time,omitempty"`
	Error           string    `json:"error,omitempty"`
	RunId           string    `json:"run_id,omitempty"` // Run holding a processing claim.
	UpdatedAt       time.Time `json:"updated_at"`
}

// Video is an uploaded rehearsal recording.
type Video struct {
	Id                string                      `json:"id"`
	Filename          string                      `json:"filename"`
	FilePath          string                      `json:"file_path"`
	Duration          float64                     `json:"duration"`
	FPS               int                         `json:"fps"`
	Resolution        string                      `json:"resolution"`
	Status            string                      `json:"status"`
	CreatedAt         time.Time                   `json:"created_at"`
	ProcessingResults map[string]ProcessingResult `json:"processing_results"`
}

// NewVideo creates a video in the uploaded state with the default frame rate
// and resolution.
func NewVideo(filename string, filePath string) *Video {
	return &Video{
		Id:                uuid.NewString(),
		Filename:          filename,
		FilePath:          filePath,
		FPS:               DefaultFPS,
		Resolution:        DefaultResolution,
		Status:            VideoStatusUploaded,
		CreatedAt:         time.Now(),
		ProcessingResults: make(map[string]ProcessingResult),
	}
}

// Actor is a performer shown in the stage editor.
type Actor struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // #RRGGBB
}

// NewActor creates an actor. An empty color falls back to DefaultActorColor.
func NewActor(name string, color string) *Actor {
	if color == "" {
		color = DefaultActorColor
	}
	return &Actor{Id: uuid.NewString(), Name: name, Color: color}
}

// TranscriptSegment is one recognised line of dialogue.
type TranscriptSegment struct {
	Id         string  `json:"id"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	SpeakerId  *string `json:"speaker_id"`
	Confidence float64 `json:"confidence"`
	Emotion    *string `json:"emotion"`
}

// NewTranscriptSegment creates a segment without speaker or emotion.
func NewTranscriptSegment(text string, start float64, end float64, confidence float64) *TranscriptSegment {
	return &TranscriptSegment{
		Id:         uuid.NewString(),
		Text:       text,
		StartTime:  start,
		EndTime:    end,
		Confidence: confidence,
	}
}

// ActorPosition places an actor on the stage plane at a point in time.
type ActorPosition struct {
	Id         string  `json:"id"`
	ActorId    string  `json:"actor_id"`
	Timestamp  float64 `json:"timestamp"`
	Position2D Point2D `json:"position_2d"`
	Confidence float64 `json:"confidence"`
}

// NewActorPosition creates a position with a random ID.
func NewActorPosition(actorId string, timestamp float64, position Point2D, confidence float64) *ActorPosition {
	return &ActorPosition{
		Id:         uuid.NewString(),
		ActorId:    actorId,
		Timestamp:  timestamp,
		Position2D: position,
		Confidence: confidence,
	}
}

// RGB is a colour with 0-255 channels.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// LightState is the target state of one fixture in a cue.
type LightState struct {
	LightId   string   `json:"light_id"`
	Color     RGB      `json:"color"`
	Intensity float64  `json:"intensity"`
	Position  *Point3D `json:"position"`
}

// LightingCue changes a set of lights at a timestamp.
type LightingCue struct {
	Id                 string       `json:"id"`
	Timestamp          float64      `json:"timestamp"`
	Lights             []LightState `json:"lights"`
	TransitionDuration float64      `json:"transition_duration"`
}

// NewLightingCue creates a cue with the default one second transition.
func NewLightingCue(timestamp float64, lights []LightState) *LightingCue {
	return &LightingCue{
		Id:                 uuid.NewString(),
		Timestamp:          timestamp,
		Lights:             lights,
		TransitionDuration: 1.0,
	}
}

// MusicCue starts, stops or fades a track at a timestamp.
type MusicCue struct {
	Id           string  `json:"id"`
	Timestamp    float64 `json:"timestamp"`
	Action       string  `json:"action"`
	TrackId      *string `json:"track_id"`
	Volume       float64 `json:"volume"`
	FadeDuration float64 `json:"fade_duration"`
}

// NewMusicCue creates a cue at full volume without a fade.
func NewMusicCue(timestamp float64, action string) *MusicCue {
	return &MusicCue{
		Id:        uuid.NewString(),
		Timestamp: timestamp,
		Action:    action,
		Volume:    1.0,
	}
}

// PositionRow is one exported PersonPosition in BigQuery.
type PositionRow struct {
	RunId       string    `json:"run_id" bigquery:"run_id"`
	VideoId     string    `json:"video_id" bigquery:"video_id"`
	FrameNumber int       `json:"frame_number" bigquery:"frame_number"`
	Timestamp   float64   `json:"timestamp" bigquery:"timestamp"`
	PersonId    string    `json:"person_id" bigquery:"person_id"`
	X3D         float64   `json:"x_3d" bigquery:"x_3d"`
	Y3D         float64   `json:"y_3d" bigquery:"y_3d"`
	Z3D         float64   `json:"z_3d" bigquery:"z_3d"`
	StageX      float64   `json:"stage_x" bigquery:"stage_x"`
	StageY      float64   `json:"stage_y" bigquery:"stage_y"`
	Confidence  float64   `json:"confidence" bigquery:"confidence"`
	CreateDate  time.Time `json:"create_date" bigquery:"create_date"`
}

// NewPositionRow flattens a PersonPosition for export.
func NewPositionRow(runId string, videoId string, p PersonPosition) *PositionRow {
	return &PositionRow{
		RunId:       runId,
		VideoId:     videoId,
		FrameNumber: p.FrameNumber,
		Timestamp:   p.Timestamp,
		PersonId:    p.PersonID,
		X3D:         p.Position3D.X,
		Y3D:         p.Position3D.Y,
		Z3D:         p.Position3D.Z,
		StageX:      p.Position2D.X,
		StageY:      p.Position2D.Y,
		Confidence:  p.Confidence,
		CreateDate:  time.Now(),
	}
}
