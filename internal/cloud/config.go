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

// Package cloud defines the application configuration, loaded from layered TOML
// files, and the clients used to talk to Google Cloud.
//
// Structs:
//   - Application: General process settings.
//   - Storage: GCS buckets for videos and store snapshots.
//   - BigQueryDataSource: Dataset and table for exported positions.
//   - TopicSubscription: One Pub/Sub subscription.
//   - AdapterConfig: How to invoke an external tool (pose, depth).
//   - FramesConfig: How to extract still frames from a video.
//   - CalibrationConfig: Camera assumptions used by the coordinate converter.
//   - Config: The root of all of the above.
package cloud

// Application holds general process settings.
type Application struct {
	Name                      string `toml:"name"`                         // The name of the application.
	GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
	GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
	ThreadPoolSize            int    `toml:"thread_pool_size"`             // Worker count for parallel conversion.
	SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Service account used for signing GCS URLs.
	HTTPPort                  string `toml:"http_port"`                    // Port the REST server binds to.
	DataFile                  string `toml:"data_file"`                    // Path of the JSON snapshot of the project store.
	WorkDir                   string `toml:"work_dir"`                     // Root for uploads, frames and conversion results.
	EnableCloud               bool   `toml:"enable_cloud"`                 // Create GCP clients and exporters.
	RequestTimeoutInSeconds   int    `toml:"request_timeout_in_seconds"`   // Upper bound for one conversion run.
}

// Storage holds the GCS locations used by the service.
type Storage struct {
	VideoBucket    string `toml:"video_bucket"`    // Bucket holding source videos.
	SnapshotBucket string `toml:"snapshot_bucket"` // Bucket mirroring the store snapshot.
	SnapshotObject string `toml:"snapshot_object"` // Object name of the mirrored snapshot.
}

// BigQueryDataSource represents the configuration for the positions export.
type BigQueryDataSource struct {
	DatasetName    string `toml:"dataset"`         // The name of the BigQuery dataset.
	PositionsTable string `toml:"positions_table"` // The table receiving one row per person position.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// AdapterConfig describes how an external model is invoked. When CondaEnv is
// set the tool is wrapped in `conda run -n <env>`.
type AdapterConfig struct {
	Command          string   `toml:"command"`            // Executable, e.g. "python".
	Args             []string `toml:"args"`               // Extra arguments appended after the built-in ones.
	WorkingDir       string   `toml:"working_dir"`        // Directory the tool runs in.
	CondaEnv         string   `toml:"conda_env"`          // Optional conda environment.
	Script           string   `toml:"script"`             // Script path relative to WorkingDir.
	ModelType        string   `toml:"model_type"`         // Model variant, depth only.
	TimeoutInSeconds int      `toml:"timeout_in_seconds"` // Per-invocation timeout.
	RateLimit        int      `toml:"rate_limit"`         // Invocations per minute, 0 for unlimited.
}

// FramesConfig describes frame extraction.
type FramesConfig struct {
	Command string `toml:"command"` // ffmpeg binary.
	Pattern string `toml:"pattern"` // Output file pattern, e.g. "%06d.jpg".
}

// CalibrationConfig carries the fixed camera model of the converter.
type CalibrationConfig struct {
	AssumedFPS    float64 `toml:"assumed_fps"`
	HorizontalFOV float64 `toml:"horizontal_fov"` // Degrees.
	VerticalFOV   float64 `toml:"vertical_fov"`   // Degrees.
	DefaultWidth  int     `toml:"default_width"`  // Used when a depth frame has no size.
	DefaultHeight int     `toml:"default_height"`
	DepthScale    float64 `toml:"depth_scale"`  // actual = (1 - sample) * scale + offset
	DepthOffset   float64 `toml:"depth_offset"`
	MinDepth      float64 `toml:"min_depth"`      // Floor for z when normalizing to the reference depth.
	MatchDistance float64 `toml:"match_distance"` // Tracker match radius in pixels.
}

// Config represents the overall configuration for the application.
type Config struct {
	Application        Application                  `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name, e.g. "ConversionTopic".
	Pose               AdapterConfig                `toml:"pose"`
	Depth              AdapterConfig                `toml:"depth"`
	Frames             FramesConfig                 `toml:"frames"`
	Calibration        CalibrationConfig            `toml:"calibration"`
}

// NewConfig returns a Config holding the built-in defaults. Values decoded from
// the TOML files overwrite them.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:                    "rehearse-online",
			ThreadPoolSize:          4,
			HTTPPort:                "8080",
			DataFile:                "data/stage_data.json",
			WorkDir:                 "temp",
			RequestTimeoutInSeconds: 300,
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
		Pose: AdapterConfig{
			Command:          "python",
			WorkingDir:       "AlphaPose",
			CondaEnv:         "alphapose",
			Script:           "run_frame_extractor.py",
			TimeoutInSeconds: 300,
		},
		Depth: AdapterConfig{
			Command:          "python",
			WorkingDir:       "MiDaS",
			CondaEnv:         "midas-py310",
			Script:           "run.py",
			ModelType:        "dpt_swin2_large_384",
			TimeoutInSeconds: 300,
		},
		Frames: FramesConfig{
			Command: "ffmpeg",
			Pattern: "%06d.jpg",
		},
		Calibration: CalibrationConfig{
			AssumedFPS:    30,
			HorizontalFOV: 70,
			VerticalFOV:   45,
			DefaultWidth:  1920,
			DefaultHeight: 1080,
			DepthScale:    10,
			DepthOffset:   1,
			MinDepth:      0.1,
			MatchDistance: 100,
		},
	}
}
