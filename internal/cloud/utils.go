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

package cloud

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Configuration file naming.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The runtime context (e.g., "local", "test", "prod").
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime specific configuration paths in the
// order they are applied.
func ConfigFiles() (base string, runtime string) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	base = configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	runtime = configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	return base, runtime
}

// LoadConfig decodes the base configuration file and then the runtime specific
// one over it. Missing files are skipped; a malformed file is fatal.
//
// Inputs:
//   - baseConfig: A pointer to the struct to populate, usually from NewConfig.
func LoadConfig(baseConfig interface{}) {
	baseConfigFileName, envConfigFileName := ConfigFiles()
	log.Printf("base configuration file: %s", baseConfigFileName)
	log.Printf("environment configuration file: %s", envConfigFileName)

	if fileExists(baseConfigFileName) {
		_, err := toml.DecodeFile(baseConfigFileName, baseConfig)
		if err != nil {
			log.Fatalf("failed to decode base configuration file %s with error: %s", baseConfigFileName, err)
		}
	}

	if fileExists(envConfigFileName) {
		_, err := toml.DecodeFile(envConfigFileName, baseConfig)
		if err != nil {
			log.Fatalf("failed to decode environment configuration file: %s with error: %s", envConfigFileName, err)
		}
	}
}

// RequestTimeout is the bound applied to one conversion run.
func (c *Config) RequestTimeout() time.Duration {
	if c.Application.RequestTimeoutInSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Application.RequestTimeoutInSeconds) * time.Second
}

// Timeout is the bound applied to one invocation of the tool.
func (a AdapterConfig) Timeout() time.Duration {
	if a.TimeoutInSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.TimeoutInSeconds) * time.Second
}

// Validate reports settings that would make the conversion pipeline unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Application.ThreadPoolSize < 1 {
		errs = append(errs, fmt.Errorf("application.thread_pool_size must be >= 1, got %d", c.Application.ThreadPoolSize))
	}
	if c.Calibration.AssumedFPS <= 0 {
		errs = append(errs, fmt.Errorf("calibration.assumed_fps must be > 0, got %v", c.Calibration.AssumedFPS))
	}
	if c.Calibration.DefaultWidth <= 0 || c.Calibration.DefaultHeight <= 0 {
		errs = append(errs, fmt.Errorf("calibration default frame size must be positive, got %dx%d",
			c.Calibration.DefaultWidth, c.Calibration.DefaultHeight))
	}
	if c.Calibration.MinDepth <= 0 {
		errs = append(errs, fmt.Errorf("calibration.min_depth must be > 0, got %v", c.Calibration.MinDepth))
	}
	if c.Application.EnableCloud && c.Application.GoogleProjectId == "" {
		errs = append(errs, errors.New("application.google_project_id is required when enable_cloud is set"))
	}
	return errors.Join(errs...)
}
