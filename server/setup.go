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

// Package main contains the setup and initialization logic for the application's state.
// This file builds the StateManager that holds every shared dependency: the
// configuration, the optional Google Cloud clients, the project store, the
// services used by the REST handlers and the conversion workflow.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory.
//   - GetConfig: Loads the configuration once.
//   - InitState: Creates the clients, restores the store and wires services and listeners.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
	"github.com/Tinuvile/rehearseOnline/internal/core/services"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
	"github.com/Tinuvile/rehearseOnline/internal/core/workflow"
)

// StateManager holds all the shared dependencies of the server. It is built
// once in main and handed to the routers.
type StateManager struct {
	config          *cloud.Config
	cloud           *cloud.ServiceClients // nil when cloud integration is off
	store           *store.Store
	videoService    *services.VideoService
	positionService *services.PositionService
	snapshotMirror  *services.SnapshotMirror
	conversion      *workflow.Video3DTo2DWorkflow
}

// loadedConfig caches the configuration read by GetConfig.
var loadedConfig *cloud.Config

// SetupOS sets the environment variables the configuration loader uses to find
// the TOML files. GCP_RUNTIME is left alone when it is already set.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	if os.Getenv(cloud.EnvConfigRuntime) != "" {
		return nil
	}
	return os.Setenv(cloud.EnvConfigRuntime, "local")
}

// GetConfig loads the configuration on first use and returns the cached copy
// afterwards.
func GetConfig() *cloud.Config {
	if loadedConfig == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(config)
		loadedConfig = config
	}
	return loadedConfig
}

// NewStateManager wires the services around an existing store. clients may be
// nil, in which case every cloud feature is disabled.
func NewStateManager(config *cloud.Config, clients *cloud.ServiceClients, st *store.Store, opts ...workflow.Option) *StateManager {
	s := &StateManager{
		config: config,
		cloud:  clients,
		store:  st,
		videoService: &services.VideoService{
			SignerEmail: config.Application.SignerServiceAccountEmail,
			Bucket:      config.Storage.VideoBucket,
			WorkDir:     config.Application.WorkDir,
		},
		positionService: &services.PositionService{
			DatasetName:    config.BigQueryDataSource.DatasetName,
			PositionsTable: config.BigQueryDataSource.PositionsTable,
		},
		snapshotMirror: &services.SnapshotMirror{
			Bucket: config.Storage.SnapshotBucket,
			Object: config.Storage.SnapshotObject,
		},
	}
	if clients != nil {
		s.videoService.StorageClient = clients.StorageClient
		s.videoService.IAMClient = clients.IAMClient
		s.positionService.BigqueryClient = clients.BiqQueryClient
		s.snapshotMirror.StorageClient = clients.StorageClient
	}
	s.conversion = workflow.NewVideo3DTo2DWorkflow(config, clients, st, opts...)
	return s
}

// InitState builds the application state.
//
// Inputs:
//   - ctx: The root context, which owns the clients and the listeners.
//
// This function performs the following steps:
//  1. Creates the Google Cloud clients when application.enable_cloud is set.
//  2. Creates the work and data directories.
//  3. Loads the store from data_file, or from the GCS mirror when the file is missing.
//     Conversions left in processing by a previous process are marked failed.
//  4. Wires the services and the conversion workflow.
//  5. Starts the Pub/Sub listeners.
func InitState(ctx context.Context) (*StateManager, error) {
	config := GetConfig()

	var clients *cloud.ServiceClients
	if config.Application.EnableCloud {
		c, err := cloud.NewCloudServiceClients(ctx, config)
		if err != nil {
			return nil, err
		}
		clients = c
	}

	for _, dir := range []string{config.Application.WorkDir, filepath.Dir(config.Application.DataFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	st := store.New(store.WithAutosave(config.Application.DataFile))
	state := NewStateManager(config, clients, st)

	loaded, err := st.LoadIfExists(config.Application.DataFile)
	if err != nil {
		return nil, err
	}
	if loaded {
		slog.InfoContext(ctx, "store loaded", "file", config.Application.DataFile)
	} else if state.snapshotMirror.Enabled() {
		restored, err := state.snapshotMirror.Restore(ctx, st)
		if err != nil {
			slog.WarnContext(ctx, "snapshot restore failed, starting empty", "error", err)
		} else if restored {
			if err := st.Save(config.Application.DataFile); err != nil {
				slog.WarnContext(ctx, "failed to write restored snapshot", "error", err)
			}
		}
	}
	if n, err := st.ReleaseInterrupted(model.ProcessingKey3DTo2D); err != nil {
		slog.WarnContext(ctx, "failed to release interrupted conversions", "error", err)
	} else if n > 0 {
		slog.WarnContext(ctx, "conversions interrupted by the last shutdown marked failed", "count", n)
	}
	if problems := st.ValidateIntegrity(); len(problems) > 0 {
		slog.WarnContext(ctx, "store has integrity problems", "count", len(problems), "problems", problems)
	}

	SetupListeners(ctx, clients, state.conversion)
	return state, nil
}

// Close saves the store and releases the clients.
func (s *StateManager) Close(ctx context.Context) {
	if err := s.store.Save(s.config.Application.DataFile); err != nil {
		slog.ErrorContext(ctx, "failed to save store", "error", err)
	}
	if s.snapshotMirror.Enabled() {
		if err := s.snapshotMirror.Upload(ctx, s.store); err != nil {
			slog.ErrorContext(ctx, "failed to mirror store", "error", err)
		}
	}
	s.cloud.Close()
}
