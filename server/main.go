// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// *****************************************************************************************************//
// Package main is the entry point for the stage planning backend server.
//
// This application runs a Gin web server exposing a REST API to the stage
// editor: projects, actors and their positions, uploaded rehearsal videos and
// the 3D to 2D conversion that turns a video plus a stage calibration into
// per performer stage positions. The server is instrumented with
// OpenTelemetry for logging, tracing, and metrics.
//
// When cloud integration is enabled the server also listens on a Pub/Sub
// subscription for conversion requests, mirrors the project store to GCS and
// exports positions to BigQuery.
//
// Functions:
//   - main: Sets up telemetry and state, serves the API and shuts down gracefully.
//   - NewRouter: Builds the Gin engine with middleware and every route group.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Tinuvile/rehearseOnline/internal/telemetry"
)

func main() {
	telemetry.SetupLogging("app.log")
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()
	if err := config.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized", "cloud", config.Application.EnableCloud)

	state, err := InitState(ctx)
	if err != nil {
		log.Fatalf("failed to initialize state: %v", err)
	}
	slog.Info("Initialized State")

	srv := &http.Server{
		Addr:        ":" + config.Application.HTTPPort,
		Handler:     NewRouter(state),
		ReadTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready", "port", config.Application.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	cancel()
	state.Close(shutdownCtx)
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}

	log.Println("Server exiting")
}

// NewRouter builds the Gin engine: tracing and CORS middleware, then every
// route group under /api.
func NewRouter(state *StateManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(state.config.Application.Name))
	r.Use(cors.Default())

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "statistics": state.store.Statistics()})
		})
		Dashboard(api, state)
		StageRouter(api, state)
		VideoRouter(api, state)
		ConversionRouter(api, state)
	}
	return r
}
