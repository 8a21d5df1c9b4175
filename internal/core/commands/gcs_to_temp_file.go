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

// This file defines a command for downloading a video from Google Cloud
// Storage (GCS) into the work directory of a conversion.
//
// Logic Flow:
// The external tools only read local files. When the video of a conversion
// lives in GCS this command streams it to disk first.
//
//  1. Receives the `cloud.GCSObject` left by VideoResolver.
//  2. Creates a reader for the object.
//  3. Creates a file in the work directory, keeping the object's extension so
//     the tools recognise the container.
//  4. Streams the object into the file with `io.Copy`.
//  5. Tracks the file for cleanup and stores its path under ParamVideoFile.
package commands

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
)

// GCSToTempFile downloads the conversion's video from GCS.
type GCSToTempFile struct {
	cor.BaseCommand
	client         *storage.Client // May be nil when cloud integration is off.
	tempFilePrefix string
}

// NewGCSToTempFile is the constructor for creating a new GCSToTempFile command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - client: A *storage.Client, or nil when cloud integration is disabled.
//   - tempFilePrefix: A string prefix for the downloaded file's name.
//
// Outputs:
//   - *GCSToTempFile: A pointer to the newly instantiated command.
func NewGCSToTempFile(name string, client *storage.Client, tempFilePrefix string) *GCSToTempFile {
	out := &GCSToTempFile{
		BaseCommand:    *cor.NewBaseCommand(name),
		client:         client,
		tempFilePrefix: tempFilePrefix,
	}
	out.InputParamName = cloud.GetGCSObjectName()
	out.OutputParamName = ParamVideoFile
	return out
}

// IsExecutable is true only for videos stored in GCS. Local videos skip the
// download. A GCS video without a storage client is reported as an error.
func (c *GCSToTempFile) IsExecutable(context cor.Context) bool {
	if context == nil || context.Get(c.GetInputParam()) == nil {
		return false
	}
	if c.client == nil {
		obj := context.Get(c.GetInputParam()).(*cloud.GCSObject)
		c.Fail(context, fmt.Errorf("cannot download %s: cloud storage is not enabled", obj.URI()))
		return false
	}
	return true
}

// Execute contains the core logic for downloading the GCS object.
func (c *GCSToTempFile) Execute(context cor.Context) {
	msg := context.Get(c.GetInputParam()).(*cloud.GCSObject)

	reader, err := c.client.Bucket(msg.Bucket).Object(msg.Name).NewReader(context.GetContext())
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to create GCS reader for %s: %w", msg.URI(), err))
		return
	}
	defer func(reader *storage.Reader) {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close GCS reader: %v\n", err)
		}
	}(reader)

	dir := ""
	if v, ok := context.Get(ParamWorkDir).(string); ok {
		dir = v
	}
	tempFile, err := os.CreateTemp(dir, c.tempFilePrefix+"*"+filepath.Ext(msg.Name))
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create temp file: %w", err))
		return
	}

	written, err := io.Copy(tempFile, reader)
	if err != nil {
		_ = tempFile.Close()
		log.Printf("failed to copy GCS object to local file, %d bytes written: %v\n", written, err)
		c.Fail(context, err)
		return
	}
	if err := tempFile.Close(); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	log.Printf("downloaded %s to local file %s (%d bytes)", msg.URI(), tempFile.Name(), written)
	context.AddTempFile(tempFile.Name())
	context.Add(c.GetOutputParam(), tempFile.Name())
}
