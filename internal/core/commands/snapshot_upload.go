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

// This file defines the command that mirrors the project store to Google
// Cloud Storage at the end of a conversion.
//
// Logic Flow:
// The store snapshot on local disk is the source of truth. When a snapshot
// bucket is configured a copy is streamed to GCS after every successful
// conversion, so a fresh instance can restore from it.
//
//  1. Take a snapshot of the store.
//  2. Open a writer on gs://<bucket>/<object>.
//  3. Stream the JSON into it and close the writer to finalize the upload.
package commands

import (
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
)

// SnapshotUpload uploads the store snapshot to GCS.
type SnapshotUpload struct {
	cor.BaseCommand
	client *storage.Client // May be nil when cloud integration is off.
	store  *store.Store
	bucket string
	object string
}

// NewSnapshotUpload is the constructor for creating a new SnapshotUpload command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - client: A *storage.Client, or nil to disable the upload.
//   - store: The store to mirror.
//   - bucket: The name of the target GCS bucket.
//   - object: The object name of the snapshot.
//
// Outputs:
//   - *SnapshotUpload: A pointer to the newly instantiated command.
func NewSnapshotUpload(name string, client *storage.Client, store *store.Store, bucket string, object string) *SnapshotUpload {
	out := &SnapshotUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, store: store, bucket: bucket, object: object}
	out.InputParamName = ParamResult
	return out
}

// IsExecutable is true when a client and a bucket are configured and the
// conversion produced a result.
func (c *SnapshotUpload) IsExecutable(context cor.Context) bool {
	return c.client != nil && c.bucket != "" && c.object != "" &&
		context != nil && context.Get(c.GetInputParam()) != nil
}

// Execute streams the snapshot to GCS.
func (c *SnapshotUpload) Execute(context cor.Context) {
	obj := c.client.Bucket(c.bucket).Object(c.object)
	writer := obj.NewWriter(context.GetContext())
	writer.ContentType = "application/json"

	written, err := c.store.WriteTo(writer)
	if err != nil {
		_ = writer.Close()
		log.Printf("failed to copy snapshot to GCS or partial write: %d total bytes, %v\n", written, err)
		c.Fail(context, err)
		return
	}
	// Close finalizes the upload; its error is the one that matters.
	if err := writer.Close(); err != nil {
		c.Fail(context, fmt.Errorf("finalizing snapshot upload: %w", err))
		return
	}

	c.Succeed(context)
	log.Printf("uploaded store snapshot to gs://%s/%s (%d bytes)", c.bucket, c.object, written)
}
