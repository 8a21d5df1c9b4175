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

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Tinuvile/rehearseOnline/internal/core/store"
)

// SnapshotMirror keeps a copy of the store snapshot in GCS.
type SnapshotMirror struct {
	StorageClient *storage.Client
	Bucket        string
	Object        string
}

// Enabled reports whether a client and a location are configured.
func (m *SnapshotMirror) Enabled() bool {
	return m != nil && m.StorageClient != nil && m.Bucket != "" && m.Object != ""
}

// Upload writes the current snapshot of s to GCS.
func (m *SnapshotMirror) Upload(ctx context.Context, s *store.Store) error {
	if !m.Enabled() {
		return ErrCloudDisabled
	}
	w := m.StorageClient.Bucket(m.Bucket).Object(m.Object).NewWriter(ctx)
	w.ContentType = "application/json"
	n, err := s.WriteTo(w)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot upload: %w", err)
	}
	slog.InfoContext(ctx, "snapshot mirrored", "bucket", m.Bucket, "object", m.Object, "bytes", n)
	return nil
}

// Restore replaces s with the mirrored snapshot. It reports false when the
// object does not exist.
func (m *SnapshotMirror) Restore(ctx context.Context, s *store.Store) (bool, error) {
	if !m.Enabled() {
		return false, ErrCloudDisabled
	}
	r, err := m.StorageClient.Bucket(m.Bucket).Object(m.Object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening snapshot: %w", err)
	}
	defer r.Close()
	if _, err := s.ReadFrom(r); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "snapshot restored from GCS", "bucket", m.Bucket, "object", m.Object)
	return true, nil
}
