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

// Package services holds the read and write paths the REST API uses beside
// the project store: uploaded video files, signed playback URLs, the GCS
// snapshot mirror and the BigQuery positions export.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/google/uuid"
)

// UploadDirName is where uploaded videos are kept under the work directory.
const UploadDirName = "uploads"

// ErrCloudDisabled is returned by operations that need a GCS client.
var ErrCloudDisabled = errors.New("cloud storage is not enabled")

// VideoService stores uploaded video files and produces playback URLs.
type VideoService struct {
	StorageClient *storage.Client                   // Client for GCS, nil when cloud integration is off.
	IAMClient     *credentials.IamCredentialsClient // Client for IAM, used for signing URLs.
	SignerEmail   string                            // The service account email used to sign URLs.
	Bucket        string                            // Bucket receiving uploads, local disk when empty.
	WorkDir       string                            // Root of the local upload directory.
}

// StoredName prefixes filename with a random ID so uploads never collide.
func StoredName(filename string) string {
	return fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(filename))
}

// Save writes an uploaded video and returns the path to record on the video:
// a gs:// URI when a bucket is configured, a local path otherwise.
func (s *VideoService) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := StoredName(filename)
	if s.StorageClient != nil && s.Bucket != "" {
		w := s.StorageClient.Bucket(s.Bucket).Object(name).NewWriter(ctx)
		if _, err := io.Copy(w, r); err != nil {
			_ = w.Close()
			return "", fmt.Errorf("uploading %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("finalizing upload of %s: %w", name, err)
		}
		obj := &cloud.GCSObject{Bucket: s.Bucket, Name: name}
		slog.InfoContext(ctx, "video uploaded", "uri", obj.URI())
		return obj.URI(), nil
	}

	dir := filepath.Join(s.WorkDir, UploadDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "video saved", "path", path)
	return path, nil
}

// IsRemote reports whether path names a GCS object.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// GenerateSignedURL creates a V4 GET URL for a gs:// URI, signed by
// SignerEmail through the IAM credentials API.
//
// Inputs:
//   - ctx: The context for the signing call.
//   - gcsURI: gs://bucket/object.
//   - expires: How long the URL stays valid.
func (s *VideoService) GenerateSignedURL(ctx context.Context, gcsURI string, expires time.Duration) (string, error) {
	if s.StorageClient == nil {
		return "", ErrCloudDisabled
	}
	obj, err := cloud.ParseGCSURI(gcsURI)
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}
