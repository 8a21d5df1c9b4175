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
	"fmt"
	"strings"
)

// GetGCSObjectName is the chain context key holding the *GCSObject being processed.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSObject identifies one object in Cloud Storage.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// ParseGCSURI splits gs://bucket/path/to/object into a GCSObject.
func ParseGCSURI(uri string) (*GCSObject, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return nil, fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return nil, fmt.Errorf("gs uri must name a bucket and an object: %q", uri)
	}
	return &GCSObject{Bucket: bucket, Name: name}, nil
}

// URI renders the object as gs://bucket/name.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}
