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
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
)

// ServiceClients holds every Google Cloud client the service uses. It is built
// once at startup and handed to the services and workflows that need it. A nil
// *ServiceClients means the process runs without cloud integration.
type ServiceClients struct {
	StorageClient   *storage.Client                   // GCS, for videos and the snapshot mirror.
	PubsubClient    *pubsub.Client                    // Pub/Sub, for conversion triggers.
	BiqQueryClient  *bigquery.Client                  // BigQuery, for the positions export.
	IAMClient       *credentials.IamCredentialsClient // IAM, to sign playback URLs.
	PubSubListeners map[string]*PubSubListener        // Keyed by the logical subscription name from the config.
}

// Close releases every client. Safe on a nil receiver.
func (c *ServiceClients) Close() {
	if c == nil {
		return
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients creates the Google Cloud clients named in the
// configuration and one PubSubListener per configured subscription. The
// listeners have no command yet; the workflows attach theirs later.
//
// Inputs:
//   - ctx: The root context, which owns the lifetime of the clients.
//   - config: The loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients.
//   - error: The first client that failed to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}

	ic, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("iam credentials client: %w", err)
	}

	subscriptions := make(map[string]*PubSubListener)
	for subKey, values := range config.TopicSubscriptions {
		actual, err := NewPubSubListener(pc, values.Name, nil)
		if err != nil {
			return nil, err
		}
		subscriptions[subKey] = actual
	}

	cloud = &ServiceClients{
		StorageClient:   sc,
		PubsubClient:    pc,
		BiqQueryClient:  bc,
		IAMClient:       ic,
		PubSubListeners: subscriptions,
	}
	return cloud, nil
}
