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

package main

import (
	"context"
	"log/slog"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
)

// ConversionTopic is the subscription key whose messages trigger a conversion.
const ConversionTopic = "ConversionTopic"

// SetupListeners attaches the conversion workflow to the ConversionTopic
// subscription and starts it. The message body is a ConversionRequest.
// Nothing happens when cloud integration is off.
func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, conversion cor.Command) {
	if cloudClients == nil {
		return
	}
	listener, ok := cloudClients.PubSubListeners[ConversionTopic]
	if !ok {
		slog.InfoContext(ctx, "no conversion subscription configured")
		return
	}
	listener.SetCommand(conversion)
	listener.Listen(ctx)
}
