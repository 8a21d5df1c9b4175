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
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener pulls messages from one subscription and runs a command for
// each. The message payload is placed in cor.CtxIn.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener binds a listener to subscriptionID. command may be nil and
// set later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches the command if none is set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts receiving in a goroutine until ctx is cancelled. A message is
// acknowledged when the command finishes without errors or fails with a
// cor.Permanent error, since redelivering it would fail the same way. Other
// failures are nacked for redelivery under the subscription's retry policy.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.InfoContext(ctx, "listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg", string(msg.Data)))

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))
			defer chainCtx.Close()

			if m.command == nil {
				slog.ErrorContext(spanCtx, "no command attached to listener", "subscription", m.subscription.String())
				span.SetStatus(codes.Error, "no command")
				msg.Nack()
				return
			}
			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			err := chainCtx.Err()
			span.SetStatus(codes.Error, "failed")
			span.RecordError(err)
			if ShouldAck(err) {
				slog.ErrorContext(spanCtx, "dropping message that cannot succeed", "error", err)
				msg.Ack()
				return
			}
			slog.ErrorContext(spanCtx, "error executing chain, message will be redelivered", "error", err)
			msg.Nack()
		})
		if err != nil {
			slog.ErrorContext(ctx, "error receiving data", "error", err)
		}
	}()
}

// ShouldAck reports whether a message whose command ended with err is done
// with: it succeeded, or it failed permanently.
func ShouldAck(err error) bool {
	return err == nil || cor.IsPermanent(err)
}
