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

// This file defines the first command of the conversion workflow.
//
// Logic Flow:
// A conversion is started either by the REST API, which already holds a
// decoded request, or by a Pub/Sub message whose payload is the same request
// as JSON. This command accepts both and leaves a single
// *model.ConversionRequest in the context for the rest of the chain.
//
//  1. Read CtxIn: a string or []byte of JSON, or a *model.ConversionRequest.
//  2. Decode it when needed and check that a video ID is present and that
//     the stage annotation yields a transform, so that a bad request fails
//     before any external tool runs. These failures are permanent.
//  3. Store the request under ParamRequest and the start time under
//     ParamStarted, and pass the request on through CtxOut.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tinuvile/rehearseOnline/internal/core/calibration"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/Tinuvile/rehearseOnline/internal/core/model"
)

// ConversionTriggerReader decodes the request that starts a conversion.
type ConversionTriggerReader struct {
	cor.BaseCommand
}

// NewConversionTriggerReader is the constructor for the ConversionTriggerReader command.
func NewConversionTriggerReader(name string) *ConversionTriggerReader {
	return &ConversionTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute decodes and checks the request.
func (c *ConversionTriggerReader) Execute(context cor.Context) {
	var req *model.ConversionRequest
	switch in := context.Get(c.GetInputParam()).(type) {
	case *model.ConversionRequest:
		req = in
	case string:
		req = &model.ConversionRequest{}
		if err := json.Unmarshal([]byte(in), req); err != nil {
			c.Fail(context, cor.Permanent(fmt.Errorf("failed to unmarshal conversion request: %w", err)))
			return
		}
	case []byte:
		req = &model.ConversionRequest{}
		if err := json.Unmarshal(in, req); err != nil {
			c.Fail(context, cor.Permanent(fmt.Errorf("failed to unmarshal conversion request: %w", err)))
			return
		}
	default:
		c.Fail(context, cor.Permanent(fmt.Errorf("unsupported conversion trigger %T", in)))
		return
	}

	if req.VideoID == "" {
		c.Fail(context, cor.Permanent(errors.New("conversion request has no video_id")))
		return
	}
	if _, err := calibration.NewStageTransform(req.StageAnnotation); err != nil {
		c.Fail(context, cor.Permanent(fmt.Errorf("video %s: %w", req.VideoID, err)))
		return
	}

	c.Succeed(context)
	context.Add(ParamRequest, req)
	context.Add(ParamStarted, time.Now())
	context.Add(c.GetOutputParam(), req)
}
