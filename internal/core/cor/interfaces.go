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

// Package cor (Chain of Responsibility) holds the building blocks the processing
// pipelines are assembled from. A pipeline run is a Chain of Commands sharing a
// single Context. Each Command reads its input from the Context, does one unit
// of work (run an external tool, track identities, convert coordinates, persist
// a result) and writes its output back for the next Command.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys a BaseChain uses to pipe data between commands.
const (
	// CtxIn holds the primary input of the command about to run. The chain fills
	// it with whatever the previous command left in CtxOut.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its primary output.
	CtxOut = "__OUT__"
)

// Context is the shared state of a single pipeline run. It carries data,
// recorded errors, temporary files and the Go context used for cancellation
// and tracing.
type Context interface {
	// SetContext sets the Go context for the commands that run next.
	SetContext(context context.Context)

	// GetContext returns the current Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error under key, usually the name of the failing command.
	AddError(key string, err error)

	// GetErrors returns a copy of the recorded errors keyed by command name.
	GetErrors() map[string]error

	// Err joins every recorded error into one, or returns nil.
	Err() error

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes key.
	Remove(key string)

	// HasErrors reports whether any error was recorded.
	HasErrors() bool

	// AddTempFile tracks a file or directory that Close must remove.
	AddTempFile(file string)

	// GetTempFiles returns the tracked temporary paths.
	GetTempFiles() []string

	// Close removes every tracked temporary path.
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a pipeline.
type Command interface {
	Executable

	// GetName returns the command name used for spans, counters and error keys.
	GetName() string

	// GetInputParam returns the Context key the command reads its input from.
	GetInputParam() string

	// GetOutputParam returns the Context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain runs a sequence of commands. A Chain is itself a Command so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps going after a command
	// records an error. The default is to stop.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the chain.
	AddCommand(command Command) Chain
}
