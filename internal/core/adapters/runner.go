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

// Package adapters runs the external tools of the conversion pipeline (frame
// extraction, pose estimation and depth estimation) and turns their file
// outputs into model types.
//
// Every tool is a blocking subprocess. A non-zero exit fails the whole run
// with an *ExitError carrying the captured stderr.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"golang.org/x/time/rate"
)

// ErrAdapterFailed is wrapped by every tool failure.
var ErrAdapterFailed = errors.New("adapter failed")

// maxStderr bounds how much stderr is kept on an ExitError.
const maxStderr = 8 << 10

// ExitError describes a tool that could not be run or exited non-zero.
type ExitError struct {
	Tool     string
	ExitCode int // -1 when the process never ran or was killed.
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed (exit code %d)", e.Tool, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAdapterFailed}
	}
	return []error{ErrAdapterFailed, e.Err}
}

// Runner invokes one external tool. It is safe for concurrent use; the
// limiter spaces out invocations when a rate limit is configured.
type Runner struct {
	name    string
	command string
	prefix  []string
	dir     string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRunner creates a runner for command. When condaEnv is not empty the
// command is started through `conda run -n <condaEnv>`. perMinute <= 0
// disables throttling.
func NewRunner(name string, command string, condaEnv string, dir string, timeout time.Duration, perMinute int) *Runner {
	r := &Runner{
		name:    name,
		command: command,
		dir:     dir,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.Default().With("tool", name),
	}
	if condaEnv != "" {
		r.prefix = []string{"run", "-n", condaEnv, command}
		r.command = "conda"
	}
	if perMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return r
}

// NewRunnerFromConfig builds a runner from an adapter section of the config.
func NewRunnerFromConfig(name string, cfg cloud.AdapterConfig) *Runner {
	return NewRunner(name, cfg.Command, cfg.CondaEnv, cfg.WorkingDir, cfg.Timeout(), cfg.RateLimit)
}

// Name is the tool name used in errors and logs.
func (r *Runner) Name() string {
	return r.name
}

// Dir is the working directory of the tool, empty for the process directory.
func (r *Runner) Dir() string {
	return r.dir
}

// CommandLine returns the argv that Run would execute for args.
func (r *Runner) CommandLine(args ...string) []string {
	out := append([]string{r.command}, r.prefix...)
	return append(out, args...)
}

// Run executes the tool with args and returns its stdout. It waits for the
// rate limiter and applies the runner timeout on top of ctx.
func (r *Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &ExitError{Tool: r.name, ExitCode: -1, Err: err}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := r.CommandLine(args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.InfoContext(ctx, "running tool", "command", strings.Join(argv, " "), "dir", r.dir)
	start := time.Now()
	err := cmd.Run()
	if err != nil {
		exitErr := &ExitError{Tool: r.name, ExitCode: -1, Stderr: tail(stderr.String(), maxStderr), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr.ExitCode = ee.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			exitErr.Err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		r.logger.ErrorContext(ctx, "tool failed", "exit_code", exitErr.ExitCode, "error", err, "stderr", exitErr.Stderr)
		return stdout.Bytes(), exitErr
	}
	r.logger.InfoContext(ctx, "tool finished", "elapsed", time.Since(start).String())
	r.logger.DebugContext(ctx, "tool output", "stdout", tail(stdout.String(), maxStderr))
	return stdout.Bytes(), nil
}

// tail keeps at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
