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

package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Tinuvile/rehearseOnline/internal/cloud"
	"github.com/Tinuvile/rehearseOnline/internal/core/cor"
	"github.com/stretchr/testify/assert"
)

func TestShouldAck(t *testing.T) {
	badTrigger := cor.Permanent(errors.New("stage annotation needs 4 corners"))

	assert.True(t, cloud.ShouldAck(nil))
	assert.True(t, cloud.ShouldAck(badTrigger))
	assert.True(t, cloud.ShouldAck(errors.Join(fmt.Errorf("conversion-trigger-reader: %w", badTrigger))))

	assert.False(t, cloud.ShouldAck(context.DeadlineExceeded))
	assert.False(t, cloud.ShouldAck(fmt.Errorf("detect-poses: %w", errors.New("exit status 1"))))
}
