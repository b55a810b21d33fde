/*
Copyright 2026 The Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package eventhubs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorLostErrorUnwrapsToSentinel(t *testing.T) {
	err := &CursorLostError{RequestSeqNo: 10, ObservedSeqNo: 20, BeginSeqNo: 5, LastSeqNo: 99}
	assert.ErrorIs(t, err, ErrCursorLost)
	assert.Contains(t, err.Error(), "requested 10")
	assert.Contains(t, err.Error(), "observed 20")
}
