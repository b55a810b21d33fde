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
	"errors"
	"fmt"
)

// The error taxonomy of spec §7.
var (
	// ErrCursorLost means the cursor could not be re-aligned and the
	// event is not at the partition's begin sequence number. The caller
	// (framework) must decide whether to abandon the stream.
	ErrCursorLost = errors.New("eventhubs: cursor lost")

	// ErrReceiverStolen means another exclusive receiver has taken the
	// link. The cache entry is preserved; the driver is expected to
	// reschedule the task.
	ErrReceiverStolen = errors.New("eventhubs: receiver stolen by another exclusive receiver")

	// ErrConfiguration is raised at config-validate time, never mid-batch.
	ErrConfiguration = errors.New("eventhubs: invalid configuration")
)

// CursorLostError carries both observed and service-reported positions
// for diagnosis, per spec §4.3 step 2.
type CursorLostError struct {
	RequestSeqNo  int64
	ObservedSeqNo int64
	BeginSeqNo    int64
	LastSeqNo     int64
}

func (e *CursorLostError) Error() string {
	return fmt.Sprintf("eventhubs: cursor lost: requested %d, observed %d, partition begin %d, last %d",
		e.RequestSeqNo, e.ObservedSeqNo, e.BeginSeqNo, e.LastSeqNo)
}

func (e *CursorLostError) Unwrap() error { return ErrCursorLost }
