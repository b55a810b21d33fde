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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/amqp"
	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/retry"
)

// cachedBatch memoizes the most recently served range so a framework
// re-execution of an already-committed batch costs no I/O. The zero value
// is the "absent" variant (present is false, so it never matches a
// request), avoiding a null-sentinel object per spec §9.
type cachedBatch struct {
	present   bool
	startSeq  int64
	batchSize int
	events    []amqp.EventData
}

// CursorEngine drives one PartitionReader until it has produced the exact
// requested half-open range, healing drift, expiration, and disconnection
// along the way. A CursorEngine is exclusively owned by one ReceiverCache
// entry and is never called concurrently — the surrounding framework
// guarantees at most one in-flight task per partition (spec §5) — so none
// of its fields are mutex-guarded.
type CursorEngine struct {
	reader *amqp.PartitionReader
	policy retry.Policy
	logger logr.Logger

	receiverTimeout  time.Duration
	exclusive        bool
	perf             *PerfReporter
	metricPlugin     MetricPlugin
	throttlingPlugin ThrottlingStatusPlugin
	taskContext      string
	partition        NameAndPartition

	memo cachedBatch
}

// NewCursorEngine constructs an engine around a reader that its caller has
// already opened at the start sequence number (NewDefaultEngineFactory
// does so); if the reader is not open when Receive runs, Receive opens it
// at the requested sequence number. metricPlugin and throttlingPlugin are the
// boundary objects spec §6/§9 names, resolved once per EventHubsConf use
// through a PluginRegistry; either may be nil when unconfigured.
func NewCursorEngine(reader *amqp.PartitionReader, policy retry.Policy, logger logr.Logger, receiverTimeout time.Duration, exclusive bool, perf *PerfReporter, metricPlugin MetricPlugin, throttlingPlugin ThrottlingStatusPlugin, taskContext string, partition NameAndPartition) *CursorEngine {
	return &CursorEngine{
		reader:           reader,
		policy:           policy,
		logger:           logger.WithName("cursor").WithValues("partition", partition.String()),
		receiverTimeout:  receiverTimeout,
		exclusive:        exclusive,
		perf:             perf,
		metricPlugin:     metricPlugin,
		throttlingPlugin: throttlingPlugin,
		taskContext:      taskContext,
		partition:        partition,
	}
}

// Receive returns the ordered batch of events covering
// [requestSeqNo, requestSeqNo+batchSize), per spec §4.3. It is the sole
// entry point; every other method on CursorEngine is an internal
// implementation detail of this state machine.
func (e *CursorEngine) Receive(ctx context.Context, requestSeqNo int64, batchSize int) ([]amqp.EventData, error) {
	// 1. Memo check: no I/O on an exact repeat.
	if e.memo.present && e.memo.startSeq == requestSeqNo && e.memo.batchSize == batchSize {
		return e.memo.events, nil
	}

	start := time.Now()

	// 2. checkCursor: align or recreate until the first event lands where
	// requested, or we learn it has been expired out from under us.
	first, firstSeq, err := e.checkCursor(ctx, requestSeqNo)
	if err != nil {
		return nil, err
	}

	// 3. Bulk receive the remainder of the range.
	batchCount := requestSeqNo + int64(batchSize) - firstSeq
	if batchCount <= 0 {
		// Spec §9 open question: treat this as a normal terminal outcome,
		// not a path that reaches the size assertion below.
		return []amqp.EventData{}, nil
	}

	events := make([]amqp.EventData, 0, batchCount)
	events = append(events, first)
	for i := int64(1); i < batchCount; i++ {
		ev, err := e.receiveOneRetrying(ctx, "bulkReceive")
		if err != nil {
			// A timeout mid-batch gives the next call a clean slate but
			// fails this one fast rather than returning a gapped result.
			if recreateErr := e.reader.Recreate(ctx, requestSeqNo, e.exclusive); recreateErr != nil {
				e.logger.Error(recreateErr, "recreate after mid-batch failure also failed")
			}
			return nil, fmt.Errorf("eventhubs: bulk receive failed at offset %d of %d: %w", i, batchCount, err)
		}
		events = append(events, ev)
	}

	// 4. Sort & memoize (defensive against out-of-order delivery).
	sort.Slice(events, func(i, j int) bool { return events[i].SequenceNumber < events[j].SequenceNumber })
	if int64(len(events)) != batchCount {
		return nil, fmt.Errorf("eventhubs: assertion failed: received %d events, expected batchCount %d", len(events), batchCount)
	}
	e.memo = cachedBatch{present: true, startSeq: requestSeqNo, batchSize: batchSize, events: events}

	// 5. Best-effort perf reporting.
	elapsed := time.Since(start).Milliseconds()
	if e.perf != nil {
		e.perf.Report(ctx, PartitionPerformanceMetric{
			Partition:     e.partition,
			TaskContext:   e.taskContext,
			BatchStartSeq: firstSeq,
			BatchCount:    len(events),
			ElapsedMillis: elapsed,
		})
	}
	if e.metricPlugin != nil {
		e.metricPlugin.OnBatchReceived(e.partition, len(events), elapsed)
	}

	return events, nil
}

// checkCursor implements spec §4.3 step 2: align the reader to
// requestSeqNo, recreating at most twice, and distinguish drift recovery
// from genuine expiration. It returns the first event of the eventual
// batch and its sequence number.
func (e *CursorEngine) checkCursor(ctx context.Context, requestSeqNo int64) (amqp.EventData, int64, error) {
	if e.needsRealign(requestSeqNo) {
		if err := e.reader.Recreate(ctx, requestSeqNo, e.exclusive); err != nil {
			return amqp.EventData{}, 0, fmt.Errorf("eventhubs: %w", err)
		}
	} else if !e.reader.IsOpen() {
		if err := e.reader.Open(ctx, requestSeqNo); err != nil {
			return amqp.EventData{}, 0, fmt.Errorf("eventhubs: %w", err)
		}
	}

	first, err := e.receiveOneRetrying(ctx, "checkCursor")
	if err != nil {
		return amqp.EventData{}, 0, err
	}
	if first.SequenceNumber == requestSeqNo {
		return first, first.SequenceNumber, nil
	}

	// Drifted again: recreate once more and re-check.
	if err := e.reader.Recreate(ctx, requestSeqNo, e.exclusive); err != nil {
		return amqp.EventData{}, 0, fmt.Errorf("eventhubs: %w", err)
	}
	moved, err := e.receiveOneRetrying(ctx, "checkCursor-retry")
	if err != nil {
		return amqp.EventData{}, 0, err
	}
	if moved.SequenceNumber == requestSeqNo {
		return moved, moved.SequenceNumber, nil
	}

	info, err := e.reader.RuntimeInformation(ctx)
	if err != nil {
		return amqp.EventData{}, 0, fmt.Errorf("eventhubs: querying partition runtime information after drift: %w", err)
	}
	if requestSeqNo < info.BeginSequenceNumber && moved.SequenceNumber == info.BeginSequenceNumber {
		// S3 Expired: the requested range has been garbage-collected.
		// Accept the event the service actually handed us as the new
		// first; data loss is implicit and accepted (spec §7).
		return moved, moved.SequenceNumber, nil
	}

	return amqp.EventData{}, 0, &CursorLostError{
		RequestSeqNo:  requestSeqNo,
		ObservedSeqNo: moved.SequenceNumber,
		BeginSeqNo:    info.BeginSequenceNumber,
		LastSeqNo:     info.LastSequenceNumber,
	}
}

// needsRealign reports whether the reader's cursor is not adjacent to
// requestSeqNo (S2 Drifting) as opposed to fresh or already aligned.
func (e *CursorEngine) needsRealign(requestSeqNo int64) bool {
	last := e.reader.LastReceivedSequence()
	if last > amqp.UnknownSequenceNumber && last+1 != requestSeqNo {
		return true
	}
	return !e.reader.IsOpen() && last > amqp.UnknownSequenceNumber
}

// receiveOneRetrying wraps one PartitionReader.ReceiveOne call with both
// combinators from the retry package: retryWhileNull handles the SDK
// timing out with an empty result, and the eventual non-null result (or
// error) is what propagates up. An error is handed to the outer
// RetryOnError layer, which retries transient ones (connection loss,
// timeouts, a busy server) within operationTimeout; a receiver-disconnected
// or other terminal error propagates at once.
func (e *CursorEngine) receiveOneRetrying(ctx context.Context, label string) (amqp.EventData, error) {
	// RetryWhileNull requires a comparable T to detect the zero value; a
	// slice (the reader's native return shape) isn't comparable, so the
	// inner op is expressed in terms of *amqp.EventData instead.
	event, err := retry.RetryOnError(ctx, e.policy, label, amqp.IsTransient, func(cctx context.Context) (*amqp.EventData, error) {
		return retry.RetryWhileNull(cctx, e.policy, label, func(rctx context.Context) (*amqp.EventData, error) {
			got, err := e.reader.ReceiveOne(rctx, e.receiverTimeout)
			if err != nil {
				if e.throttlingPlugin != nil && amqp.IsThrottled(err) {
					e.throttlingPlugin.OnThrottled(e.partition, e.policy.WaitInterval.Milliseconds())
				}
				return nil, err
			}
			if len(got) == 0 {
				return nil, nil // null result: retry-while-null keeps waiting
			}
			return &got[0], nil
		})
	}, nil)
	if err != nil {
		return amqp.EventData{}, err
	}
	return *event, nil
}
