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

package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/retry"
)

// closeRetryInterval paces the retry loop Close runs before giving up and
// swallowing whatever error remains.
const closeRetryInterval = 500 * time.Millisecond

// PartitionReader owns one live AMQP receiver for a single partition, per
// spec §4.1. It borrows its underlying Client from a ConnectionPool on
// first Open and holds it for its own lifetime; Teardown returns the
// borrow.
type PartitionReader struct {
	pool        ConnectionPool
	key         ClientKey
	partitionID string
	opts        ReceiverOptions
	logger      logr.Logger

	client   Client
	receiver Receiver
}

// NewPartitionReader constructs a reader that has not yet opened a link.
func NewPartitionReader(pool ConnectionPool, key ClientKey, partitionID string, opts ReceiverOptions, logger logr.Logger) *PartitionReader {
	return &PartitionReader{pool: pool, key: key, partitionID: partitionID, opts: opts, logger: logger.WithName("partitionReader")}
}

// Open borrows (if needed) the pooled client and opens a receiver link at
// startSeqNo. Fails with ErrConnection if the SDK create call cannot
// complete within opts.OperationTimeout.
func (r *PartitionReader) Open(ctx context.Context, startSeqNo SequenceNumber) error {
	if r.client == nil {
		client, err := r.pool.Borrow(ctx, r.key)
		if err != nil {
			return fmt.Errorf("%w: borrowing pooled client: %s", ErrConnection, err)
		}
		r.client = client
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
	defer cancel()
	receiver, err := r.client.NewReceiver(cctx, r.partitionID, EventPositionFromSequenceNumber(startSeqNo), r.opts)
	if err != nil {
		return fmt.Errorf("%w: opening receiver at sequence %d: %s", ErrConnection, startSeqNo, err)
	}
	r.receiver = receiver
	return nil
}

// ReceiveOne returns the next single event, or an empty slice if the SDK
// timed out waiting for one (the caller decides whether that is fatal).
func (r *PartitionReader) ReceiveOne(ctx context.Context, timeout time.Duration) ([]EventData, error) {
	if r.receiver == nil {
		return nil, ErrClosed
	}
	return r.receiver.ReceiveOne(ctx, timeout)
}

// LastReceivedSequence is the sequence number of the last event handed
// out, or UnknownSequenceNumber if none.
func (r *PartitionReader) LastReceivedSequence() SequenceNumber {
	if r.receiver == nil {
		return UnknownSequenceNumber
	}
	return r.receiver.LastReceivedSequence()
}

// IsOpen reports transport liveness.
func (r *PartitionReader) IsOpen() bool {
	return r.receiver != nil && r.receiver.IsOpen()
}

// CurrentReceiver exposes the live Receiver for fault-injection in tests
// (e.g. SimulatedClient.StealNext). Production callers have no use for it.
func (r *PartitionReader) CurrentReceiver() Receiver {
	return r.receiver
}

// Close is a best-effort termination of the current receiver link, per
// spec §4.1: errors are logged and swallowed, never returned to the
// caller. When exclusive is true (epoch/owner-level receiver) the close is
// skipped entirely — the service itself evicts the prior link when a new
// epoch opens, so there is nothing useful to close. A transient failure is
// retried internally via retry.RetryOnError (the "used for close()"
// fallback spec §4.2 names); whatever error survives that is logged, not
// propagated, so a flaky close can never fail the recreate it precedes.
func (r *PartitionReader) Close(ctx context.Context, exclusive bool) {
	if r.receiver == nil {
		return
	}
	receiver := r.receiver
	r.receiver = nil
	if exclusive {
		return
	}

	policy := retry.Policy{OperationTimeout: r.opts.OperationTimeout, WaitInterval: closeRetryInterval, Logger: r.logger}
	fallback := struct{}{}
	_, err := retry.RetryOnError(ctx, policy, "close", IsTransient, func(cctx context.Context) (struct{}, error) {
		return struct{}{}, receiver.Close(cctx)
	}, &fallback)
	if err != nil {
		r.logger.Error(err, "closing receiver link failed, continuing best-effort")
	}
}

// Recreate closes (unless exclusive) and reopens the link at newSeqNo.
// Close never fails the caller; only Open's failure is fatal here.
func (r *PartitionReader) Recreate(ctx context.Context, newSeqNo SequenceNumber, exclusive bool) error {
	r.Close(ctx, exclusive)
	return r.Open(ctx, newSeqNo)
}

// RuntimeInformation queries the partition's begin/last sequence numbers
// from the pooled client, used by CursorEngine to distinguish expiration
// from a genuinely lost cursor.
func (r *PartitionReader) RuntimeInformation(ctx context.Context) (PartitionRuntimeInformation, error) {
	if r.client == nil {
		return PartitionRuntimeInformation{}, ErrClosed
	}
	return r.client.GetPartitionRuntimeInformation(ctx, r.partitionID)
}

// Teardown closes the current receiver unconditionally and returns the
// borrowed client to the pool, forcing the pool to close the underlying
// connection. Used by the cache on a reactor-closed rebuild.
func (r *PartitionReader) Teardown(ctx context.Context) error {
	var err error
	if r.receiver != nil {
		receiver := r.receiver
		r.receiver = nil
		err = receiver.Close(ctx)
	}
	if r.client != nil {
		r.pool.Return(r.key, true)
		r.client = nil
	}
	return err
}
