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

// Package amqp adapts the real Azure Event Hubs wire SDK
// (github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs) into the
// small pull-style contract the cursor engine drives: open a partition at a
// sequence number, pull one event at a time, recreate on drift.
package amqp

import (
	"errors"
	"time"
)

// SequenceNumber is a 64-bit per-partition event identifier. -1 means
// "never delivered".
type SequenceNumber = int64

// UnknownSequenceNumber is the sentinel for "never delivered".
const UnknownSequenceNumber SequenceNumber = -1

// EventData is the subset of a received Event Hubs message the cursor
// engine and its callers need.
type EventData struct {
	SequenceNumber SequenceNumber
	Offset         int64
	EnqueuedTime   time.Time
	Body           []byte
	PartitionKey   *string
}

// EventPosition specifies where a receiver should begin consuming.
// Only sequence-number-based positioning is used by the cursor engine;
// the helpers below exist for symmetry with the SDK's own start-position
// variants.
type EventPosition struct {
	sequenceNumber *SequenceNumber
	earliest       bool
}

// EventPositionFromSequenceNumber returns a position at the given
// sequence number, inclusive.
func EventPositionFromSequenceNumber(seq SequenceNumber) EventPosition {
	return EventPosition{sequenceNumber: &seq}
}

// EventPositionEarliest returns a position at the partition's retained
// begin-sequence-number.
func EventPositionEarliest() EventPosition {
	return EventPosition{earliest: true}
}

// SequenceNumberValue reports the positioned sequence number and whether one
// was set (false for the "earliest" position).
func (p EventPosition) SequenceNumberValue() (SequenceNumber, bool) {
	if p.sequenceNumber == nil {
		return 0, false
	}
	return *p.sequenceNumber, true
}

// ReceiverOptions bundles the knobs PartitionReader.Open needs.
type ReceiverOptions struct {
	ConsumerGroup    string
	PrefetchCount    uint32
	Exclusive        bool // epoch / owner-level receiver
	OperationTimeout time.Duration
	Identifier       string // "spark-<taskContext>", as NewDefaultEngineFactory builds it
}

// PartitionRuntimeInformation mirrors the SDK's per-partition properties.
type PartitionRuntimeInformation struct {
	PartitionID         string
	BeginSequenceNumber SequenceNumber
	LastSequenceNumber  SequenceNumber
}

// Sentinel errors surfaced by this package. Callers in pkg/eventhubs
// translate these into the taxonomy described in spec §7.
var (
	// ErrReceiverDisconnected means another exclusive (higher owner-level)
	// receiver has taken the link — the SDK's ownership-lost condition.
	ErrReceiverDisconnected = errors.New("amqp: receiver disconnected, ownership lost to another exclusive receiver")
	// ErrConnection means the SDK could not establish or re-establish a
	// link within the operation timeout.
	ErrConnection = errors.New("amqp: connection error")
	// ErrClosed means an operation was attempted on a reader/client that
	// has already been closed.
	ErrClosed = errors.New("amqp: receiver closed")
)
