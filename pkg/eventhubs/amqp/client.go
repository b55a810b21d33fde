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
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
)

// Client is the opaque SDK collaborator §4.1/§1 of the spec names as
// EventHubClient: it can enumerate/describe partitions and open a
// per-partition receiver. Implemented for real by azureClient, and in
// tests by the simulated in-memory client.
type Client interface {
	GetRuntimeInformation(ctx context.Context) ([]string, error)
	GetPartitionRuntimeInformation(ctx context.Context, partitionID string) (PartitionRuntimeInformation, error)
	NewReceiver(ctx context.Context, partitionID string, pos EventPosition, opts ReceiverOptions) (Receiver, error)
	Close(ctx context.Context) error
}

// Receiver is the opaque SDK collaborator §4.1 names as PartitionReceiver.
type Receiver interface {
	ReceiveOne(ctx context.Context, timeout time.Duration) ([]EventData, error)
	LastReceivedSequence() SequenceNumber
	IsOpen() bool
	Close(ctx context.Context) error
}

// ClientKey identifies one borrowable AMQP connection. Two readers that
// share a connection string (or, for AAD auth, a namespace+event-hub-name
// pair) and a consumer group share the same pooled Client.
type ClientKey struct {
	ConnectionString string
	Namespace        string
	EventHubName     string
	ConsumerGroup    string
	Credential       azcore.TokenCredential // set when UseAAD
	UseAAD           bool
}

func (k ClientKey) cacheKey() string {
	if k.ConnectionString != "" {
		return strings.ToLower(k.ConnectionString + "|" + k.ConsumerGroup)
	}
	return strings.ToLower(k.Namespace + "|" + k.EventHubName + "|" + k.ConsumerGroup)
}

// ClientFactory builds a new Client for a key. Production code uses
// DefaultClientFactory; tests substitute a factory returning a simulated
// Client (the useSimulatedClient option).
type ClientFactory func(ctx context.Context, key ClientKey) (Client, error)

// DefaultClientFactory builds a Client backed by the real Event Hubs SDK.
func DefaultClientFactory(ctx context.Context, key ClientKey) (Client, error) {
	var (
		consumer *azeventhubs.ConsumerClient
		err      error
	)
	consumerGroup := key.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = azeventhubs.DefaultConsumerGroup
	}
	if key.ConnectionString != "" {
		consumer, err = azeventhubs.NewConsumerClientFromConnectionString(key.ConnectionString, key.EventHubName, consumerGroup, nil)
	} else if key.UseAAD && key.Credential != nil {
		consumer, err = azeventhubs.NewConsumerClient(key.Namespace, key.EventHubName, consumerGroup, key.Credential, nil)
	} else {
		return nil, fmt.Errorf("%w: neither a connection string nor AAD credentials were provided", ErrConnection)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating consumer client: %s", ErrConnection, err)
	}
	return &azureClient{consumer: consumer}, nil
}

type azureClient struct {
	consumer *azeventhubs.ConsumerClient
}

func (c *azureClient) GetRuntimeInformation(ctx context.Context) ([]string, error) {
	props, err := c.consumer.GetEventHubProperties(ctx, nil)
	if err != nil {
		return nil, err
	}
	return props.PartitionIDs, nil
}

func (c *azureClient) GetPartitionRuntimeInformation(ctx context.Context, partitionID string) (PartitionRuntimeInformation, error) {
	props, err := c.consumer.GetPartitionProperties(ctx, partitionID, nil)
	if err != nil {
		return PartitionRuntimeInformation{}, err
	}
	return PartitionRuntimeInformation{
		PartitionID:         props.PartitionID,
		BeginSequenceNumber: props.BeginningSequenceNumber,
		LastSequenceNumber:  props.LastEnqueuedSequenceNumber,
	}, nil
}

func (c *azureClient) NewReceiver(ctx context.Context, partitionID string, pos EventPosition, opts ReceiverOptions) (Receiver, error) {
	start := azeventhubs.StartPosition{Inclusive: true}
	if seq, ok := pos.SequenceNumberValue(); ok {
		start.SequenceNumber = &seq
	} else {
		start.Earliest = to.Ptr(true)
	}

	pcOpts := &azeventhubs.PartitionClientOptions{StartPosition: start}
	if opts.Exclusive {
		level := int64(1)
		pcOpts.OwnerLevel = &level
	}

	pc, err := c.consumer.NewPartitionClient(partitionID, pcOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnection, err)
	}
	return &azureReceiver{pc: pc, open: true, lastSeq: UnknownSequenceNumber, prefetch: int(opts.PrefetchCount)}, nil
}

func (c *azureClient) Close(ctx context.Context) error {
	return c.consumer.Close(ctx)
}

type azureReceiver struct {
	mu       sync.Mutex
	pc       *azeventhubs.PartitionClient
	buffer   []*azeventhubs.ReceivedEventData
	lastSeq  SequenceNumber
	open     bool
	prefetch int
}

func (r *azureReceiver) ReceiveOne(ctx context.Context, timeout time.Duration) ([]EventData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil, ErrClosed
	}

	if len(r.buffer) == 0 {
		batch := r.prefetch
		if batch < 1 {
			batch = 1
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		events, err := r.pc.ReceiveEvents(cctx, batch, nil)
		if err != nil {
			if ctxErr := cctx.Err(); ctxErr != nil {
				// A wait-timeout is a null result, not a failure: the caller
				// (RetryPolicy.RetryWhileNull) decides whether to keep
				// waiting.
				return nil, nil
			}
			if IsReceiverDisconnected(err) {
				r.open = false
				return nil, ErrReceiverDisconnected
			}
			return nil, err
		}
		r.buffer = events
	}

	if len(r.buffer) == 0 {
		return nil, nil
	}

	ev := r.buffer[0]
	r.buffer = r.buffer[1:]
	r.lastSeq = ev.SequenceNumber
	data := EventData{
		SequenceNumber: ev.SequenceNumber,
		Offset:         ev.Offset,
		Body:           ev.Body,
		PartitionKey:   ev.PartitionKey,
	}
	if ev.EnqueuedTime != nil {
		data.EnqueuedTime = *ev.EnqueuedTime
	}
	return []EventData{data}, nil
}

func (r *azureReceiver) LastReceivedSequence() SequenceNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

func (r *azureReceiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *azureReceiver) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return nil
	}
	r.open = false
	r.mu.Unlock()
	return r.pc.Close(ctx)
}
