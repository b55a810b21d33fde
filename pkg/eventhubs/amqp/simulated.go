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
	"sync"
	"time"
)

// SimulatedPartition is an in-memory stand-in for one Event Hubs
// partition, backing the useSimulatedClient configuration option and
// this package's own tests. It is safe for concurrent use.
type SimulatedPartition struct {
	mu       sync.Mutex
	id       string
	beginSeq SequenceNumber
	events   []EventData // index 0 holds sequence number beginSeq
}

// NewSimulatedPartition builds a partition with count events starting at
// beginSeq.
func NewSimulatedPartition(id string, beginSeq SequenceNumber, count int) *SimulatedPartition {
	events := make([]EventData, count)
	for i := range events {
		events[i] = EventData{
			SequenceNumber: beginSeq + SequenceNumber(i),
			Body:           []byte(fmt.Sprintf("event-%d", beginSeq+SequenceNumber(i))),
			EnqueuedTime:   time.Unix(0, 0),
		}
	}
	return &SimulatedPartition{id: id, beginSeq: beginSeq, events: events}
}

// Trim simulates the service garbage-collecting events below newBegin.
func (p *SimulatedPartition) Trim(newBegin SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if newBegin <= p.beginSeq {
		return
	}
	drop := int(newBegin - p.beginSeq)
	if drop > len(p.events) {
		drop = len(p.events)
	}
	p.events = p.events[drop:]
	p.beginSeq = newBegin
}

func (p *SimulatedPartition) lastSeq() SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return p.beginSeq - 1
	}
	return p.events[len(p.events)-1].SequenceNumber
}

func (p *SimulatedPartition) eventAt(seq SequenceNumber) (EventData, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.beginSeq {
		return EventData{}, false
	}
	idx := int(seq - p.beginSeq)
	if idx < 0 || idx >= len(p.events) {
		return EventData{}, false
	}
	return p.events[idx], true
}

// SimulatedClient is a Client backed by a SimulatedPartition, used by
// tests and by the useSimulatedClient configuration option. StealNext
// injects a one-shot ErrReceiverDisconnected the next time the named
// receiver calls ReceiveOne, modeling another exclusive receiver taking
// over.
type SimulatedClient struct {
	mu          sync.Mutex
	partition   *SimulatedPartition
	closed      bool
	stolen      map[*SimulatedReceiver]bool
	faults      map[*SimulatedReceiver]error
	closeFaults map[*SimulatedReceiver]error
}

// NewSimulatedClient wraps partition as a Client.
func NewSimulatedClient(partition *SimulatedPartition) *SimulatedClient {
	return &SimulatedClient{
		partition:   partition,
		stolen:      map[*SimulatedReceiver]bool{},
		faults:      map[*SimulatedReceiver]error{},
		closeFaults: map[*SimulatedReceiver]error{},
	}
}

// SimulatedClientFactory adapts a fixed SimulatedClient into a
// ClientFactory, for wiring useSimulatedClient end to end.
func SimulatedClientFactory(client *SimulatedClient) ClientFactory {
	return func(_ context.Context, _ ClientKey) (Client, error) {
		return client, nil
	}
}

func (c *SimulatedClient) GetRuntimeInformation(_ context.Context) ([]string, error) {
	return []string{c.partition.id}, nil
}

func (c *SimulatedClient) GetPartitionRuntimeInformation(_ context.Context, partitionID string) (PartitionRuntimeInformation, error) {
	c.mu.Lock()
	begin := c.partition.beginSeq
	c.mu.Unlock()
	return PartitionRuntimeInformation{
		PartitionID:         partitionID,
		BeginSequenceNumber: begin,
		LastSequenceNumber:  c.partition.lastSeq(),
	}, nil
}

func (c *SimulatedClient) NewReceiver(_ context.Context, _ string, pos EventPosition, _ ReceiverOptions) (Receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	var cursor SequenceNumber
	if seq, ok := pos.SequenceNumberValue(); ok {
		cursor = seq
	} else {
		cursor = c.partition.beginSeq
	}
	r := &SimulatedReceiver{client: c, cursor: cursor, lastSeq: UnknownSequenceNumber, open: true}
	return r, nil
}

func (c *SimulatedClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// StealNext arranges for receiver's next ReceiveOne to fail with
// ErrReceiverDisconnected, as if another exclusive receiver had opened.
func (c *SimulatedClient) StealNext(receiver *SimulatedReceiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stolen[receiver] = true
}

// FailNextWith arranges for receiver's next ReceiveOne to fail with err
// verbatim, for injecting faults (e.g. a reactor-closed condition) that
// have no other trigger in this simulation.
func (c *SimulatedClient) FailNextWith(receiver *SimulatedReceiver, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[receiver] = err
}

// FailNextCloseWith arranges for receiver's next Close to fail with err
// verbatim, for exercising PartitionReader.Close's best-effort swallow
// behavior.
func (c *SimulatedClient) FailNextCloseWith(receiver *SimulatedReceiver, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFaults[receiver] = err
}

// SimulatedReceiver is the Receiver half of SimulatedClient.
type SimulatedReceiver struct {
	mu      sync.Mutex
	client  *SimulatedClient
	cursor  SequenceNumber
	lastSeq SequenceNumber
	open    bool
}

func (r *SimulatedReceiver) ReceiveOne(_ context.Context, _ time.Duration) ([]EventData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil, ErrClosed
	}

	r.client.mu.Lock()
	steal := r.client.stolen[r]
	if steal {
		delete(r.client.stolen, r)
	}
	fault := r.client.faults[r]
	if fault != nil {
		delete(r.client.faults, r)
	}
	r.client.mu.Unlock()
	if steal {
		r.open = false
		return nil, ErrReceiverDisconnected
	}
	if fault != nil {
		return nil, fault
	}

	// The service never hands back an event below its retained begin
	// sequence number: if the cursor has fallen behind, jump to begin,
	// mirroring real GC-on-read behavior.
	r.client.mu.Lock()
	begin := r.client.partition.beginSeq
	r.client.mu.Unlock()
	if r.cursor < begin {
		r.cursor = begin
	}

	event, ok := r.client.partition.eventAt(r.cursor)
	if !ok {
		return nil, nil // no event available yet: a null result, not an error
	}
	r.cursor = event.SequenceNumber + 1
	r.lastSeq = event.SequenceNumber
	return []EventData{event}, nil
}

func (r *SimulatedReceiver) LastReceivedSequence() SequenceNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

func (r *SimulatedReceiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *SimulatedReceiver) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false

	r.client.mu.Lock()
	fault := r.client.closeFaults[r]
	if fault != nil {
		delete(r.client.closeFaults, r)
	}
	r.client.mu.Unlock()
	return fault
}
