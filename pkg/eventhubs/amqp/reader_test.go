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
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T, partition *SimulatedPartition) (*PartitionReader, *SimulatedClient) {
	t.Helper()
	client := NewSimulatedClient(partition)
	pool := NewPool(SimulatedClientFactory(client))
	key := ClientKey{ConnectionString: "Endpoint=sb://test/;EntityPath=test"}
	reader := NewPartitionReader(pool, key, "0", ReceiverOptions{OperationTimeout: time.Second}, logr.Discard())
	return reader, client
}

func TestPartitionReaderOpenAndReceive(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 10)
	reader, _ := newTestReader(t, partition)

	require.NoError(t, reader.Open(context.Background(), 0))
	assert.True(t, reader.IsOpen())
	assert.Equal(t, UnknownSequenceNumber, reader.LastReceivedSequence())

	events, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 0, events[0].SequenceNumber)
	assert.EqualValues(t, 0, reader.LastReceivedSequence())
}

func TestPartitionReaderRecreateRepositions(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 30)
	reader, _ := newTestReader(t, partition)

	require.NoError(t, reader.Open(context.Background(), 0))
	_, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, reader.Recreate(context.Background(), 20, false))
	events, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 20, events[0].SequenceNumber)
}

func TestPartitionReaderExclusiveRecreateSkipsClose(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 10)
	reader, _ := newTestReader(t, partition)

	require.NoError(t, reader.Open(context.Background(), 0))
	prior := reader.receiver.(*SimulatedReceiver)
	require.NoError(t, reader.Recreate(context.Background(), 5, true))
	// The prior receiver is never closed in exclusive mode, but the new one
	// still opens and serves the repositioned cursor correctly.
	assert.True(t, prior.IsOpen())
	events, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 5, events[0].SequenceNumber)
}

func TestPartitionReaderReceiveOneEmptyPastEnd(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 3)
	reader, _ := newTestReader(t, partition)
	require.NoError(t, reader.Open(context.Background(), 0))

	for i := 0; i < 3; i++ {
		_, err := reader.ReceiveOne(context.Background(), time.Second)
		require.NoError(t, err)
	}
	events, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPartitionReaderRecreateSwallowsCloseError(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 30)
	reader, client := newTestReader(t, partition)

	require.NoError(t, reader.Open(context.Background(), 0))
	simReceiver := reader.receiver.(*SimulatedReceiver)
	client.FailNextCloseWith(simReceiver, errors.New("transport reset while closing"))

	// Recreate must still succeed: the old link's close failure is logged
	// and swallowed, never propagated, so the new link opens regardless.
	require.NoError(t, reader.Recreate(context.Background(), 20, false))
	events, err := reader.ReceiveOne(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 20, events[0].SequenceNumber)
}

func TestPartitionReaderReceiverDisconnected(t *testing.T) {
	partition := NewSimulatedPartition("0", 0, 10)
	reader, client := newTestReader(t, partition)
	require.NoError(t, reader.Open(context.Background(), 0))

	// Reach into the reader to steal its underlying simulated receiver.
	simReceiver := reader.receiver.(*SimulatedReceiver)
	client.StealNext(simReceiver)

	_, err := reader.ReceiveOne(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrReceiverDisconnected)
	assert.False(t, reader.IsOpen())
}
