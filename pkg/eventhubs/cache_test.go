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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/amqp"
	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/retry"
)

// engineBuild records the SimulatedClient behind one constructed engine;
// testCacheFactory appends one per construction, so tests can reach in and
// inject faults after the cache has already built an entry.
type engineBuild struct {
	client *amqp.SimulatedClient
}

func testCacheFactory(partition *amqp.SimulatedPartition, builds *[]engineBuild) EngineFactory {
	return func(ctx context.Context, conf *EventHubsConf, partition2 NameAndPartition, startSeqNo int64, taskContext string) (*CursorEngine, error) {
		client := amqp.NewSimulatedClient(partition)
		pool := amqp.NewPool(amqp.SimulatedClientFactory(client))
		key := amqp.ClientKey{ConnectionString: conf.ConnectionString()}
		reader := amqp.NewPartitionReader(pool, key, "0", amqp.ReceiverOptions{OperationTimeout: 2 * time.Second}, logr.Discard())
		if err := reader.Open(ctx, startSeqNo); err != nil {
			return nil, err
		}
		policy := retry.Policy{
			OperationTimeout: 2 * time.Second,
			WaitInterval:     time.Millisecond,
			MaxAttempts:      5,
			Logger:           logr.Discard(),
		}
		engine := NewCursorEngine(reader, policy, logr.Discard(), 2*time.Second, false, nil, nil, nil, taskContext, partition2)
		*builds = append(*builds, engineBuild{client: client})
		return engine, nil
	}
}

func testConf() *EventHubsConf {
	return NewEventHubsConf(map[string]string{
		"connectionstring": "Endpoint=sb://test/;EntityPath=test",
	})
}

func TestReceiverCacheSameKeyReusesEngine(t *testing.T) {
	partition := amqp.NewSimulatedPartition("0", 0, 50)
	var builds []engineBuild
	cache := NewReceiverCache(testCacheFactory(partition, &builds), logr.Discard())
	conf := testConf()
	np := NameAndPartition{EventHubName: "test", PartitionID: 0}

	_, err := cache.Receive(context.Background(), conf, np, 0, 10, "task-0")
	require.NoError(t, err)

	key := newReceiverKey(conf.ConnectionString(), conf.ConsumerGroup(), np.PartitionID)
	cache.mu.RLock()
	first := cache.entries[key]
	cache.mu.RUnlock()

	_, err = cache.Receive(context.Background(), conf, np, 10, 5, "task-0")
	require.NoError(t, err)

	cache.mu.RLock()
	second := cache.entries[key]
	cache.mu.RUnlock()

	assert.Same(t, first, second)
	assert.Len(t, builds, 1, "only one engine should ever have been constructed")
}

func TestReceiverCacheRebuildsOnReactorClosed(t *testing.T) {
	partition := amqp.NewSimulatedPartition("0", 0, 50)
	var builds []engineBuild
	cache := NewReceiverCache(testCacheFactory(partition, &builds), logr.Discard())
	conf := testConf()
	np := NameAndPartition{EventHubName: "test", PartitionID: 0}

	_, err := cache.Receive(context.Background(), conf, np, 0, 5, "task-0")
	require.NoError(t, err)
	require.Len(t, builds, 1)

	key := newReceiverKey(conf.ConnectionString(), conf.ConsumerGroup(), np.PartitionID)
	cache.mu.RLock()
	firstEngine := cache.entries[key]
	cache.mu.RUnlock()

	simReceiver := firstEngine.reader.CurrentReceiver().(*amqp.SimulatedReceiver)
	reactorClosedErr := errors.New("rejected execution: ReactorDispatcher instance is closed")
	builds[0].client.FailNextWith(simReceiver, reactorClosedErr)

	events, err := cache.Receive(context.Background(), conf, np, 5, 5, "task-0")
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7, 8, 9}, seqNumbers(events))

	require.Len(t, builds, 2, "reactor-closed must rebuild a second engine")
	cache.mu.RLock()
	secondEngine := cache.entries[key]
	cache.mu.RUnlock()
	assert.NotSame(t, firstEngine, secondEngine)
}

func TestReceiverCacheReceiverDisconnectedLeavesEntryInPlace(t *testing.T) {
	partition := amqp.NewSimulatedPartition("0", 0, 50)
	var builds []engineBuild
	cache := NewReceiverCache(testCacheFactory(partition, &builds), logr.Discard())
	conf := testConf()
	np := NameAndPartition{EventHubName: "test", PartitionID: 0}

	_, err := cache.Receive(context.Background(), conf, np, 0, 5, "task-0")
	require.NoError(t, err)

	key := newReceiverKey(conf.ConnectionString(), conf.ConsumerGroup(), np.PartitionID)
	cache.mu.RLock()
	engine := cache.entries[key]
	cache.mu.RUnlock()

	simReceiver := engine.reader.CurrentReceiver().(*amqp.SimulatedReceiver)
	builds[0].client.StealNext(simReceiver)

	_, err = cache.Receive(context.Background(), conf, np, 5, 5, "task-0")
	assert.ErrorIs(t, err, amqp.ErrReceiverDisconnected)
	assert.ErrorIs(t, err, ErrReceiverStolen)

	cache.mu.RLock()
	stillSame := cache.entries[key]
	cache.mu.RUnlock()
	assert.Same(t, engine, stillSame, "a stolen receiver must not evict the cache entry")
	assert.Len(t, builds, 1, "no rebuild should happen on receiver-stolen")
}

func TestNewDefaultEngineFactoryWiresMetricPlugin(t *testing.T) {
	partition := amqp.NewSimulatedPartition("0", 0, 50)
	client := amqp.NewSimulatedClient(partition)
	pool := amqp.NewPool(amqp.SimulatedClientFactory(client))

	recorder := &recordingMetricPlugin{}
	plugins := NewPluginRegistry()
	plugins.RegisterMetricPlugin("recorder", func() MetricPlugin { return recorder })

	conf := NewEventHubsConf(map[string]string{
		"connectionstring": "Endpoint=sb://test/;EntityPath=test",
		"metricplugin":     "recorder",
	})

	factory := NewDefaultEngineFactory(pool, ClientKeyOf(NewAadCredentialRegistry()), nil, plugins, logr.Discard())
	cache := NewReceiverCache(factory, logr.Discard())
	np := NameAndPartition{EventHubName: "test", PartitionID: 0}

	_, err := cache.Receive(context.Background(), conf, np, 0, 5, "task-0")
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.calls, "OnBatchReceived must fire alongside the perf report")
}

func TestReceiverCacheConstructionErrorPropagates(t *testing.T) {
	wantErr := fmt.Errorf("boom")
	factory := func(ctx context.Context, conf *EventHubsConf, partition NameAndPartition, startSeqNo int64, taskContext string) (*CursorEngine, error) {
		return nil, wantErr
	}
	cache := NewReceiverCache(factory, logr.Discard())
	np := NameAndPartition{EventHubName: "test", PartitionID: 0}

	_, err := cache.Receive(context.Background(), testConf(), np, 0, 1, "task-0")
	assert.ErrorIs(t, err, wantErr)
}
