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
	"sync"

	"github.com/go-logr/logr"

	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/amqp"
	"github.com/ccwork-ms/azure-event-hubs-spark/pkg/eventhubs/retry"
)

// EngineFactory builds the CursorEngine backing a brand-new cache entry.
// Production code wires NewDefaultEngineFactory; tests substitute a
// factory that points at a simulated partition.
type EngineFactory func(ctx context.Context, conf *EventHubsConf, partition NameAndPartition, startSeqNo int64, taskContext string) (*CursorEngine, error)

// ReceiverCache is the process-local map ReceiverKey -> CursorEngine
// described in spec §4.4, grounded on the lookup-or-construct pattern in
// KEDA's scale_handler.go (getScaler / buildScaler under scalersMux):
// look up under a read lock, then upgrade to a write lock and recheck
// before constructing, so concurrent first-touches of the same key never
// build two engines. The write lock is held while a missing engine is
// constructed (which opens its link); engine.Receive (the batch I/O) is
// always called after the lock is released.
type ReceiverCache struct {
	mu      sync.RWMutex
	entries map[ReceiverKey]*CursorEngine

	factory EngineFactory
	logger  logr.Logger
}

// NewReceiverCache builds an empty cache. Entries live for the worker
// process lifetime — there is no eviction — since the framework
// guarantees partition-to-worker stickiness across micro-batches (spec
// §4.4).
func NewReceiverCache(factory EngineFactory, logger logr.Logger) *ReceiverCache {
	return &ReceiverCache{
		entries: map[ReceiverKey]*CursorEngine{},
		factory: factory,
		logger:  logger.WithName("receiverCache"),
	}
}

// Receive is the cache's sole public entry point (spec §4.4): look up or
// construct the engine for (conf, partition), then drive it, recovering
// from the two outer failures a CursorEngine cannot recover from on its
// own.
func (c *ReceiverCache) Receive(ctx context.Context, conf *EventHubsConf, partition NameAndPartition, requestSeqNo int64, batchSize int, taskContext string) ([]amqp.EventData, error) {
	key := newReceiverKey(conf.ConnectionString(), conf.ConsumerGroup(), partition.PartitionID)

	engine, err := c.lookupOrConstruct(ctx, key, conf, partition, requestSeqNo, taskContext)
	if err != nil {
		return nil, err
	}

	events, err := engine.Receive(ctx, requestSeqNo, batchSize)
	if err == nil {
		return events, nil
	}

	switch {
	case errors.Is(err, amqp.ErrReceiverDisconnected) || errors.Is(err, ErrReceiverStolen):
		// The driver is expected to reschedule the task; the stale engine
		// is left in place. On retry it re-enters S2 and recreates.
		c.logger.Info("receiver disconnected, leaving cache entry in place for reschedule", "partition", partition.String())
		return nil, fmt.Errorf("%w: %w", ErrReceiverStolen, err)

	case amqp.IsReactorClosed(err):
		c.logger.Info("reactor closed, rebuilding engine and retrying once", "partition", partition.String())
		fresh, rebuildErr := c.rebuild(ctx, key, conf, partition, requestSeqNo, taskContext)
		if rebuildErr != nil {
			return nil, fmt.Errorf("eventhubs: rebuilding engine after reactor-closed: %w", rebuildErr)
		}
		return fresh.Receive(ctx, requestSeqNo, batchSize)

	default:
		return nil, err
	}
}

func (c *ReceiverCache) lookupOrConstruct(ctx context.Context, key ReceiverKey, conf *EventHubsConf, partition NameAndPartition, requestSeqNo int64, taskContext string) (*CursorEngine, error) {
	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		// Lost the race with a concurrent first-touch of the same key.
		return e, nil
	}

	engine, err := c.factory(ctx, conf, partition, requestSeqNo, taskContext)
	if err != nil {
		return nil, fmt.Errorf("eventhubs: constructing cursor engine for %s: %w", partition.String(), err)
	}
	c.entries[key] = engine
	return engine, nil
}

// rebuild force-closes whatever the current entry holds and atomically
// replaces it with a fresh engine, outside the I/O path: the mutex is
// only held for the map swap, matching spec §4.4/§5.
func (c *ReceiverCache) rebuild(ctx context.Context, key ReceiverKey, conf *EventHubsConf, partition NameAndPartition, requestSeqNo int64, taskContext string) (*CursorEngine, error) {
	c.mu.Lock()
	stale := c.entries[key]
	c.mu.Unlock()

	if stale != nil {
		if err := stale.reader.Teardown(ctx); err != nil {
			c.logger.Error(err, "tearing down stale engine before rebuild", "partition", partition.String())
		}
	}

	fresh, err := c.factory(ctx, conf, partition, requestSeqNo, taskContext)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// NewDefaultEngineFactory builds an EngineFactory that opens an AMQP
// connection through pool (real or simulated, depending on the
// ClientFactory pool was built with; conf.UseSimulatedClient is not
// consulted), wiring together every leaf component named in spec §2: PartitionReader,
// RetryPolicy, (when enabled) PerfReporter, and the metricPlugin/
// throttlingStatusPlugin boundary objects named by conf, resolved once per
// construction through plugins (spec §6/§9). plugins may be nil, in which
// case an unset or unresolvable plugin name is simply left unwired.
func NewDefaultEngineFactory(pool amqp.ConnectionPool, clientKeyOf func(conf *EventHubsConf) (amqp.ClientKey, error), endpoint DriverEndpoint, plugins *PluginRegistry, logger logr.Logger) EngineFactory {
	return func(ctx context.Context, conf *EventHubsConf, partition NameAndPartition, startSeqNo int64, taskContext string) (*CursorEngine, error) {
		key, err := clientKeyOf(conf)
		if err != nil {
			return nil, err
		}

		opts := amqp.ReceiverOptions{
			ConsumerGroup:    conf.ConsumerGroup(),
			PrefetchCount:    uint32(conf.PrefetchCount()),
			Exclusive:        conf.UseExclusiveReceiver(),
			OperationTimeout: conf.OperationTimeout(),
			Identifier:       fmt.Sprintf("spark-%s", taskContext),
		}

		reader := amqp.NewPartitionReader(pool, key, partition.partitionIDString(), opts, logger)
		if err := reader.Open(ctx, startSeqNo); err != nil {
			return nil, err
		}

		policy := retry.Policy{
			OperationTimeout: conf.OperationTimeout(),
			WaitInterval:     defaultWaitInterval,
			MaxAttempts:      defaultRetryCount,
			Logger:           logger,
		}

		var perf *PerfReporter
		if conf.SlowPartitionAdjustment() {
			perf = NewPerfReporter(endpoint, true, logger)
		}

		var metricPlugin MetricPlugin
		if name := conf.MetricPlugin(); name != "" && plugins != nil {
			metricPlugin, err = plugins.MetricPlugin(name)
			if err != nil {
				return nil, err
			}
		}

		var throttlingPlugin ThrottlingStatusPlugin
		if name := conf.ThrottlingStatusPlugin(); name != "" && plugins != nil {
			throttlingPlugin, err = plugins.ThrottlingStatusPlugin(name)
			if err != nil {
				return nil, err
			}
		}

		return NewCursorEngine(reader, policy, logger, conf.ReceiverTimeout(), conf.UseExclusiveReceiver(), perf, metricPlugin, throttlingPlugin, taskContext, partition), nil
	}
}
