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
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized configuration option keys (spec §6). EventHubsConf itself —
// everything beyond this set — belongs to the surrounding framework and
// is out of scope here (spec §1).
const (
	optConnectionString           = "connectionstring"
	optConsumerGroup              = "consumergroup"
	optReceiverTimeout             = "receivertimeout"
	optOperationTimeout             = "operationtimeout"
	optMaxSilentTime               = "maxsilenttime"
	optPrefetchCount               = "prefetchcount"
	optThreadPoolSize              = "threadpoolsize"
	optUseExclusiveReceiver         = "useexclusivereceiver"
	optSlowPartitionAdjustment      = "slowpartitionadjustment"
	optMaxAcceptableBatchTime       = "maxacceptablebatchreceivetime"
	optUseAadAuth                   = "useaadauth"
	optAadAuthCallback              = "aadauthcallback"
	optAadAuthCallbackParams        = "aadauthcallbackparams"
	optMetricPlugin                 = "metricplugin"
	optThrottlingStatusPlugin       = "throttlingstatusplugin"
	optDynamicPartitionDiscovery    = "dynamicpartitiondiscovery"
	optUseSimulatedClient           = "usesimulatedclient"

	// optNamespace/optEventHubName are consulted only when useAadAuth is
	// set: an AAD-authenticated client has no connection string to parse
	// EntityPath/namespace out of, so they must be supplied directly.
	optNamespace   = "namespace"
	optEventHubName = "eventhubname"
)

const (
	defaultConsumerGroup     = "$Default"
	defaultReceiverTimeout   = 60 * time.Second
	defaultOperationTimeout  = 5 * time.Minute
	defaultMaxSilentTime     = 5 * time.Minute
	defaultPrefetchCount     = 500
	minPrefetchCount         = 10
	maxPrefetchCount         = 999
	defaultThreadPoolSize    = 16
	defaultRetryCount        = 10
	defaultWaitInterval      = 1 * time.Second
)

// EventHubsConf is the accessor surface this core consumes from the
// framework's configuration bag, mirroring KEDA's TriggerMetadata +
// ResolveOsEnv* pattern (pkg/util/env_resolver.go): options live as
// lowercased string keys in a map, parsed and defaulted once here rather
// than scattered across call sites.
type EventHubsConf struct {
	options map[string]string
}

// NewEventHubsConf builds a conf from a raw option map, lowercasing keys
// so callers may pass them in any case.
func NewEventHubsConf(options map[string]string) *EventHubsConf {
	normalized := make(map[string]string, len(options))
	for k, v := range options {
		normalized[strings.ToLower(k)] = v
	}
	return &EventHubsConf{options: normalized}
}

func (c *EventHubsConf) get(key string) (string, bool) {
	v, ok := c.options[key]
	return v, ok
}

// ConnectionString returns the AMQP endpoint credentials. Required.
func (c *EventHubsConf) ConnectionString() string {
	v, _ := c.get(optConnectionString)
	return v
}

// ConsumerGroup returns the Event Hubs consumer group, defaulting to
// "$Default".
func (c *EventHubsConf) ConsumerGroup() string {
	if v, ok := c.get(optConsumerGroup); ok && v != "" {
		return v
	}
	return defaultConsumerGroup
}

// ReceiverTimeout is the per-event wait, defaulting to 60s.
func (c *EventHubsConf) ReceiverTimeout() time.Duration {
	return c.durationOr(optReceiverTimeout, defaultReceiverTimeout)
}

// OperationTimeout is the SDK call budget, defaulting to 5m.
func (c *EventHubsConf) OperationTimeout() time.Duration {
	return c.durationOr(optOperationTimeout, defaultOperationTimeout)
}

// MaxSilentTime is the reader idle-recreate threshold.
func (c *EventHubsConf) MaxSilentTime() time.Duration {
	return c.durationOr(optMaxSilentTime, defaultMaxSilentTime)
}

// PrefetchCount is the SDK prefetch advisory, defaulting to 500. The value
// is returned as configured, not clamped; Validate rejects values outside
// [10, 999].
func (c *EventHubsConf) PrefetchCount() int {
	if v, ok := c.get(optPrefetchCount); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultPrefetchCount
}

// ThreadPoolSize is the SDK executor size.
func (c *EventHubsConf) ThreadPoolSize() int {
	if v, ok := c.get(optThreadPoolSize); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultThreadPoolSize
}

// UseExclusiveReceiver reports whether epoch (exclusive) receivers are
// requested, which suppresses Close() on rebuild.
func (c *EventHubsConf) UseExclusiveReceiver() bool {
	return c.boolOr(optUseExclusiveReceiver, false)
}

// SlowPartitionAdjustment reports whether per-batch perf metrics should
// be emitted to the driver.
func (c *EventHubsConf) SlowPartitionAdjustment() bool {
	return c.boolOr(optSlowPartitionAdjustment, false)
}

// MaxAcceptableBatchReceiveTime is a driver-side threshold passed through
// unmodified; this core never reads it.
func (c *EventHubsConf) MaxAcceptableBatchReceiveTime() (time.Duration, bool) {
	v, ok := c.get(optMaxAcceptableBatchTime)
	if !ok || v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// UseAadAuth, AadAuthCallback, AadAuthCallbackParams configure the AAD
// auth path.
func (c *EventHubsConf) UseAadAuth() bool {
	return c.boolOr(optUseAadAuth, false)
}

func (c *EventHubsConf) AadAuthCallback() string {
	v, _ := c.get(optAadAuthCallback)
	return v
}

func (c *EventHubsConf) AadAuthCallbackParams() string {
	v, _ := c.get(optAadAuthCallbackParams)
	return v
}

// Namespace and EventHubName identify the entity when UseAadAuth is true
// and there is no connection string to parse EntityPath out of.
func (c *EventHubsConf) Namespace() string {
	v, _ := c.get(optNamespace)
	return v
}

func (c *EventHubsConf) EventHubName() string {
	v, _ := c.get(optEventHubName)
	return v
}

// MetricPlugin and ThrottlingStatusPlugin name pluggable observer
// factories registered in the PluginRegistry.
func (c *EventHubsConf) MetricPlugin() string {
	v, _ := c.get(optMetricPlugin)
	return v
}

func (c *EventHubsConf) ThrottlingStatusPlugin() string {
	v, _ := c.get(optThrottlingStatusPlugin)
	return v
}

// DynamicPartitionDiscovery is informational only; the cache is passive
// about partition set membership.
func (c *EventHubsConf) DynamicPartitionDiscovery() bool {
	return c.boolOr(optDynamicPartitionDiscovery, false)
}

// UseSimulatedClient reports whether the in-memory test SDK was requested.
// Nothing in this package reads it: whether a connection is real or
// simulated is decided by the ClientFactory the amqp.Pool is built with.
func (c *EventHubsConf) UseSimulatedClient() bool {
	return c.boolOr(optUseSimulatedClient, false)
}

func (c *EventHubsConf) durationOr(key string, fallback time.Duration) time.Duration {
	v, ok := c.get(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func (c *EventHubsConf) boolOr(key string, fallback bool) bool {
	v, ok := c.get(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate enforces the §6/§7 configuration invariants, raised at
// config-validate time and never mid-batch: EntityPath must be present in
// the connection string, receiverTimeout must not exceed
// operationTimeout, and prefetchCount must be in [10, 999].
func (c *EventHubsConf) Validate() error {
	if c.ConnectionString() == "" && !c.UseAadAuth() {
		return fmt.Errorf("%w: connectionString is required unless useAadAuth is set", ErrConfiguration)
	}
	if c.ConnectionString() != "" && !strings.Contains(c.ConnectionString(), "EntityPath") {
		return fmt.Errorf("%w: connectionString must contain EntityPath", ErrConfiguration)
	}
	if c.UseAadAuth() && c.ConnectionString() == "" && (c.Namespace() == "" || c.EventHubName() == "") {
		return fmt.Errorf("%w: namespace and eventHubName are required when useAadAuth is set without a connectionString", ErrConfiguration)
	}
	if c.ReceiverTimeout() > c.OperationTimeout() {
		return fmt.Errorf("%w: receiverTimeout (%s) must not exceed operationTimeout (%s)", ErrConfiguration, c.ReceiverTimeout(), c.OperationTimeout())
	}
	if pc := c.PrefetchCount(); pc < minPrefetchCount || pc > maxPrefetchCount {
		return fmt.Errorf("%w: prefetchCount %d out of range [%d, %d]", ErrConfiguration, pc, minPrefetchCount, maxPrefetchCount)
	}
	return nil
}
