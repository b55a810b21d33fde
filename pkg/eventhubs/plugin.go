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
	"sync"
)

// MetricPlugin observes per-batch receive metrics. ThrottlingStatusPlugin
// observes SDK-reported throttling status. Both are pluggable per spec
// §6/§9: the source locates them by fully-qualified class name and
// reflectively constructs a no-arg instance; Go has no such reflective
// class loader, so PluginRegistry replaces it with a registry of named
// factory closures, seeded at process init by whatever assembles the
// worker runtime. The configuration surface (option key -> name) is kept
// identical so existing config remains valid.
type MetricPlugin interface {
	OnBatchReceived(partition NameAndPartition, batchSize int, elapsed int64)
}

type ThrottlingStatusPlugin interface {
	OnThrottled(partition NameAndPartition, retryAfter int64)
}

// PluginRegistry maps a configured name to a constructor. It is safe for
// concurrent use; registration typically happens once at process init
// and lookups happen per EventHubsConf use, per spec §6.
type PluginRegistry struct {
	mu                sync.RWMutex
	metricPlugins     map[string]func() MetricPlugin
	throttlingPlugins map[string]func() ThrottlingStatusPlugin
}

// NewPluginRegistry returns an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		metricPlugins:     map[string]func() MetricPlugin{},
		throttlingPlugins: map[string]func() ThrottlingStatusPlugin{},
	}
}

// RegisterMetricPlugin seeds the registry with a named MetricPlugin
// constructor.
func (r *PluginRegistry) RegisterMetricPlugin(name string, ctor func() MetricPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricPlugins[name] = ctor
}

// RegisterThrottlingStatusPlugin seeds the registry with a named
// ThrottlingStatusPlugin constructor.
func (r *PluginRegistry) RegisterThrottlingStatusPlugin(name string, ctor func() ThrottlingStatusPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttlingPlugins[name] = ctor
}

// MetricPlugin constructs the named plugin, or returns an error if no
// such name was registered.
func (r *PluginRegistry) MetricPlugin(name string) (MetricPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.metricPlugins[name]
	if !ok {
		return nil, fmt.Errorf("eventhubs: no metricPlugin registered under name %q", name)
	}
	return ctor(), nil
}

// ThrottlingStatusPlugin constructs the named plugin, or returns an error
// if no such name was registered.
func (r *PluginRegistry) ThrottlingStatusPlugin(name string) (ThrottlingStatusPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.throttlingPlugins[name]
	if !ok {
		return nil, fmt.Errorf("eventhubs: no throttlingStatusPlugin registered under name %q", name)
	}
	return ctor(), nil
}
