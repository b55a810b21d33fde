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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventHubsConfDefaults(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"connectionString": "Endpoint=sb://test/;EntityPath=test",
	})

	assert.Equal(t, "$Default", conf.ConsumerGroup())
	assert.Equal(t, 60*time.Second, conf.ReceiverTimeout())
	assert.Equal(t, 5*time.Minute, conf.OperationTimeout())
	assert.Equal(t, 500, conf.PrefetchCount())
	assert.False(t, conf.UseExclusiveReceiver())
	assert.False(t, conf.SlowPartitionAdjustment())
	assert.NoError(t, conf.Validate())
}

func TestEventHubsConfKeysAreCaseInsensitive(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"CONNECTIONSTRING": "Endpoint=sb://test/;EntityPath=test",
		"ConsumerGroup":    "mygroup",
	})
	assert.Equal(t, "mygroup", conf.ConsumerGroup())
}

func TestEventHubsConfValidateRequiresConnectionStringOrAad(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{})
	assert.ErrorIs(t, conf.Validate(), ErrConfiguration)
}

func TestEventHubsConfValidateRequiresEntityPath(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"connectionString": "Endpoint=sb://test/",
	})
	assert.ErrorIs(t, conf.Validate(), ErrConfiguration)
}

func TestEventHubsConfValidateReceiverTimeoutMustNotExceedOperationTimeout(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"connectionString": "Endpoint=sb://test/;EntityPath=test",
		"receiverTimeout":  "10m",
		"operationTimeout": "5m",
	})
	assert.ErrorIs(t, conf.Validate(), ErrConfiguration)
}

func TestEventHubsConfValidatePrefetchCountRange(t *testing.T) {
	for _, v := range []string{"1", "1000"} {
		conf := NewEventHubsConf(map[string]string{
			"connectionString": "Endpoint=sb://test/;EntityPath=test",
			"prefetchCount":    v,
		})
		assert.ErrorIs(t, conf.Validate(), ErrConfiguration, "prefetchCount=%s should be rejected", v)
	}
}

func TestEventHubsConfValidateAadRequiresNamespaceAndEventHubName(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"useAadAuth": "true",
	})
	assert.ErrorIs(t, conf.Validate(), ErrConfiguration)

	conf = NewEventHubsConf(map[string]string{
		"useAadAuth":   "true",
		"namespace":    "myns",
		"eventHubName": "myhub",
	})
	assert.NoError(t, conf.Validate())
}

func TestEventHubsConfDurationAcceptsPlainSeconds(t *testing.T) {
	conf := NewEventHubsConf(map[string]string{
		"connectionString": "Endpoint=sb://test/;EntityPath=test",
		"maxSilentTime":    "30",
	})
	assert.Equal(t, 30*time.Second, conf.MaxSilentTime())
}
