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
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
)

type recordingEndpoint struct {
	mu   sync.Mutex
	sent []PartitionPerformanceMetric
	err  error
}

func (e *recordingEndpoint) Send(_ context.Context, endpoint string, metric PartitionPerformanceMetric) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, metric)
	return e.err
}

func (e *recordingEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

func TestPerfReporterSendsWhenEnabled(t *testing.T) {
	endpoint := &recordingEndpoint{}
	reporter := NewPerfReporter(endpoint, true, logr.Discard())

	reporter.Report(context.Background(), PartitionPerformanceMetric{BatchStartSeq: 0, BatchCount: 10})

	assert.Eventually(t, func() bool { return endpoint.count() == 1 }, time.Second, time.Millisecond)
}

func TestPerfReporterNoopWhenDisabled(t *testing.T) {
	endpoint := &recordingEndpoint{}
	reporter := NewPerfReporter(endpoint, false, logr.Discard())

	reporter.Report(context.Background(), PartitionPerformanceMetric{})

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, endpoint.count())
}

func TestPerfReporterSendFailureIsSwallowed(t *testing.T) {
	endpoint := &recordingEndpoint{err: errors.New("send failed")}
	reporter := NewPerfReporter(endpoint, true, logr.Discard())

	reporter.Report(context.Background(), PartitionPerformanceMetric{})

	assert.Eventually(t, func() bool { return endpoint.count() == 1 }, time.Second, time.Millisecond)
}
