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

	"github.com/go-logr/logr"
)

// PartitionPerformanceMetric is the one-way message reported to the
// driver after a successful batch, per spec §4.5/§6.
type PartitionPerformanceMetric struct {
	Partition      NameAndPartition
	TaskContext    string
	BatchStartSeq  int64
	BatchCount     int
	ElapsedMillis  int64
}

// DriverEndpoint is the driver RPC handle this core needs: a one-way send
// to the well-known "PartitionPerformanceReceiver" endpoint, per spec
// §6. The surrounding compute framework's RPC transport implements it;
// this core only ever calls Send.
type DriverEndpoint interface {
	Send(ctx context.Context, endpoint string, metric PartitionPerformanceMetric) error
}

// DriverEndpointName is the well-known destination for perf metrics.
const DriverEndpointName = "PartitionPerformanceReceiver"

// PerfReporter fires PartitionPerformanceMetric messages at the driver
// when enabled by the slowPartitionAdjustment option. Send failures are
// logged at error level and otherwise ignored — the core never blocks on
// or reads the driver's response, per spec §4.5.
type PerfReporter struct {
	endpoint DriverEndpoint
	enabled  bool
	logger   logr.Logger
}

// NewPerfReporter builds a reporter. If enabled is false, Report is a
// no-op regardless of endpoint.
func NewPerfReporter(endpoint DriverEndpoint, enabled bool, logger logr.Logger) *PerfReporter {
	return &PerfReporter{endpoint: endpoint, enabled: enabled, logger: logger}
}

// Report fires a metric asynchronously (fire-and-forget): the method
// returns immediately, and any send failure is only logged.
func (p *PerfReporter) Report(ctx context.Context, metric PartitionPerformanceMetric) {
	if !p.enabled || p.endpoint == nil {
		return
	}
	go func() {
		if err := p.endpoint.Send(ctx, DriverEndpointName, metric); err != nil {
			p.logger.Error(err, "failed to report partition performance metric",
				"partition", metric.Partition.String(), "batchStartSeq", metric.BatchStartSeq, "batchCount", metric.BatchCount)
		}
	}()
}
