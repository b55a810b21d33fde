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

// Package eventhubs is a per-worker cached receiver for an Azure Event
// Hubs partition, used inside a distributed batch/streaming compute
// framework. For each (connection, consumer group, partition) key it
// keeps a long-lived AMQP partition reader whose cursor is reused across
// successive micro-batches, avoiding reconnection cost and letting the
// service prefetch ahead of the batch boundary.
//
// ReceiverCache is the package's entry point; it owns one CursorEngine
// per partition, which in turn drives one amqp.PartitionReader.
package eventhubs
