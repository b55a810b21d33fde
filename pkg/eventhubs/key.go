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
)

// NameAndPartition identifies one partition of one event hub.
type NameAndPartition struct {
	EventHubName string
	PartitionID  int
}

// String returns the stable "<name>-<id>" identifier.
func (n NameAndPartition) String() string {
	return fmt.Sprintf("%s-%d", n.EventHubName, n.PartitionID)
}

// partitionIDString is the wire-level partition identifier the SDK wants
// (a decimal string).
func (n NameAndPartition) partitionIDString() string {
	return strconv.Itoa(n.PartitionID)
}

// ReceiverKey uniquely identifies one live reader per worker: the
// lowercased concatenation of connection string, consumer group, and
// partition ID, per spec §3.
type ReceiverKey string

func newReceiverKey(connectionString, consumerGroup string, partitionID int) ReceiverKey {
	raw := connectionString + consumerGroup + strconv.Itoa(partitionID)
	return ReceiverKey(strings.ToLower(raw))
}
