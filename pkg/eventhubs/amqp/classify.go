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
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	amqpwire "github.com/Azure/go-amqp"
)

// reactorClosedSubstring is the message fragment the Java/Scala SDK (and
// its underlying reactor dispatcher) uses when the I/O reactor thread has
// been torn down out from under a caller. Detecting it by substring is
// fragile by nature; it is isolated here behind IsReactorClosed so the
// predicate can be retuned without touching call sites.
const reactorClosedSubstring = "ReactorDispatcher instance is closed"

// IsReactorClosed reports whether err is the nested rejected-execution
// failure that means the whole AMQP reactor — not just one link — has
// gone away. The cache recovers from this by rebuilding the entire
// CursorEngine rather than just recreating the PartitionReader.
func IsReactorClosed(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), reactorClosedSubstring)
}

// IsReceiverDisconnected reports whether err means another exclusive
// receiver stole the link (the SDK's ownership-lost condition).
func IsReceiverDisconnected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReceiverDisconnected) {
		return true
	}
	var ehErr *azeventhubs.Error
	if errors.As(err, &ehErr) {
		return ehErr.Code == azeventhubs.ErrorCodeOwnershipLost
	}
	return false
}

// IsThrottled reports whether err is the service pushing back with a
// resource-limit/busy condition, as opposed to a plain connection drop.
// CursorEngine uses this to notify a configured ThrottlingStatusPlugin
// without changing the error's retry classification.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	var amqpErr *amqpwire.Error
	if errors.As(err, &amqpErr) && amqpErr.Condition == amqpwire.ErrCondResourceLimitExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "server busy") || strings.Contains(msg, "server-busy")
}

// IsTransient reports whether err is a transient SDK failure that
// RetryPolicy.RetryOnError should retry: transport timeouts, a busy
// server, or a detached-but-recoverable AMQP link. Authentication
// failures, ownership-lost, and illegal-argument errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if IsReceiverDisconnected(err) {
		return false
	}

	var ehErr *azeventhubs.Error
	if errors.As(err, &ehErr) {
		switch ehErr.Code {
		case azeventhubs.ErrorCodeOwnershipLost:
			return false
		case azeventhubs.ErrorCodeConnectionLost,
			azeventhubs.ErrorCodeUnauthorizedAccess:
			// Connection loss is transient (reconnect and retry);
			// unauthorized access is terminal. Other codes fall through
			// to the condition and substring checks below, since the
			// SDK also surfaces plain link-detached errors without this
			// type for busy/timeout conditions.
			return ehErr.Code == azeventhubs.ErrorCodeConnectionLost
		}
	}

	var amqpErr *amqpwire.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Condition {
		case amqpwire.ErrCondResourceLimitExceeded, amqpwire.ErrCondConnectionForced:
			return true
		}
	}

	msg := err.Error()
	for _, needle := range []string{"timeout", "server busy", "server-busy", "temporarily unavailable", "eof"} {
		if strings.Contains(strings.ToLower(msg), needle) {
			return true
		}
	}
	return false
}
