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

// Package retry wraps one-shot asynchronous SDK operations with a capped
// retry loop, per spec §4.2. Two variants are exposed: RetryOnError
// (retry on transient errors, distinguished by a caller-supplied
// predicate) and RetryWhileNull (retry while the result is the zero
// value). Both honor a wall-clock operation budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// ErrOperationTimeout is returned when the wall-clock operation budget is
// exhausted before the operation succeeds.
var ErrOperationTimeout = errors.New("retry: operation timeout")

// Policy carries the budget and pacing shared by every SDK call a
// CursorEngine makes: it must not run longer than OperationTimeout in
// total, and between attempts it waits WaitInterval, up to MaxAttempts
// tries for RetryWhileNull (RetryOnError is bounded purely by the wall
// clock, since transient-error backoff already paces itself).
type Policy struct {
	OperationTimeout time.Duration
	WaitInterval     time.Duration
	MaxAttempts      int
	Logger           logr.Logger
}

// IsTransient classifies err as retryable. Supplied by the caller (the
// amqp package's IsTransient) so this package stays independent of any
// particular SDK's error taxonomy.
type IsTransient func(err error) bool

// RetryOnError retries op while isTransient(err) is true, up to the wall
// clock budget OperationTimeout, backing off at a constant WaitInterval
// between attempts. A terminal (non-transient) error fails immediately.
// If replaceWith is non-nil and the budget exhausts on transient errors
// only, its value is returned instead of failing — used by Close(),
// which must not itself be retried into a caller-visible failure.
func RetryOnError[T any](ctx context.Context, p Policy, label string, isTransient IsTransient, op func(ctx context.Context) (T, error), replaceWith *T) (T, error) {
	var zero T
	cctx, cancel := context.WithTimeout(ctx, p.OperationTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(p.WaitInterval), cctx)

	var result T
	var terminal error
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		result, err = op(cctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			terminal = err
			return backoff.Permanent(err)
		}
		p.Logger.V(1).Info("retrying after transient error", "op", label, "attempt", attempt, "error", err.Error())
		return err
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		p.Logger.V(1).Info("backing off", "op", label, "wait", wait.String())
	})
	if err == nil {
		return result, nil
	}

	if terminal != nil {
		p.Logger.Error(terminal, "operation failed with a terminal error", "op", label, "attempt", attempt)
		return zero, terminal
	}

	if replaceWith != nil {
		p.Logger.Info("operation timed out on transient errors, using fallback value", "op", label, "attempts", attempt)
		return *replaceWith, nil
	}
	return zero, fmt.Errorf("%w: %s after %d attempts: %w", ErrOperationTimeout, label, attempt, err)
}

// RetryWhileNull retries op while it returns the zero value for T (with a
// nil error) up to MaxAttempts times, spaced by WaitInterval, bounded by
// OperationTimeout. A non-nil error from op is never retried by this
// variant; it is returned at once, and a caller that wants transient
// errors retried wraps this call in RetryOnError.
func RetryWhileNull[T comparable](ctx context.Context, p Policy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cctx, cancel := context.WithTimeout(ctx, p.OperationTimeout)
	defer cancel()

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(cctx)
		if err != nil {
			return zero, err
		}
		if result != zero {
			return result, nil
		}
		p.Logger.V(1).Info("retrying after null result", "op", label, "attempt", attempt)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-cctx.Done():
			return zero, fmt.Errorf("%w: %s after %d attempts", ErrOperationTimeout, label, attempt)
		case <-time.After(p.WaitInterval):
		}
	}
	return zero, fmt.Errorf("%w: %s exhausted %d attempts with a null result", ErrOperationTimeout, label, maxAttempts)
}
