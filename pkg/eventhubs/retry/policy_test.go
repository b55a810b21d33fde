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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		OperationTimeout: 500 * time.Millisecond,
		WaitInterval:     5 * time.Millisecond,
		MaxAttempts:      5,
		Logger:           logr.Discard(),
	}
}

var errTransient = errors.New("transient")
var errTerminal = errors.New("terminal")

func alwaysTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetryOnErrorSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := RetryOnError(context.Background(), testPolicy(), "op", alwaysTransient, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errTransient
		}
		return 42, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryOnErrorFailsFastOnTerminalError(t *testing.T) {
	attempts := 0
	_, err := RetryOnError(context.Background(), testPolicy(), "op", alwaysTransient, func(context.Context) (int, error) {
		attempts++
		return 0, errTerminal
	}, nil)
	assert.ErrorIs(t, err, errTerminal)
	assert.Equal(t, 1, attempts)
}

func TestRetryOnErrorUsesFallbackOnTimeout(t *testing.T) {
	fallback := 7
	p := testPolicy()
	p.OperationTimeout = 30 * time.Millisecond
	result, err := RetryOnError(context.Background(), p, "op", alwaysTransient, func(context.Context) (int, error) {
		return 0, errTransient
	}, &fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, result)
}

func TestRetryOnErrorFailsWithoutFallbackOnTimeout(t *testing.T) {
	p := testPolicy()
	p.OperationTimeout = 30 * time.Millisecond
	_, err := RetryOnError(context.Background(), p, "op", alwaysTransient, func(context.Context) (int, error) {
		return 0, errTransient
	}, nil)
	assert.ErrorIs(t, err, ErrOperationTimeout)
}

func TestRetryWhileNullRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	p := testPolicy()
	result, err := RetryWhileNull(context.Background(), p, "op", func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", nil
		}
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, 2, attempts)
}

func TestRetryWhileNullExhaustsAttempts(t *testing.T) {
	p := testPolicy()
	p.MaxAttempts = 3
	attempts := 0
	_, err := RetryWhileNull(context.Background(), p, "op", func(context.Context) (string, error) {
		attempts++
		return "", nil
	})
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.Equal(t, 3, attempts)
}

func TestRetryWhileNullPropagatesError(t *testing.T) {
	_, err := RetryWhileNull(context.Background(), testPolicy(), "op", func(context.Context) (string, error) {
		return "", errTerminal
	})
	assert.ErrorIs(t, err, errTerminal)
}
