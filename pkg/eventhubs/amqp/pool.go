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
	"sync"
)

// ConnectionPool lends and returns an AMQP Client keyed by connection
// identity. Borrow is idempotent per key: repeated borrows of the same
// key return the same underlying Client, reference-counted, and the
// connection is torn down only once the last borrower returns it (or a
// borrower explicitly forces a close after a fatal transport error).
//
// This is the "ConnectionPool (external collaborator)" of spec §2: in the
// surrounding compute framework it would be shared by every task on the
// worker; here it is a self-contained, process-local implementation since
// no broader collaborator is specified.
type ConnectionPool interface {
	Borrow(ctx context.Context, key ClientKey) (Client, error)
	Return(key ClientKey, forceClose bool)
}

type poolEntry struct {
	client Client
	refs   int
}

// Pool is a reference-counted ConnectionPool. Its mutex guards only map
// bookkeeping; the factory call and any Close are made outside the lock,
// per spec §5 ("never held across I/O").
type Pool struct {
	factory ClientFactory

	mu      sync.Mutex
	entries map[string]*poolEntry
}

// NewPool builds a Pool that creates new clients with factory.
func NewPool(factory ClientFactory) *Pool {
	return &Pool{factory: factory, entries: map[string]*poolEntry{}}
}

func (p *Pool) Borrow(ctx context.Context, key ClientKey) (Client, error) {
	cacheKey := key.cacheKey()

	p.mu.Lock()
	if e, ok := p.entries[cacheKey]; ok {
		e.refs++
		p.mu.Unlock()
		return e.client, nil
	}
	p.mu.Unlock()

	client, err := p.factory(ctx, key)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[cacheKey]; ok {
		// Lost the race with a concurrent Borrow for the same key; keep the
		// winner, discard the client we just built.
		e.refs++
		go client.Close(context.Background()) //nolint:errcheck
		return e.client, nil
	}
	p.entries[cacheKey] = &poolEntry{client: client, refs: 1}
	return client, nil
}

func (p *Pool) Return(key ClientKey, forceClose bool) {
	cacheKey := key.cacheKey()

	p.mu.Lock()
	e, ok := p.entries[cacheKey]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.refs--
	remove := forceClose || e.refs <= 0
	if remove {
		delete(p.entries, cacheKey)
	}
	p.mu.Unlock()

	if remove {
		_ = e.client.Close(context.Background())
	}
}
