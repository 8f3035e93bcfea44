// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// Table holds outstanding waiters and persistent callbacks indexed by the
// canonical form of their key.
//
// OnEvent takes the table lock once to collect and unlink every matched
// waiter bucket, then resolves the waiters after releasing it. A waiter
// registered concurrently either lands before the lock is taken and is
// considered for the event, or after it is released and only sees later
// events.
type Table struct {
	mu        sync.Mutex
	waiters   map[string]*waiterBucket
	callbacks map[string]*callbackBucket
	logger    *slog.Logger
}

type waiterBucket struct {
	key     Key
	waiters []*Waiter
}

type callbackBucket struct {
	key  Key
	subs []*Subscription
}

func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		waiters:   make(map[string]*waiterBucket),
		callbacks: make(map[string]*callbackBucket),
		logger:    logger,
	}
}

// RegisterWaiter appends a single-shot waiter under key.
func (t *Table) RegisterWaiter(key Key) *Waiter {
	w := &Waiter{
		id:    uuid.New().String(),
		key:   key,
		table: t,
		done:  make(chan struct{}),
	}

	t.mu.Lock()
	b, ok := t.waiters[key.String()]
	if !ok {
		b = &waiterBucket{key: key}
		t.waiters[key.String()] = b
	}
	b.waiters = append(b.waiters, w)
	t.mu.Unlock()

	t.logger.Debug("waiter registered", "waiter_id", w.id, "key", key.String())
	return w
}

// RegisterCallback binds fn to key. fn runs on the goroutine calling
// OnEvent for every matching event until the subscription is cancelled, so
// it must not block.
func (t *Table) RegisterCallback(key Key, fn func(core.Event)) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback for key %s", core.ErrInvalidHandler, key)
	}
	s := &Subscription{id: uuid.New().String(), key: key, fn: fn, table: t}

	t.mu.Lock()
	b, ok := t.callbacks[key.String()]
	if !ok {
		b = &callbackBucket{key: key}
		t.callbacks[key.String()] = b
	}
	b.subs = append(b.subs, s)
	t.mu.Unlock()

	return s, nil
}

// OnEvent resolves every waiter whose key covers the event and invokes
// every matching callback. It returns the number of waiters resolved.
func (t *Table) OnEvent(evt core.Event) int {
	eventKey := KeyFromEvent(evt)

	var matched []*Waiter
	var subs []*Subscription

	t.mu.Lock()
	for idx, b := range t.waiters {
		if Covers(b.key, eventKey) {
			matched = append(matched, b.waiters...)
			delete(t.waiters, idx)
		}
	}
	for _, b := range t.callbacks {
		if Covers(b.key, eventKey) {
			subs = append(subs, b.subs...)
		}
	}
	t.mu.Unlock()

	resolved := 0
	for _, w := range matched {
		if w.resolve(evt) {
			resolved++
		}
	}
	for _, s := range subs {
		t.invoke(s, evt)
	}
	return resolved
}

func (t *Table) invoke(s *Subscription, evt core.Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("callback panic recovered", "subscription_id", s.id, "key", s.key.String(), "error", r)
		}
	}()
	s.fn(evt)
}

// Pending returns the number of waiters still registered.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.waiters {
		n += len(b.waiters)
	}
	return n
}

func (t *Table) removeWaiter(w *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := w.key.String()
	b, ok := t.waiters[idx]
	if !ok {
		return
	}
	for i, candidate := range b.waiters {
		if candidate == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			break
		}
	}
	if len(b.waiters) == 0 {
		delete(t.waiters, idx)
	}
}

func (t *Table) removeSubscription(s *Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := s.key.String()
	b, ok := t.callbacks[idx]
	if !ok {
		return false
	}
	for i, candidate := range b.subs {
		if candidate == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if len(b.subs) == 0 {
				delete(t.callbacks, idx)
			}
			return true
		}
	}
	return false
}

type waiterState int

const (
	waiterPending waiterState = iota
	waiterResolved
	waiterCancelled
)

// Waiter is a single-shot future resolved by the first matching event.
type Waiter struct {
	id    string
	key   Key
	table *Table

	mu    sync.Mutex
	state waiterState
	event core.Event
	done  chan struct{}
}

func (w *Waiter) ID() string { return w.id }

func (w *Waiter) Key() Key { return w.key }

// Done is closed once the waiter is resolved or cancelled.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Result returns the resolving event, if any.
func (w *Waiter) Result() (core.Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.event, w.state == waiterResolved
}

// Wait blocks until the waiter resolves, is cancelled, or ctx ends. When
// ctx ends first the waiter is cancelled.
func (w *Waiter) Wait(ctx context.Context) (core.Event, error) {
	select {
	case <-w.done:
	case <-ctx.Done():
		if w.Cancel() {
			return core.Event{}, fmt.Errorf("%w: %w", core.ErrWaiterCancelled, ctx.Err())
		}
	}
	if evt, ok := w.Result(); ok {
		return evt, nil
	}
	return core.Event{}, fmt.Errorf("%w: waiter=%s", core.ErrWaiterCancelled, w.id)
}

// Cancel unregisters a pending waiter. It reports false, and does nothing,
// when the waiter has already been resolved or cancelled.
func (w *Waiter) Cancel() bool {
	w.mu.Lock()
	if w.state != waiterPending {
		w.mu.Unlock()
		return false
	}
	w.state = waiterCancelled
	close(w.done)
	w.mu.Unlock()

	w.table.removeWaiter(w)
	w.table.logger.Debug("waiter cancelled", "waiter_id", w.id)
	return true
}

func (w *Waiter) resolve(evt core.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != waiterPending {
		return false
	}
	w.state = waiterResolved
	w.event = evt
	close(w.done)
	return true
}

// Subscription is a persistent callback registration.
type Subscription struct {
	id    string
	key   Key
	fn    func(core.Event)
	table *Table
}

func (s *Subscription) ID() string { return s.id }

// Cancel removes the callback. It reports whether it was still registered.
func (s *Subscription) Cancel() bool {
	return s.table.removeSubscription(s)
}
