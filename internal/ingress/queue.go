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

package ingress

import (
	"context"
	"sync"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// Queue is an unbounded FIFO hand-off between one producer and one
// consumer. Push never blocks, so a slow dispatcher cannot stall the
// stream reader; the backlog grows instead.
type Queue struct {
	mu     sync.Mutex
	items  []core.Event
	closed bool
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		items:  make([]core.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push appends evt. It reports false once the queue is closed.
func (q *Queue) Push(evt core.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, evt)
	q.notify()
	return true
}

// Pop blocks until an event is available. After Close, remaining events
// are still drained before ErrQueueClosed is returned.
func (q *Queue) Pop(ctx context.Context) (core.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items[0] = core.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return evt, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return core.Event{}, core.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return core.Event{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// notify must be called with q.mu held.
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
