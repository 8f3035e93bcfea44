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

// Package hub fans encoded audit records out to live HTTP subscribers.
package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Hub delivers each broadcast to every subscriber. A subscriber whose
// buffer is full misses the message rather than blocking the others.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan []byte
	buffer int
	closed bool
}

func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]chan []byte), buffer: buffer}
}

// Subscribe returns the subscriber id, its channel and a cancel func. The
// channel is closed on cancel or when the hub closes.
func (h *Hub) Subscribe() (string, <-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New().String()
	ch := make(chan []byte, h.buffer)
	if h.closed {
		close(ch)
		return id, ch, func() {}
	}
	h.subs[id] = ch
	return id, ch, func() { h.remove(id) }
}

// Broadcast returns how many subscribers received data.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ch := range h.subs {
		select {
		case ch <- data:
			n++
		default:
		}
	}
	return n
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}
