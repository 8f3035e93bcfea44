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

package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const (
	DefaultBacklog = 256
	publishTimeout = 5 * time.Second
)

// Registry holds the configured audit sinks and fans records out to the
// healthy ones from a single background worker.
type Registry struct {
	sinks   map[string]core.Sink
	healthy map[string]bool
	logger  *slog.Logger
	mu      sync.RWMutex

	records chan core.AuditRecord
	dropped int
	dropMu  sync.Mutex
}

func NewRegistry(logger *slog.Logger, backlog int) *Registry {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Registry{
		sinks:   make(map[string]core.Sink),
		healthy: make(map[string]bool),
		logger:  logger,
		records: make(chan core.AuditRecord, backlog),
	}
}

func (r *Registry) Register(s core.Sink) {
	r.mu.Lock()
	r.sinks[s.Name()] = s
	r.mu.Unlock()
	r.logger.Info("registered sink", "name", s.Name(), "type", s.Type())
}

func (r *Registry) Sink(name string) (core.Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	if !ok {
		return nil, fmt.Errorf("%w: name=%s", core.ErrSinkNotFound, name)
	}
	return s, nil
}

// Names returns the registered sink names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for n := range r.sinks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConnectAll connects every sink and returns how many succeeded. Failed
// sinks are marked unhealthy and skipped by Publish.
func (r *Registry) ConnectAll(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	connected := 0
	for name, s := range r.sinks {
		if err := s.Connect(ctx); err != nil {
			r.logger.Error("sink connect failed", "name", name, "error", err)
			r.healthy[name] = false
		} else {
			r.healthy[name] = true
			connected++
		}
	}
	return connected
}

func (r *Registry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthy[name]
}

// Publish queues rec for delivery. It never blocks; records beyond the
// backlog are dropped and counted.
func (r *Registry) Publish(_ context.Context, rec core.AuditRecord) {
	select {
	case r.records <- rec:
	default:
		r.dropMu.Lock()
		r.dropped++
		n := r.dropped
		r.dropMu.Unlock()
		r.logger.Warn("audit backlog full, dropping record", "id", rec.ID, "dropped", n)
	}
}

func (r *Registry) Dropped() int {
	r.dropMu.Lock()
	defer r.dropMu.Unlock()
	return r.dropped
}

// Run delivers queued records until ctx is done, then flushes what is
// already queued.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case rec := <-r.records:
			r.deliver(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.records:
					r.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) deliver(rec core.AuditRecord) {
	r.mu.RLock()
	targets := make([]core.Sink, 0, len(r.sinks))
	for name, s := range r.sinks {
		if r.healthy[name] {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("sink panic recovered", "name", s.Name(), "error", p)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := s.Publish(ctx, rec); err != nil {
				r.logger.Warn("sink publish failed", "name", s.Name(), "id", rec.ID, "error", err)
			}
		}()
	}
}

func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.sinks {
		r.logger.Info("stopping sink", "name", name)
		if err := s.Disconnect(ctx); err != nil {
			r.logger.Warn("sink disconnect failed", "name", name, "error", err)
		}
	}
}
