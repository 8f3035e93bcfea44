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

// Package httpget keeps recent audit records in memory and serves them
// over HTTP.
package httpget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const DefaultLimit = 100

type Sink struct {
	name   string
	addr   string
	limit  int
	server *http.Server
	ln     net.Listener
	logger *slog.Logger

	mu      sync.RWMutex
	records []core.AuditRecord // oldest first, at most limit entries
}

func New(name, addr string, limit int, logger *slog.Logger) *Sink {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Sink{name: name, addr: addr, limit: limit, logger: logger}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "http_get" }

func (s *Sink) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Sink) Connect(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http_get listen %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /audit", s.handleGet)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http_get server failed", "name", s.name, "error", err)
		}
	}()
	s.logger.Info("http_get sink listening", "name", s.name, "addr", s.Addr())
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if over := len(s.records) - s.limit; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return nil
}

// Recent returns up to n records, newest first, optionally filtered by user.
func (s *Sink) Recent(n int, user string) []core.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AuditRecord, 0, min(n, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		if user != "" && s.records[i].User != user {
			continue
		}
		out = append(out, s.records[i])
	}
	return out
}

func (s *Sink) handleGet(w http.ResponseWriter, r *http.Request) {
	n := s.limit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		n = min(parsed, s.limit)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Recent(n, r.URL.Query().Get("user"))); err != nil {
		s.logger.Error("http_get encode failed", "error", err)
	}
}
