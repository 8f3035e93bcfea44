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

// Package sse streams audit records to HTTP clients as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/internal/hub"
)

type Sink struct {
	name   string
	addr   string
	hub    *hub.Hub
	server *http.Server
	ln     net.Listener
	logger *slog.Logger
}

func New(name, addr string, logger *slog.Logger) *Sink {
	return &Sink{name: name, addr: addr, hub: hub.New(0), logger: logger}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "sse" }

// Addr is the bound listen address, valid after Connect.
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
		return fmt.Errorf("sse listen %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleSSE)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("sse server failed", "name", s.name, "error", err)
		}
	}()
	s.logger.Info("sse sink listening", "name", s.name, "addr", s.Addr())
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.hub.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	frame := fmt.Appendf(nil, "id: %s\nevent: %s\ndata: %s\n\n", rec.ID, rec.Kind, data)
	s.hub.Broadcast(frame)
	return nil
}

func (s *Sink) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID, frames, cancel := s.hub.Subscribe()
	defer func() {
		cancel()
		s.logger.Info("sse client disconnected", "client_id", clientID)
	}()
	s.logger.Info("sse client connected", "client_id", clientID)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
