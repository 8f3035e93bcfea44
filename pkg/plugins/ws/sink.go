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

// Package ws pushes audit records to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/internal/hub"
)

const writeWait = 10 * time.Second

type Sink struct {
	name     string
	addr     string
	upgrader websocket.Upgrader
	hub      *hub.Hub
	server   *http.Server
	ln       net.Listener
	logger   *slog.Logger
}

func New(name, addr string, logger *slog.Logger) *Sink {
	return &Sink{
		name: name,
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:    hub.New(0),
		logger: logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "websocket" }

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
		return fmt.Errorf("websocket listen %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnection)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server failed", "name", s.name, "error", err)
		}
	}()
	s.logger.Info("websocket sink listening", "name", s.name, "addr", s.Addr())
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
	s.hub.Broadcast(data)
	return nil
}

// Subscribers is the number of connected clients.
func (s *Sink) Subscribers() int { return s.hub.Len() }

func (s *Sink) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", "error", err)
		return
	}

	clientID, frames, cancel := s.hub.Subscribe()
	defer func() {
		cancel()
		conn.Close()
		s.logger.Info("ws client disconnected", "client_id", clientID)
	}()
	s.logger.Info("ws client connected", "client_id", clientID)

	// Clients only listen; reading detects their close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case data, ok := <-frames:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Error("ws write failed", "client_id", clientID, "error", err)
				return
			}
		}
	}
}
