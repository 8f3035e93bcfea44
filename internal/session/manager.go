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

// Package session owns the chat sessions the bot runs on. Receiving and
// sending use separate RTM connections so a slow send never stalls the
// ingress read loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/slack"
)

// Connector opens one RTM session.
type Connector interface {
	Open(ctx context.Context) (Conn, error)
}

// Conn is an open RTM session.
type Conn interface {
	core.Stream
	core.Poster
	Ping(ctx context.Context) error
}

// SlackConnector dials RTM sessions through rtm.connect.
type SlackConnector struct {
	Client *slack.Client
	Logger *slog.Logger
}

func (s SlackConnector) Open(ctx context.Context) (Conn, error) {
	info, err := s.Client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := slack.Dial(ctx, info, nil, s.Logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Manager struct {
	connector Connector
	logger    *slog.Logger

	mu        sync.Mutex
	recv      Conn
	send      Conn
	stopDrain context.CancelFunc
	draining  sync.WaitGroup
}

func NewManager(connector Connector, logger *slog.Logger) *Manager {
	return &Manager{connector: connector, logger: logger}
}

// Open establishes the receiving session and then the sending session.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recv != nil {
		return fmt.Errorf("%w: already open", core.ErrSession)
	}

	recv, err := m.connector.Open(ctx)
	if err != nil {
		return err
	}
	send, err := m.connector.Open(ctx)
	if err != nil {
		recv.Close()
		return err
	}
	m.recv, m.send = recv, send
	m.startDrain(send)
	m.logger.Info("chat sessions opened")
	return nil
}

// Stream returns the receiving session. It is nil before Open.
func (m *Manager) Stream() core.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recv
}

// PostMessage sends on the sending session. A transport failure replaces
// the sending session once and retries.
func (m *Manager) PostMessage(ctx context.Context, channel, text string) error {
	send, err := m.sender()
	if err != nil {
		return err
	}
	err = send.PostMessage(ctx, channel, text)
	if err == nil || !errors.Is(err, core.ErrTransport) {
		return err
	}

	m.logger.Warn("send session failed, reconnecting", "error", err)
	send, rerr := m.reconnectSender(ctx, send)
	if rerr != nil {
		return fmt.Errorf("%w (reconnect: %v)", err, rerr)
	}
	return send.PostMessage(ctx, channel, text)
}

// Keepalive pings the sending session every interval until ctx ends.
// Failed pings trigger a reconnect of that session only.
func (m *Manager) Keepalive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send, err := m.sender()
			if err != nil {
				return
			}
			if err := send.Ping(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("keepalive ping failed", "error", err)
				if _, err := m.reconnectSender(ctx, send); err != nil {
					m.logger.Error("send session reconnect failed", "error", err)
				}
			}
		}
	}
}

func (m *Manager) Close() error {
	m.mu.Lock()
	var errs []error
	for _, c := range []Conn{m.recv, m.send} {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	m.recv, m.send = nil, nil
	if m.stopDrain != nil {
		m.stopDrain()
		m.stopDrain = nil
	}
	m.mu.Unlock()

	m.draining.Wait()
	m.logger.Info("chat sessions closed")
	return errors.Join(errs...)
}

func (m *Manager) sender() (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.send == nil {
		return nil, fmt.Errorf("%w: session not open", core.ErrTransport)
	}
	return m.send, nil
}

func (m *Manager) isSender(c Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send == c
}

// reconnectSender swaps in a new sending session unless another caller
// already replaced failed.
func (m *Manager) reconnectSender(ctx context.Context, failed Conn) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.send == nil {
		return nil, fmt.Errorf("%w: session closed", core.ErrTransport)
	}
	if m.send != failed {
		return m.send, nil
	}
	next, err := m.connector.Open(ctx)
	if err != nil {
		return nil, err
	}
	failed.Close()
	m.send = next
	m.startDrain(next)
	m.logger.Info("send session replaced")
	return next, nil
}

// startDrain reads and discards everything arriving on the sending session
// so the websocket keeps answering pings and close frames. A read failure
// on the current sending session replaces it. Callers hold m.mu.
func (m *Manager) startDrain(send Conn) {
	if m.stopDrain != nil {
		m.stopDrain()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopDrain = cancel

	m.draining.Add(1)
	go func() {
		defer m.draining.Done()
		for {
			_, err := send.Recv(ctx)
			if err == nil || errors.Is(err, core.ErrMalformedEvent) {
				continue
			}
			if ctx.Err() != nil || !m.isSender(send) {
				return
			}
			m.logger.Warn("send session read failed, reconnecting", "error", err)
			if _, err := m.reconnectSender(ctx, send); err != nil && ctx.Err() == nil {
				m.logger.Error("send session reconnect failed", "error", err)
			}
			return
		}
	}()
}
