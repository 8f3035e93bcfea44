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

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const (
	helloTimeout = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Conn is one RTM websocket session. Recv must be called from a single
// goroutine; PostMessage and Ping may be called concurrently.
type Conn struct {
	ws      *websocket.Conn
	self    Self
	writeMu sync.Mutex
	nextID  atomic.Int64
	closed  atomic.Bool
	logger  *slog.Logger
}

// Dial opens the websocket at info.URL and waits for the hello frame. Any
// other first frame fails with ErrSession.
func Dial(ctx context.Context, info ConnectInfo, dialer *websocket.Dialer, logger *slog.Logger) (*Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	ws, _, err := dialer.DialContext(ctx, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rtm: %w", core.ErrSession, err)
	}
	c := &Conn{ws: ws, self: info.Self, logger: logger}

	deadline := time.Now().Add(helloTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)
	_, payload, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: waiting for hello: %w", core.ErrSession, err)
	}
	var first struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &first); err != nil || first.Type != core.EventTypeHello {
		ws.Close()
		return nil, fmt.Errorf("%w: expected hello, got %q", core.ErrSession, payload)
	}
	ws.SetReadDeadline(time.Time{})
	logger.Info("rtm session established", "self", info.Self.Name)
	return c, nil
}

func (c *Conn) Self() Self { return c.self }

// Recv blocks for the next frame. Frames that are not JSON objects return
// ErrMalformedEvent and the connection stays usable. A normal close
// returns io.EOF.
func (c *Conn) Recv(ctx context.Context) (core.Event, error) {
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return core.Event{}, ctx.Err()
		}
		if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return core.Event{}, io.EOF
		}
		return core.Event{}, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}

	var evt core.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return core.Event{}, fmt.Errorf("%w: %w", core.ErrMalformedEvent, err)
	}
	return evt, nil
}

func (c *Conn) PostMessage(ctx context.Context, channel, text string) error {
	return c.write(ctx, map[string]any{
		"type":    core.EventTypeMessage,
		"channel": channel,
		"text":    text,
	})
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.write(ctx, map[string]any{"type": "ping"})
}

func (c *Conn) write(ctx context.Context, frame map[string]any) error {
	frame["id"] = c.nextID.Add(1)
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %w", core.ErrTransport, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("%w: connection closed", core.ErrTransport)
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return nil
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("rtm close frame failed", "error", err)
	}
	return c.ws.Close()
}
