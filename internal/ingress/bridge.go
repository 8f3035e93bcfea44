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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wso2/api-platform/gateway/command-bot/internal/logging"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// Bridge owns the blocking read loop on the receive stream and forwards
// every event, in arrival order, onto the hand-off queue.
type Bridge struct {
	stream   core.Stream
	queue    *Queue
	logger   *slog.Logger
	eventLog *logging.EventLogger
}

func NewBridge(stream core.Stream, queue *Queue, logger *slog.Logger, eventLog *logging.EventLogger) *Bridge {
	return &Bridge{
		stream:   stream,
		queue:    queue,
		logger:   logger,
		eventLog: eventLog,
	}
}

// Run reads until the stream closes, fails, or ctx is cancelled. It always
// leaves a shutdown event at the tail of the queue and closes it, so the
// consumer terminates.
func (b *Bridge) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("ingress panic recovered", "error", r)
			err = fmt.Errorf("%w: ingress panic: %v", core.ErrSession, r)
		}
		b.queue.Push(core.ShutdownEvent())
		b.queue.Close()
		b.logger.Info("ingress stopped", "backlog", b.queue.Len())
	}()

	for {
		evt, err := b.stream.Recv(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, core.ErrMalformedEvent):
				b.logger.Warn("skipping malformed frame", "error", err)
				continue
			case errors.Is(err, io.EOF):
				b.logger.Info("stream closed by peer")
				return nil
			default:
				return fmt.Errorf("ingress read: %w", err)
			}
		}

		if evt.Type() == "" {
			b.logger.Warn("skipping event without type", "error", core.ErrMalformedEvent)
			continue
		}
		if evt.IsShutdown() {
			// A peer cannot inject the local shutdown sentinel.
			b.logger.Warn("ignoring shutdown frame from stream")
			continue
		}

		if b.eventLog != nil {
			b.eventLog.Log(evt, "ingress")
		}
		if !b.queue.Push(evt) {
			return nil
		}
	}
}
