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
	"os"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type scriptedStream struct {
	frames []any // core.Event or error
	block  bool
}

func (s *scriptedStream) Recv(ctx context.Context) (core.Event, error) {
	if len(s.frames) == 0 {
		if s.block {
			<-ctx.Done()
			return core.Event{}, ctx.Err()
		}
		return core.Event{}, io.EOF
	}
	next := s.frames[0]
	s.frames = s.frames[1:]
	if err, ok := next.(error); ok {
		return core.Event{}, err
	}
	return next.(core.Event), nil
}

func (s *scriptedStream) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func drain(t *testing.T, q *Queue) []core.Event {
	t.Helper()
	var out []core.Event
	for {
		evt, err := q.Pop(context.Background())
		if errors.Is(err, core.ErrQueueClosed) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected pop error: %v", err)
		}
		out = append(out, evt)
	}
}

func TestBridgePreservesOrderAndAppendsShutdown(t *testing.T) {
	stream := &scriptedStream{frames: []any{
		core.NewTextMessage("U1", "C1", "one"),
		core.NewTextMessage("U1", "C1", "two"),
		core.NewTextMessage("U2", "C1", "three"),
	}}
	q := NewQueue()
	if err := NewBridge(stream, q, testLogger(), nil).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, q)
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Text() != want {
			t.Fatalf("event %d: expected %q, got %q", i, want, got[i].Text())
		}
	}
	if !got[3].IsShutdown() {
		t.Fatalf("expected shutdown sentinel last, got %q", got[3].Type())
	}
}

func TestBridgeSkipsMalformedFrames(t *testing.T) {
	stream := &scriptedStream{frames: []any{
		fmt.Errorf("%w: bad json", core.ErrMalformedEvent),
		core.NewEvent(map[string]any{"user": "U1"}),
		core.NewEvent(map[string]any{"type": core.EventTypeShutdown}),
		core.NewTextMessage("U1", "C1", "ok"),
	}}
	q := NewQueue()
	if err := NewBridge(stream, q, testLogger(), nil).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, q)
	if len(got) != 2 || got[0].Text() != "ok" || !got[1].IsShutdown() {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestBridgeFatalErrorStillSignalsShutdown(t *testing.T) {
	stream := &scriptedStream{frames: []any{errors.New("connection reset")}}
	q := NewQueue()
	err := NewBridge(stream, q, testLogger(), nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	got := drain(t, q)
	if len(got) != 1 || !got[0].IsShutdown() {
		t.Fatalf("expected only shutdown sentinel, got %v", got)
	}
}

func TestBridgeStopsOnContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBridge(&scriptedStream{block: true}, q, testLogger(), nil).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
	if got := drain(t, q); len(got) != 1 || !got[0].IsShutdown() {
		t.Fatalf("expected shutdown sentinel, got %v", got)
	}
}
