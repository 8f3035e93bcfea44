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
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type mockSink struct {
	name       string
	connectErr error
	publishErr error
	panicOn    bool
	mu         sync.Mutex
	got        []core.AuditRecord
	stopped    bool
}

func (m *mockSink) Name() string { return m.name }
func (m *mockSink) Type() string { return "mock" }

func (m *mockSink) Connect(context.Context) error { return m.connectErr }

func (m *mockSink) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockSink) Publish(_ context.Context, rec core.AuditRecord) error {
	if m.panicOn {
		panic("sink exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, rec)
	return m.publishErr
}

func (m *mockSink) records() []core.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AuditRecord(nil), m.got...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestConnectAllMarksHealth(t *testing.T) {
	reg := NewRegistry(testLogger(), 0)
	reg.Register(&mockSink{name: "good"})
	reg.Register(&mockSink{name: "bad", connectErr: errors.New("refused")})

	if n := reg.ConnectAll(context.Background()); n != 1 {
		t.Fatalf("expected 1 connected sink, got %d", n)
	}
	if !reg.IsHealthy("good") {
		t.Fatal("expected good sink healthy")
	}
	if reg.IsHealthy("bad") {
		t.Fatal("expected bad sink unhealthy")
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "bad" || names[1] != "good" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestSinkLookup(t *testing.T) {
	reg := NewRegistry(testLogger(), 0)
	reg.Register(&mockSink{name: "kafka-audit"})
	if _, err := reg.Sink("kafka-audit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Sink("missing"); !errors.Is(err, core.ErrSinkNotFound) {
		t.Fatalf("expected ErrSinkNotFound, got %v", err)
	}
}

func TestPublishFansOutToHealthySinks(t *testing.T) {
	reg := NewRegistry(testLogger(), 0)
	good := &mockSink{name: "good"}
	failing := &mockSink{name: "failing", publishErr: errors.New("broker down")}
	exploding := &mockSink{name: "exploding", panicOn: true}
	bad := &mockSink{name: "bad", connectErr: errors.New("refused")}
	for _, s := range []*mockSink{good, failing, exploding, bad} {
		reg.Register(s)
	}
	reg.ConnectAll(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	reg.Publish(ctx, core.AuditRecord{ID: "a1", Outcome: "dispatched"})
	reg.Publish(ctx, core.AuditRecord{ID: "a2", Outcome: "unknown"})

	deadline := time.Now().Add(2 * time.Second)
	for len(good.records()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("records not delivered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if got := good.records(); got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(failing.records()) != 2 {
		t.Fatalf("expected failing sink to still receive both records")
	}
	if len(bad.records()) != 0 {
		t.Fatal("unhealthy sink must not receive records")
	}
}

func TestPublishDropsWhenBacklogFull(t *testing.T) {
	reg := NewRegistry(testLogger(), 1)
	reg.Publish(context.Background(), core.AuditRecord{ID: "1"})
	reg.Publish(context.Background(), core.AuditRecord{ID: "2"})
	if reg.Dropped() != 1 {
		t.Fatalf("expected 1 dropped record, got %d", reg.Dropped())
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	reg := NewRegistry(testLogger(), 4)
	s := &mockSink{name: "s"}
	reg.Register(s)
	reg.ConnectAll(context.Background())

	reg.Publish(context.Background(), core.AuditRecord{ID: "1"})
	reg.Publish(context.Background(), core.AuditRecord{ID: "2"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.Run(ctx)

	if len(s.records()) != 2 {
		t.Fatalf("expected queued records flushed, got %d", len(s.records()))
	}
}

func TestStopAll(t *testing.T) {
	reg := NewRegistry(testLogger(), 0)
	s := &mockSink{name: "s"}
	reg.Register(s)
	reg.StopAll(context.Background())
	if !s.stopped {
		t.Fatal("expected sink disconnected")
	}
}
