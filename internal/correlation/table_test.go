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

package correlation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

func newTestTable() *Table {
	return NewTable(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestWaiterResolvesOnCoveringEvent(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	evt := core.NewTextMessage("U1", "C1", "abcd")
	require.Equal(t, 1, table.OnEvent(evt))

	got, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcd", got.Text())
	assert.Equal(t, 0, table.Pending())
}

func TestWaiterIgnoresNonMatchingEvent(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	assert.Equal(t, 0, table.OnEvent(core.NewTextMessage("U2", "C1", "nope")))
	assert.Equal(t, 1, table.Pending())

	select {
	case <-w.Done():
		t.Fatal("waiter resolved by non-matching event")
	default:
	}
}

func TestWaiterResolvesOnlyOnce(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	table.OnEvent(core.NewTextMessage("U1", "C1", "first"))
	assert.Equal(t, 0, table.OnEvent(core.NewTextMessage("U1", "C1", "second")))

	got, ok := w.Result()
	require.True(t, ok)
	assert.Equal(t, "first", got.Text())
}

func TestTwoWaitersSameKeyBothResolve(t *testing.T) {
	table := newTestTable()
	key := NewKey(map[string]any{"user": "U1"})
	a := table.RegisterWaiter(key)
	b := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	evt := core.NewTextMessage("U1", "C1", "shared")
	assert.Equal(t, 2, table.OnEvent(evt))

	for _, w := range []*Waiter{a, b} {
		got, ok := w.Result()
		require.True(t, ok)
		assert.Equal(t, "shared", got.Text())
	}
	assert.Equal(t, 0, table.Pending())
}

func TestCancelledWaiterNeverResolves(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	require.True(t, w.Cancel())
	assert.Equal(t, 0, table.Pending())
	assert.Equal(t, 0, table.OnEvent(core.NewTextMessage("U1", "C1", "late")))

	_, ok := w.Result()
	assert.False(t, ok)
	_, err := w.Wait(context.Background())
	assert.True(t, errors.Is(err, core.ErrWaiterCancelled))
}

func TestCancelAfterResolveIsNoop(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))
	table.OnEvent(core.NewTextMessage("U1", "C1", "x"))

	assert.False(t, w.Cancel())
	_, ok := w.Result()
	assert.True(t, ok)
}

func TestWaitContextCancelUnregisters(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(map[string]any{"user": "U1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrWaiterCancelled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, table.Pending())
}

func TestWildcardWaiterMatchesAnyEvent(t *testing.T) {
	table := newTestTable()
	w := table.RegisterWaiter(NewKey(nil))

	table.OnEvent(core.NewEvent(map[string]any{"type": "presence_change"}))
	got, ok := w.Result()
	require.True(t, ok)
	assert.Equal(t, "presence_change", got.Type())
}

func TestCallbacksPersistAcrossEvents(t *testing.T) {
	table := newTestTable()
	var seen []string
	sub, err := table.RegisterCallback(NewKey(map[string]any{"channel": "C1"}), func(evt core.Event) {
		seen = append(seen, evt.Text())
	})
	require.NoError(t, err)

	table.OnEvent(core.NewTextMessage("U1", "C1", "one"))
	table.OnEvent(core.NewTextMessage("U2", "C2", "skip"))
	table.OnEvent(core.NewTextMessage("U3", "C1", "two"))
	assert.Equal(t, []string{"one", "two"}, seen)

	require.True(t, sub.Cancel())
	assert.False(t, sub.Cancel())
	table.OnEvent(core.NewTextMessage("U1", "C1", "three"))
	assert.Len(t, seen, 2)
}

func TestRegisterNilCallbackRejected(t *testing.T) {
	table := newTestTable()
	_, err := table.RegisterCallback(NewKey(nil), nil)
	assert.True(t, errors.Is(err, core.ErrInvalidHandler))
}

func TestCallbackPanicIsContained(t *testing.T) {
	table := newTestTable()
	_, err := table.RegisterCallback(NewKey(nil), func(core.Event) { panic("boom") })
	require.NoError(t, err)
	w := table.RegisterWaiter(NewKey(nil))

	assert.NotPanics(t, func() { table.OnEvent(core.NewTextMessage("U1", "C1", "x")) })
	_, ok := w.Result()
	assert.True(t, ok)
}

func TestConcurrentRegistrationDuringEvents(t *testing.T) {
	table := newTestTable()
	key := NewKey(map[string]any{"user": "U1"})

	var wg sync.WaitGroup
	waiters := make([]*Waiter, 200)
	for i := range waiters {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			waiters[n] = table.RegisterWaiter(key)
		}(i)
	}

	resolved := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			resolved += table.OnEvent(core.NewTextMessage("U1", "C1", "tick"))
		}
	}
	resolved += table.OnEvent(core.NewTextMessage("U1", "C1", "final"))

	assert.Equal(t, len(waiters), resolved)
	assert.Equal(t, 0, table.Pending())
}
