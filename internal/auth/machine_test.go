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

package auth

import (
	"encoding/hex"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/command-bot/internal/clock"
)

type fire struct {
	uid        string
	generation uint64
}

func newTestMachine(t *testing.T) (*Machine, *clock.FakeClock, *[]fire) {
	t.Helper()
	fc := clock.Fake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var fires []fire
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := NewMachine(fc, 300*time.Second, func(uid string, gen uint64) {
		fires = append(fires, fire{uid, gen})
	}, logger)
	m.SetRoster(map[string]string{"U1": "admin@example.com"})
	return m, fc, &fires
}

func TestRosterEntriesStartUnauthorized(t *testing.T) {
	m, fc, _ := newTestMachine(t)
	assert.True(t, m.IsAdmin("U1"))
	assert.False(t, m.IsAdmin("U2"))
	assert.Equal(t, Unauthorized, m.Status("U1"))
	assert.Equal(t, "admin@example.com", m.Email("U1"))
	assert.Equal(t, 0, fc.PendingCount())
}

func TestAuthorizeArmsSingleTimer(t *testing.T) {
	m, fc, _ := newTestMachine(t)
	require.True(t, m.Authorize("U1", "C1"))
	assert.True(t, m.IsAuthorized("U1"))
	assert.Equal(t, 1, fc.PendingCount())

	assert.False(t, m.Authorize("U1", "C1"), "second authorize is a no-op")
	assert.Equal(t, 1, fc.PendingCount())
}

func TestExpiryAfterIdleTimeout(t *testing.T) {
	m, fc, fires := newTestMachine(t)
	m.Authorize("U1", "C1")

	fc.Advance(299 * time.Second)
	assert.Empty(t, *fires)

	fc.Advance(time.Second)
	require.Len(t, *fires, 1)
	f := (*fires)[0]
	require.True(t, m.Expire(f.uid, f.generation))
	assert.False(t, m.IsAuthorized("U1"))
	assert.False(t, m.Expire(f.uid, f.generation), "expiry applies once")
}

func TestTouchResetsTheClock(t *testing.T) {
	m, fc, fires := newTestMachine(t)
	m.Authorize("U1", "C1")

	fc.Advance(200 * time.Second)
	require.True(t, m.Touch("U1", "C2"))
	assert.Equal(t, 1, fc.PendingCount())
	assert.Equal(t, "C2", m.Channel("U1"))

	fc.Advance(200 * time.Second)
	assert.Empty(t, *fires)
	fc.Advance(100 * time.Second)
	assert.Len(t, *fires, 1)
}

func TestStaleExpiryIgnored(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.Authorize("U1", "C1")
	stale := m.users["U1"].generation

	m.Touch("U1", "C1")
	assert.False(t, m.Expire("U1", stale))
	assert.True(t, m.IsAuthorized("U1"))
}

func TestDeauthorizeCancelsTimer(t *testing.T) {
	m, fc, fires := newTestMachine(t)
	m.Authorize("U1", "C1")
	gen := m.users["U1"].generation

	require.True(t, m.Deauthorize("U1"))
	assert.Equal(t, 0, fc.PendingCount())
	assert.False(t, m.Deauthorize("U1"), "deauth while unauthorized is a no-op")

	fc.Advance(time.Hour)
	assert.Empty(t, *fires)
	assert.False(t, m.Expire("U1", gen), "fire racing deauth is discarded")
}

func TestChallengeGuards(t *testing.T) {
	m, _, _ := newTestMachine(t)
	assert.False(t, m.BeginChallenge("U2", "C1"), "non-admin")
	require.True(t, m.BeginChallenge("U1", "C1"))
	assert.False(t, m.BeginChallenge("U1", "C1"), "already pending")
	assert.True(t, m.ChallengePending("U1"))

	m.EndChallenge("U1")
	assert.False(t, m.ChallengePending("U1"))

	m.Authorize("U1", "C1")
	assert.False(t, m.BeginChallenge("U1", "C1"), "already authorized")
}

func TestSetRosterDropsRemovedAdmins(t *testing.T) {
	m, fc, _ := newTestMachine(t)
	m.Authorize("U1", "C1")

	added, removed := m.SetRoster(map[string]string{"U2": "b@example.com"})
	assert.Equal(t, []string{"U2"}, added)
	assert.Equal(t, []string{"U1"}, removed)
	assert.False(t, m.IsAdmin("U1"))
	assert.Equal(t, 0, fc.PendingCount())
	assert.Equal(t, []string{"U2"}, m.Admins())
}

func TestResetClearsEverything(t *testing.T) {
	m, fc, _ := newTestMachine(t)
	m.SetRoster(map[string]string{"U1": "a@example.com", "U2": "b@example.com"})
	m.Authorize("U1", "C1")
	m.Authorize("U2", "C2")
	assert.Equal(t, []string{"U1", "U2"}, m.AuthorizedUsers())

	m.Reset()
	assert.Empty(t, m.AuthorizedUsers())
	assert.Equal(t, 0, fc.PendingCount())
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, 2*TokenBytes)
	assert.NotEqual(t, a, b)
	_, err = hex.DecodeString(a)
	assert.NoError(t, err)
}
