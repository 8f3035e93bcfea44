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

// Package auth tracks the elevated-authorization state of admin users.
//
// A Machine is not safe for concurrent use. The dispatcher owns it and only
// touches it from its event loop; timer expiry is reported through the
// expire callback, which must hand the (user, generation) pair back to that
// loop instead of calling Expire directly.
package auth

import (
	"log/slog"
	"sort"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/internal/clock"
)

const DefaultIdleTimeout = 300 * time.Second

type Status int

const (
	Unauthorized Status = iota
	Authorized
)

func (s Status) String() string {
	if s == Authorized {
		return "authorized"
	}
	return "unauthorized"
}

type userState struct {
	email   string
	status  Status
	timer   *clock.Timer
	channel string
	pending bool
	// generation increments on every arm and disarm so an expiry that was
	// already in flight when the timer was replaced can be recognised.
	generation uint64
}

// ExpireFunc receives timer fires. It runs on the timer's goroutine.
type ExpireFunc func(userID string, generation uint64)

type Machine struct {
	clock  clock.Clock
	idle   time.Duration
	expire ExpireFunc
	users  map[string]*userState
	logger *slog.Logger
}

func NewMachine(clk clock.Clock, idle time.Duration, expire ExpireFunc, logger *slog.Logger) *Machine {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		clock:  clk,
		idle:   idle,
		expire: expire,
		users:  make(map[string]*userState),
		logger: logger,
	}
}

func (m *Machine) IdleTimeout() time.Duration { return m.idle }

// SetRoster replaces the admin roster (user id -> email). New admins start
// unauthorized; dropped admins lose their state and timers. Existing admins
// keep their state.
func (m *Machine) SetRoster(roster map[string]string) (added, removed []string) {
	for uid, st := range m.users {
		if _, ok := roster[uid]; !ok {
			m.disarm(st)
			delete(m.users, uid)
			removed = append(removed, uid)
		}
	}
	for uid, email := range roster {
		if st, ok := m.users[uid]; ok {
			st.email = email
			continue
		}
		m.users[uid] = &userState{email: email}
		added = append(added, uid)
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func (m *Machine) IsAdmin(uid string) bool {
	_, ok := m.users[uid]
	return ok
}

func (m *Machine) Status(uid string) Status {
	if st, ok := m.users[uid]; ok {
		return st.status
	}
	return Unauthorized
}

func (m *Machine) IsAuthorized(uid string) bool { return m.Status(uid) == Authorized }

func (m *Machine) Email(uid string) string {
	if st, ok := m.users[uid]; ok {
		return st.email
	}
	return ""
}

// Channel is where notifications for uid are sent.
func (m *Machine) Channel(uid string) string {
	if st, ok := m.users[uid]; ok {
		return st.channel
	}
	return ""
}

// BeginChallenge marks a challenge in flight. It refuses when the user is
// not an admin, is already authorized, or already has a pending challenge.
func (m *Machine) BeginChallenge(uid, channel string) bool {
	st, ok := m.users[uid]
	if !ok || st.status == Authorized || st.pending {
		return false
	}
	st.pending = true
	st.channel = channel
	return true
}

func (m *Machine) ChallengePending(uid string) bool {
	st, ok := m.users[uid]
	return ok && st.pending
}

// EndChallenge clears the in-flight marker without changing state.
func (m *Machine) EndChallenge(uid string) {
	if st, ok := m.users[uid]; ok {
		st.pending = false
	}
}

// Authorize moves uid to Authorized and arms the idle timer.
func (m *Machine) Authorize(uid, channel string) bool {
	st, ok := m.users[uid]
	if !ok {
		return false
	}
	st.pending = false
	if st.status == Authorized {
		return false
	}
	st.status = Authorized
	if channel != "" {
		st.channel = channel
	}
	m.arm(uid, st)
	m.logger.Info("user authorized", "user", uid, "idle_timeout", m.idle)
	return true
}

// Deauthorize moves uid back to Unauthorized and cancels its timer.
func (m *Machine) Deauthorize(uid string) bool {
	st, ok := m.users[uid]
	if !ok || st.status != Authorized {
		return false
	}
	st.status = Unauthorized
	m.disarm(st)
	m.logger.Info("user deauthorized", "user", uid)
	return true
}

// Touch re-arms the idle timer of an authorized user.
func (m *Machine) Touch(uid, channel string) bool {
	st, ok := m.users[uid]
	if !ok || st.status != Authorized {
		return false
	}
	if channel != "" {
		st.channel = channel
	}
	m.arm(uid, st)
	return true
}

// Expire applies a timer fire. Fires from a timer that has since been
// replaced or cancelled carry an old generation and are ignored.
func (m *Machine) Expire(uid string, generation uint64) bool {
	st, ok := m.users[uid]
	if !ok || st.status != Authorized || st.generation != generation {
		return false
	}
	st.status = Unauthorized
	st.timer = nil
	st.generation++
	m.logger.Info("authorization expired", "user", uid)
	return true
}

// Reset cancels every timer and returns all admins to Unauthorized.
func (m *Machine) Reset() {
	for _, st := range m.users {
		st.status = Unauthorized
		st.pending = false
		m.disarm(st)
	}
}

// Admins returns the roster user ids in sorted order.
func (m *Machine) Admins() []string {
	ids := make([]string, 0, len(m.users))
	for uid := range m.users {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	return ids
}

// AuthorizedUsers returns the ids currently authorized, sorted.
func (m *Machine) AuthorizedUsers() []string {
	var ids []string
	for uid, st := range m.users {
		if st.status == Authorized {
			ids = append(ids, uid)
		}
	}
	sort.Strings(ids)
	return ids
}

// arm always stops the previous timer before creating the next one.
func (m *Machine) arm(uid string, st *userState) {
	m.disarm(st)
	generation := st.generation
	st.timer = m.clock.AfterFunc(m.idle, func() {
		if m.expire != nil {
			m.expire(uid, generation)
		}
	})
}

func (m *Machine) disarm(st *userState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.generation++
}
