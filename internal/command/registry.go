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

package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const DefaultPrefix = "$"

// Handler runs one command invocation on its own goroutine. args are the
// whitespace-separated tokens following the command.
type Handler func(ctx context.Context, hc Context, evt core.Event, args ...string) error

// Context is what a running handler may use from the bot.
type Context interface {
	Send(ctx context.Context, channel, text string) error
	IsAdmin(userID string) bool
	IsAuthorized(userID string) bool
	Commands() []Entry
	RegisterAdmin(token, usage string, h Handler) error
	RegisterUser(token, usage string, h Handler) error
	Unregister(token string) bool
}

type Entry struct {
	Token   string
	Class   core.CommandClass
	Usage   string
	Handler Handler
}

// Registry maps command tokens to handlers. It is read on every dispatched
// message and written rarely, so lookups take the read lock.
type Registry struct {
	prefix   string
	reserved map[string]bool
	entries  map[string]Entry
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a registry whose tokens must start with prefix.
// reserved tokens can never be registered.
func NewRegistry(prefix string, logger *slog.Logger, reserved ...string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		prefix:   prefix,
		reserved: make(map[string]bool, len(reserved)),
		entries:  make(map[string]Entry),
		logger:   logger,
	}
	for _, tok := range reserved {
		r.reserved[tok] = true
	}
	return r
}

func (r *Registry) Prefix() string { return r.prefix }

// Register validates and stores e, replacing any previous handler for the
// same token. Validation happens here rather than at dispatch time.
func (r *Registry) Register(e Entry) error {
	switch {
	case e.Handler == nil:
		return fmt.Errorf("%w: nil handler for %q", core.ErrInvalidHandler, e.Token)
	case !strings.HasPrefix(e.Token, r.prefix) || len(e.Token) == len(r.prefix):
		return fmt.Errorf("%w: token %q must start with %q", core.ErrInvalidHandler, e.Token, r.prefix)
	case strings.ContainsFunc(e.Token, isSpace):
		return fmt.Errorf("%w: token %q contains whitespace", core.ErrInvalidHandler, e.Token)
	case r.reserved[e.Token]:
		return fmt.Errorf("%w: token %q is reserved", core.ErrInvalidHandler, e.Token)
	case e.Class != core.ClassAdmin && e.Class != core.ClassUser:
		return fmt.Errorf("%w: unknown class %d for %q", core.ErrInvalidHandler, e.Class, e.Token)
	}

	r.mu.Lock()
	r.entries[e.Token] = e
	r.mu.Unlock()
	r.logger.Info("registered command", "token", e.Token, "class", e.Class.String())
	return nil
}

func (r *Registry) RegisterAdmin(token, usage string, h Handler) error {
	return r.Register(Entry{Token: token, Class: core.ClassAdmin, Usage: usage, Handler: h})
}

func (r *Registry) RegisterUser(token, usage string, h Handler) error {
	return r.Register(Entry{Token: token, Class: core.ClassUser, Usage: usage, Handler: h})
}

func (r *Registry) Unregister(token string) bool {
	r.mu.Lock()
	_, ok := r.entries[token]
	delete(r.entries, token)
	r.mu.Unlock()
	if ok {
		r.logger.Info("unregistered command", "token", token)
	}
	return ok
}

func (r *Registry) Lookup(token string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	return e, ok
}

// List returns every entry sorted by token.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// IsCommandToken reports whether tok carries the command prefix.
func (r *Registry) IsCommandToken(tok string) bool {
	return strings.HasPrefix(tok, r.prefix)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
