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

// Package dispatch classifies incoming chat messages and routes them to
// command handlers.
//
// All authorization state lives inside the goroutine running Dispatcher.Run.
// Timer fires, challenge outcomes and roster reloads reach that goroutine as
// closures on the control channel; nothing else mutates the state machine.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/gateway/command-bot/internal/auth"
	"github.com/wso2/api-platform/gateway/command-bot/internal/clock"
	"github.com/wso2/api-platform/gateway/command-bot/internal/command"
	"github.com/wso2/api-platform/gateway/command-bot/internal/correlation"
	"github.com/wso2/api-platform/gateway/command-bot/internal/ingress"
	"github.com/wso2/api-platform/gateway/command-bot/internal/logging"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const (
	MsgNotPermitted    = "You are not permitted to use this command."
	MsgNotAuthorized   = "You are not authorized to use this command. Use %s first."
	MsgAuthInstruction = "Sending authorization token to your email address. Please send the token as your next message."
	MsgAuthSucceeded   = "Authorization succeeded."
	MsgAuthFailed      = "Authorization failed."
	MsgAuthError       = "Authorization failed: %v"
	MsgAuthExpired     = "Authorization expired."
	MsgDeauthorized    = "Deauthorized."
	MsgUnknownCommand  = "Unknown command %s"
	MsgCommandFailed   = "Command %s failed: %v"
)

const controlBuffer = 64

// Auditor receives a record for every routing decision.
type Auditor interface {
	Publish(ctx context.Context, record core.AuditRecord)
}

type Config struct {
	Prefix      string
	IdleTimeout time.Duration
	// ChallengeTimeout bounds how long a $auth challenge waits for the
	// code. Zero waits until the user replies or the bot stops.
	ChallengeTimeout time.Duration
	// PostTimeout bounds each outbound message sent from the outbox.
	PostTimeout time.Duration
}

type Dispatcher struct {
	cfg       Config
	authCmd   string
	deauthCmd string

	table     *correlation.Table
	registry  *command.Registry
	machine   *auth.Machine
	directory core.Directory
	mailer    core.Mailer
	poster    core.Poster
	auditor   Auditor
	clock     clock.Clock
	logger    *slog.Logger
	eventLog  *logging.EventLogger

	control chan func()
	done    chan struct{}
	outbox  *ingress.Queue
	view    atomic.Pointer[authView]

	handlers sync.WaitGroup
	sender   sync.WaitGroup
	running  atomic.Bool
}

// authView is an immutable copy of the roster and authorized set published
// after every transition, for handlers running outside the loop.
type authView struct {
	admins     map[string]bool
	authorized map[string]bool
}

type Deps struct {
	Table     *correlation.Table
	Registry  *command.Registry
	Directory core.Directory
	Mailer    core.Mailer
	Poster    core.Poster
	Auditor   Auditor
	Clock     clock.Clock
	Logger    *slog.Logger
	EventLog  *logging.EventLogger
}

func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = command.DefaultPrefix
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Table == nil {
		deps.Table = correlation.NewTable(deps.Logger)
	}
	d := &Dispatcher{
		cfg:       cfg,
		authCmd:   cfg.Prefix + "auth",
		deauthCmd: cfg.Prefix + "deauth",
		table:     deps.Table,
		directory: deps.Directory,
		mailer:    deps.Mailer,
		poster:    deps.Poster,
		auditor:   deps.Auditor,
		clock:     deps.Clock,
		logger:    deps.Logger,
		eventLog:  deps.EventLog,
		control:   make(chan func(), controlBuffer),
		done:      make(chan struct{}),
		outbox:    ingress.NewQueue(),
	}
	d.registry = deps.Registry
	if d.registry == nil {
		d.registry = command.NewRegistry(cfg.Prefix, deps.Logger, d.authCmd, d.deauthCmd)
	}
	d.machine = auth.NewMachine(d.clock, cfg.IdleTimeout, d.onTimerFired, deps.Logger.With("component", "auth"))
	d.publishView()
	return d
}

func (d *Dispatcher) Table() *correlation.Table     { return d.table }
func (d *Dispatcher) Registry() *command.Registry   { return d.registry }
func (d *Dispatcher) AuthCommands() (string, string) { return d.authCmd, d.deauthCmd }

// SetRoster installs the admin roster. Before Run starts it applies
// immediately; afterwards the change is queued to the loop.
func (d *Dispatcher) SetRoster(roster map[string]string) {
	apply := func() {
		added, removed := d.machine.SetRoster(roster)
		d.publishView()
		d.logger.Info("admin roster updated", "admins", len(roster), "added", added, "removed", removed)
	}
	if !d.running.Load() {
		apply()
		return
	}
	d.post(apply)
}

// Run consumes queue until the shutdown sentinel arrives, the queue closes,
// or ctx is cancelled. Run must only be called once.
func (d *Dispatcher) Run(ctx context.Context, queue *ingress.Queue) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.sender.Add(1)
	go d.drainOutbox()

	events := make(chan core.Event)
	go func() {
		defer close(events)
		for {
			evt, err := queue.Pop(ctx)
			if err != nil {
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		d.machine.Reset()
		d.publishView()
		close(d.done)
		d.outbox.Close()
		d.logger.Info("dispatcher stopped")
	}()

	d.logger.Info("dispatcher started", "prefix", d.cfg.Prefix, "idle_timeout", d.machine.IdleTimeout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-d.control:
			fn()
		case evt, ok := <-events:
			if !ok || evt.IsShutdown() {
				return nil
			}
			d.handleEvent(ctx, evt)
		}
	}
}

// Wait blocks until every spawned handler has returned and the outbox has
// been flushed. Call it after Run returns.
func (d *Dispatcher) Wait() {
	d.handlers.Wait()
	d.sender.Wait()
}

func (d *Dispatcher) handleEvent(ctx context.Context, evt core.Event) {
	if d.eventLog != nil {
		d.eventLog.Log(evt, "dispatch")
	}

	// Pending waiters see the event before any handler derived from it.
	if n := d.table.OnEvent(evt); n > 0 {
		d.logger.Debug("waiters resolved", "count", n, "type", evt.Type(), "user", evt.User())
	}

	if !evt.IsTextMessage() {
		return
	}
	d.route(ctx, evt)
}

func (d *Dispatcher) route(ctx context.Context, evt core.Event) {
	tokens := strings.Fields(evt.Text())
	if len(tokens) == 0 {
		return
	}
	token, args := tokens[0], tokens[1:]
	uid, channel := evt.User(), evt.Channel()

	switch {
	case token == d.authCmd || token == d.deauthCmd:
		if !d.machine.IsAdmin(uid) {
			d.reply(channel, MsgNotPermitted)
			d.audit(ctx, "auth", evt, token, args, "not_permitted", "")
			return
		}
		if token == d.authCmd {
			d.beginAuth(ctx, evt)
		} else {
			d.deauth(ctx, evt)
		}
		return
	}

	entry, ok := d.registry.Lookup(token)
	switch {
	case ok && entry.Class == core.ClassAdmin:
		if !d.machine.IsAdmin(uid) {
			d.reply(channel, MsgNotPermitted)
			d.audit(ctx, "command", evt, token, args, "not_permitted", "")
			return
		}
		if !d.machine.IsAuthorized(uid) {
			d.reply(channel, fmt.Sprintf(MsgNotAuthorized, d.authCmd))
			d.audit(ctx, "command", evt, token, args, "not_authorized", "")
			return
		}
		d.machine.Touch(uid, channel)
		d.spawn(ctx, entry, evt, args)
	case ok:
		d.machine.Touch(uid, channel)
		d.spawn(ctx, entry, evt, args)
	case d.registry.IsCommandToken(token):
		d.logger.Debug("unknown command", "token", token, "user", uid)
		d.reply(channel, fmt.Sprintf(MsgUnknownCommand, token))
		d.audit(ctx, "command", evt, token, args, "unknown", "")
	}
}

func (d *Dispatcher) spawn(ctx context.Context, entry command.Entry, evt core.Event, args []string) {
	d.audit(ctx, "command", evt, entry.Token, args, "dispatched", entry.Class.String())

	d.handlers.Add(1)
	go func() {
		defer d.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panic recovered", "token", entry.Token, "user", evt.User(), "error", r)
				d.reply(evt.Channel(), fmt.Sprintf(MsgCommandFailed, entry.Token, r))
			}
		}()
		if err := entry.Handler(ctx, handlerContext{d}, evt, args...); err != nil {
			d.logger.Error("handler failed", "token", entry.Token, "user", evt.User(), "error", err)
			d.reply(evt.Channel(), fmt.Sprintf(MsgCommandFailed, entry.Token, err))
		}
	}()
}

func (d *Dispatcher) deauth(ctx context.Context, evt core.Event) {
	uid := evt.User()
	if !d.machine.Deauthorize(uid) {
		d.logger.Debug("deauth ignored, user not authorized", "user", uid)
		d.audit(ctx, "auth", evt, d.deauthCmd, nil, "ignored", "")
		return
	}
	d.publishView()
	d.reply(evt.Channel(), MsgDeauthorized)
	d.audit(ctx, "auth", evt, d.deauthCmd, nil, "deauthorized", "")
}

// onTimerFired runs on the timer goroutine and only hands the fire to the
// loop.
func (d *Dispatcher) onTimerFired(uid string, generation uint64) {
	d.post(func() {
		if !d.machine.Expire(uid, generation) {
			return
		}
		d.publishView()
		channel := d.machine.Channel(uid)
		if channel != "" {
			d.reply(channel, MsgAuthExpired)
		}
		d.publishAudit(context.Background(), core.AuditRecord{
			Kind: "auth", User: uid, Channel: channel, Outcome: "expired",
		})
	})
}

// post queues fn for the loop. It is dropped once the loop has stopped.
func (d *Dispatcher) post(fn func()) {
	select {
	case d.control <- fn:
	case <-d.done:
	}
}

// reply queues a message on the outbox so the loop never blocks on the
// network. Outbox messages are sent in order by a single goroutine.
func (d *Dispatcher) reply(channel, text string) {
	if channel == "" {
		d.logger.Warn("dropping reply without channel", "text", text)
		return
	}
	d.outbox.Push(core.NewEvent(map[string]any{
		"type":    core.EventTypeMessage,
		"channel": channel,
		"text":    text,
	}))
}

func (d *Dispatcher) drainOutbox() {
	defer d.sender.Done()
	for {
		msg, err := d.outbox.Pop(context.Background())
		if err != nil {
			return
		}
		if d.poster == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PostTimeout)
		if err := d.poster.PostMessage(ctx, msg.Channel(), msg.Text()); err != nil {
			d.logger.Error("reply failed", "channel", msg.Channel(), "error", err)
		}
		cancel()
	}
}

func (d *Dispatcher) publishView() {
	v := &authView{
		admins:     make(map[string]bool),
		authorized: make(map[string]bool),
	}
	for _, uid := range d.machine.Admins() {
		v.admins[uid] = true
	}
	for _, uid := range d.machine.AuthorizedUsers() {
		v.authorized[uid] = true
	}
	d.view.Store(v)
}

func (d *Dispatcher) IsAdmin(uid string) bool      { return d.view.Load().admins[uid] }
func (d *Dispatcher) IsAuthorized(uid string) bool { return d.view.Load().authorized[uid] }

func (d *Dispatcher) audit(ctx context.Context, kind string, evt core.Event, token string, args []string, outcome, detail string) {
	d.publishAudit(ctx, core.AuditRecord{
		Kind:    kind,
		User:    evt.User(),
		Channel: evt.Channel(),
		Command: token,
		Args:    args,
		Outcome: outcome,
		Detail:  detail,
	})
}

func (d *Dispatcher) publishAudit(ctx context.Context, rec core.AuditRecord) {
	rec.ID = uuid.New().String()
	rec.Timestamp = d.clock.Now().UTC()
	if d.eventLog != nil {
		d.eventLog.Audit(rec)
	}
	if d.auditor != nil {
		d.auditor.Publish(ctx, rec)
	}
}

// handlerContext is the command.Context given to handlers.
type handlerContext struct {
	d *Dispatcher
}

func (h handlerContext) Send(ctx context.Context, channel, text string) error {
	if h.d.poster == nil {
		return fmt.Errorf("%w: no poster configured", core.ErrTransport)
	}
	return h.d.poster.PostMessage(ctx, channel, text)
}

func (h handlerContext) IsAdmin(uid string) bool      { return h.d.IsAdmin(uid) }
func (h handlerContext) IsAuthorized(uid string) bool { return h.d.IsAuthorized(uid) }
func (h handlerContext) Commands() []command.Entry    { return h.d.registry.List() }

func (h handlerContext) RegisterAdmin(token, usage string, fn command.Handler) error {
	return h.d.registry.RegisterAdmin(token, usage, fn)
}

func (h handlerContext) RegisterUser(token, usage string, fn command.Handler) error {
	return h.d.registry.RegisterUser(token, usage, fn)
}

func (h handlerContext) Unregister(token string) bool { return h.d.registry.Unregister(token) }
