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

package dispatch

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/wso2/api-platform/gateway/command-bot/internal/auth"
	"github.com/wso2/api-platform/gateway/command-bot/internal/correlation"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type challengeOutcome int

const (
	challengeMatched challengeOutcome = iota
	challengeMismatch
	challengeTimedOut
	challengeAborted
	challengeError
)

func (o challengeOutcome) String() string {
	switch o {
	case challengeMatched:
		return "authorized"
	case challengeMismatch:
		return "mismatch"
	case challengeTimedOut:
		return "timeout"
	case challengeAborted:
		return "aborted"
	default:
		return "error"
	}
}

// beginAuth runs on the loop. The challenge itself runs on its own goroutine
// and reports back through post.
func (d *Dispatcher) beginAuth(ctx context.Context, evt core.Event) {
	uid, channel := evt.User(), evt.Channel()
	if d.machine.IsAuthorized(uid) {
		d.logger.Debug("auth ignored, user already authorized", "user", uid)
		d.audit(ctx, "auth", evt, d.authCmd, nil, "ignored", "already authorized")
		return
	}
	if !d.machine.BeginChallenge(uid, channel) {
		d.logger.Debug("auth ignored, challenge already pending", "user", uid)
		d.audit(ctx, "auth", evt, d.authCmd, nil, "ignored", "challenge pending")
		return
	}

	d.reply(channel, MsgAuthInstruction)
	d.audit(ctx, "auth", evt, d.authCmd, nil, "challenge_started", "")

	// The waiter is registered here, on the loop, so the user's reply cannot
	// be consumed before the challenge goroutine starts listening. Typing and
	// presence frames also carry the user, so the key pins the message type.
	waiter := d.table.RegisterWaiter(challengeKey(uid))

	d.handlers.Add(1)
	go func() {
		defer d.handlers.Done()
		outcome, err := d.runChallenge(ctx, uid, waiter)
		d.post(func() { d.finishChallenge(uid, channel, outcome, err) })
	}()
}

func challengeKey(uid string) correlation.Key {
	return correlation.NewKey(correlation.Fields{"type": core.EventTypeMessage, "user": uid})
}

func (d *Dispatcher) runChallenge(ctx context.Context, uid string, waiter *correlation.Waiter) (outcome challengeOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			waiter.Cancel()
			outcome, err = challengeError, fmt.Errorf("challenge panic: %v", r)
		}
	}()

	if d.directory == nil || d.mailer == nil {
		waiter.Cancel()
		return challengeError, errors.New("no directory or mailer configured")
	}

	email, err := d.directory.ResolveEmail(ctx, uid)
	if err != nil {
		waiter.Cancel()
		return challengeError, err
	}
	code, err := auth.GenerateToken()
	if err != nil {
		waiter.Cancel()
		return challengeError, err
	}
	if err := d.mailer.SendOneTimeCode(ctx, email, code); err != nil {
		waiter.Cancel()
		return challengeError, err
	}
	d.logger.Info("one-time code sent", "user", uid)

	waitCtx := ctx
	if d.cfg.ChallengeTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		timer := d.clock.AfterFunc(d.cfg.ChallengeTimeout, cancel)
		defer timer.Stop()
	}

	reply, err := waiter.Wait(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return challengeAborted, err
		}
		return challengeTimedOut, err
	}
	if subtle.ConstantTimeCompare([]byte(reply.Text()), []byte(code)) != 1 {
		return challengeMismatch, nil
	}
	return challengeMatched, nil
}

// finishChallenge runs on the loop.
func (d *Dispatcher) finishChallenge(uid, channel string, outcome challengeOutcome, err error) {
	rec := core.AuditRecord{Kind: "auth", User: uid, Channel: channel, Command: d.authCmd, Outcome: outcome.String()}
	if err != nil {
		rec.Detail = err.Error()
	}

	if outcome == challengeMatched && d.machine.Authorize(uid, channel) {
		d.publishView()
		d.reply(channel, MsgAuthSucceeded)
		d.publishAudit(context.Background(), rec)
		return
	}
	d.machine.EndChallenge(uid)

	switch outcome {
	case challengeMatched:
		// The user left the roster while the challenge was in flight.
		rec.Outcome = "rejected"
		d.reply(channel, MsgAuthFailed)
	case challengeMismatch, challengeTimedOut:
		d.reply(channel, MsgAuthFailed)
	case challengeError:
		d.logger.Error("authorization challenge failed", "user", uid, "error", err)
		d.reply(channel, fmt.Sprintf(MsgAuthError, err))
	case challengeAborted:
	}
	d.publishAudit(context.Background(), rec)
}
