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

// Package commands holds the bot's built-in command handlers.
package commands

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/wso2/api-platform/gateway/command-bot/internal/command"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type Options struct {
	// MACAddr enables the power command when set.
	MACAddr string
	Waker   Waker
	// AuthCommands are listed by help alongside registered commands.
	AuthCommands []string
}

// Install registers the built-in commands on reg.
func Install(reg *command.Registry, opts Options) error {
	p := reg.Prefix()
	h := help{authCommands: opts.AuthCommands}
	if err := reg.RegisterUser(p+"help", "list the commands you can use", h.handle); err != nil {
		return err
	}
	if err := reg.RegisterUser(p+"whoami", "show your admin and authorization status", whoami); err != nil {
		return err
	}
	if opts.MACAddr == "" {
		return nil
	}
	mac, err := net.ParseMAC(opts.MACAddr)
	if err != nil {
		return fmt.Errorf("power command: %w", err)
	}
	waker := opts.Waker
	if waker == nil {
		waker = UDPWaker{}
	}
	pw := power{token: p + "power", mac: mac, waker: waker}
	return reg.RegisterAdmin(pw.token, "on|off, wake or stop the server", pw.handle)
}

type help struct {
	authCommands []string
}

func (h help) handle(ctx context.Context, hc command.Context, evt core.Event, _ ...string) error {
	admin := hc.IsAdmin(evt.User())
	var b strings.Builder
	b.WriteString("Available commands:")
	if admin {
		for _, tok := range h.authCommands {
			fmt.Fprintf(&b, "\n%s", tok)
		}
	}
	for _, e := range hc.Commands() {
		if e.Class == core.ClassAdmin && !admin {
			continue
		}
		fmt.Fprintf(&b, "\n%s", e.Token)
		if e.Usage != "" {
			fmt.Fprintf(&b, " - %s", e.Usage)
		}
		if e.Class == core.ClassAdmin {
			b.WriteString(" (admin)")
		}
	}
	return hc.Send(ctx, evt.Channel(), b.String())
}

func whoami(ctx context.Context, hc command.Context, evt core.Event, _ ...string) error {
	uid := evt.User()
	var status string
	switch {
	case hc.IsAuthorized(uid):
		status = "an authorized admin"
	case hc.IsAdmin(uid):
		status = "an admin, not currently authorized"
	default:
		status = "not an admin"
	}
	return hc.Send(ctx, evt.Channel(), fmt.Sprintf("You are <@%s>, %s.", uid, status))
}
