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

package main

import (
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/config"
)

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	o, err := parseFlags([]string{
		"--token", "xoxb-cli",
		"--admins", "a@example.com,b@example.com",
		"--email", "bot@example.com,hunter2",
		"--idle-timeout", "90s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := config.Parse([]byte(`
slack: {token: from-file}
logging: {level: debug}
commands: {power: {mac_addr: "00:11:22:33:44:55"}}
`), o.overrides())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Slack.Token != "xoxb-cli" {
		t.Fatalf("expected flag token, got %q", cfg.Slack.Token)
	}
	if len(cfg.Admins) != 2 || cfg.Admins[1] != "b@example.com" {
		t.Fatalf("unexpected admins: %v", cfg.Admins)
	}
	if cfg.SMTP.Username != "bot@example.com" || cfg.SMTP.Password != "hunter2" {
		t.Fatalf("unexpected smtp: %+v", cfg.SMTP)
	}
	if cfg.Auth.IdleTimeout != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.Auth.IdleTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unset flag must not override file, got %q", cfg.Logging.Level)
	}
	if cfg.Commands.Power.MACAddr != "00:11:22:33:44:55" {
		t.Fatalf("unset flag must not override file, got %q", cfg.Commands.Power.MACAddr)
	}
}

func TestFlagsConfigPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/tmp/bot.yaml")
	o, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.configPath != "/tmp/bot.yaml" {
		t.Fatalf("expected env config path, got %q", o.configPath)
	}
}

func TestFlagsRejectUnknown(t *testing.T) {
	if _, err := parseFlags([]string{"--frobnicate"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
