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
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/config"
)

type options struct {
	configPath       string
	token            string
	admins           []string
	logLevel         string
	email            []string
	macAddr          string
	idleTimeout      time.Duration
	challengeTimeout time.Duration
	help             bool

	flags *pflag.FlagSet
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("command-bot", pflag.ContinueOnError)
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = config.DefaultPath
	}
	fs.StringVarP(&o.configPath, "config", "c", defaultPath, "path to the YAML config file (env CONFIG_PATH)")
	fs.StringVar(&o.token, "token", "", "Slack bot token")
	fs.StringSliceVar(&o.admins, "admins", nil, "comma-separated admin email addresses")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringSliceVar(&o.email, "email", nil, "SMTP sender address and password, as addr,password")
	fs.StringVar(&o.macAddr, "mac-addr", "", "hardware address woken by the power command")
	fs.DurationVar(&o.idleTimeout, "idle-timeout", 0, "revoke admin authorization after this much inactivity")
	fs.DurationVar(&o.challengeTimeout, "challenge-timeout", 0, "give up on an unanswered authorization code after this long (0 waits forever)")
	fs.BoolVarP(&o.help, "help", "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.flags = fs
	return o, nil
}

// overrides applies only the flags that were set on the command line.
func (o *options) overrides() config.Override {
	return func(c *config.Config) {
		changed := o.flags.Changed
		if changed("token") {
			c.Slack.Token = o.token
		}
		if changed("admins") {
			c.Admins = append([]string(nil), o.admins...)
		}
		if changed("log-level") {
			c.Logging.Level = o.logLevel
		}
		if changed("email") && len(o.email) > 0 {
			c.SMTP.Username = strings.TrimSpace(o.email[0])
			if len(o.email) > 1 {
				c.SMTP.Password = o.email[1]
			}
		}
		if changed("mac-addr") {
			c.Commands.Power.MACAddr = o.macAddr
		}
		if changed("idle-timeout") {
			c.Auth.IdleTimeout = o.idleTimeout
		}
		if changed("challenge-timeout") {
			c.Auth.ChallengeTimeout = o.challengeTimeout
		}
	}
}
