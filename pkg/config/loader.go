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

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath              = "/etc/command-bot/config.yaml"
	DefaultPrefix            = "$"
	DefaultIdleTimeout       = 300 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultWatchInterval     = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Slack    SlackConfig    `yaml:"slack"`
	Admins   []string       `yaml:"admins"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Auth     AuthConfig     `yaml:"auth"`
	Commands CommandsConfig `yaml:"commands"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
}

type SlackConfig struct {
	Token     string        `yaml:"token"`
	APIURL    string        `yaml:"api_url"`
	Keepalive time.Duration `yaml:"keepalive"`
}

type SMTPConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	From         string `yaml:"from"`
	Subject      string `yaml:"subject"`
	Organization string `yaml:"organization"`
	RequireTLS   bool   `yaml:"require_tls"`
}

type AuthConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout"`
}

type CommandsConfig struct {
	Prefix string      `yaml:"prefix"`
	Power  PowerConfig `yaml:"power"`
}

type PowerConfig struct {
	MACAddr   string `yaml:"mac_addr"`
	Broadcast string `yaml:"broadcast"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuditConfig struct {
	Backlog int          `yaml:"backlog"`
	Sinks   []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

// Override adjusts a decoded config before defaults and validation run.
// Command-line flags are applied this way.
type Override func(*Config)

// Load reads path, expands ${VAR} references from the environment, applies
// overrides and defaults, and validates the result. A missing file is an
// error; see LoadOptional.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, overrides...)
}

// LoadOptional is Load for a config file that may not exist.
func LoadOptional(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, overrides...)
}

func Parse(data []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = DefaultPrefix
	}
	if c.Auth.IdleTimeout == 0 {
		c.Auth.IdleTimeout = DefaultIdleTimeout
	}
	if c.Slack.Keepalive == 0 {
		c.Slack.Keepalive = DefaultKeepaliveInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Slack.Token == "" {
		errs = append(errs, errors.New("slack.token is required"))
	}
	if strings.ContainsAny(c.Commands.Prefix, " \t\r\n") {
		errs = append(errs, fmt.Errorf("commands.prefix %q contains whitespace", c.Commands.Prefix))
	}
	if c.Auth.IdleTimeout < 0 {
		errs = append(errs, errors.New("auth.idle_timeout must be positive"))
	}
	if c.Auth.ChallengeTimeout < 0 {
		errs = append(errs, errors.New("auth.challenge_timeout must not be negative"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	seen := make(map[string]bool)
	for i, s := range c.Audit.Sinks {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("audit.sinks[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("audit.sinks[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("audit.sinks[%d]: type is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// NormalizedAdmins returns the admin emails lower-cased, trimmed and
// de-duplicated in their original order.
func (c *Config) NormalizedAdmins() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.Admins {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
