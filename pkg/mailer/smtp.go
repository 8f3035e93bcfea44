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

// Package mailer delivers one-time authorization codes over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const (
	DefaultHost    = "smtp.gmail.com"
	DefaultPort    = 587
	DefaultSubject = "Authorization token"
	dialTimeout    = 30 * time.Second
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From         string
	Subject      string
	Organization string
	// RequireTLS refuses servers that do not offer STARTTLS.
	RequireTLS bool
	// TLSConfig overrides the STARTTLS configuration.
	TLSConfig *tls.Config
}

type SMTPMailer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *SMTPMailer {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) SendOneTimeCode(ctx context.Context, email, code string) error {
	if err := m.send(ctx, email, m.body(code)); err != nil {
		return fmt.Errorf("%w: %w", core.ErrDelivery, err)
	}
	m.logger.Info("authorization code mailed", "to", email)
	return nil
}

func (m *SMTPMailer) body(code string) string {
	greeting := "Hello,"
	if m.cfg.Organization != "" {
		greeting = fmt.Sprintf("Hello %s user,", m.cfg.Organization)
	}
	return greeting + "\r\n\r\n" +
		"You have requested authorization to use administrative commands.\r\n\r\n" +
		"Authorization token: " + code + "\r\n"
}

func (m *SMTPMailer) send(ctx context.Context, to, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok {
		conn.SetDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := m.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: m.cfg.Host}
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			return err
		}
	} else if m.cfg.RequireTLS {
		return fmt.Errorf("server %s does not support STARTTLS", addr)
	}

	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(m.message(to, body))); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *SMTPMailer) message(to, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.cfg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return b.String()
}
