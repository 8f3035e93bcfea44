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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wso2/api-platform/gateway/command-bot/internal/commands"
	"github.com/wso2/api-platform/gateway/command-bot/internal/dispatch"
	"github.com/wso2/api-platform/gateway/command-bot/internal/ingress"
	"github.com/wso2/api-platform/gateway/command-bot/internal/logging"
	"github.com/wso2/api-platform/gateway/command-bot/internal/session"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/config"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/mailer"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/slack"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		fmt.Fprintf(os.Stderr, "Usage: command-bot [flags]\n\n%s", opts.flags.FlagUsages())
		return nil
	}

	cfg, err := config.LoadOptional(opts.configPath, opts.overrides())
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.Logging.Level)
	logger := logging.New(os.Stdout, level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientOpts := []slack.Option{slack.WithLogger(logger.With("component", "slack"))}
	if cfg.Slack.APIURL != "" {
		clientOpts = append(clientOpts, slack.WithBaseURL(cfg.Slack.APIURL))
	}
	client := slack.NewClient(cfg.Slack.Token, clientOpts...)
	directory := slack.NewDirectory(client, logger.With("component", "directory"))

	roster, err := directory.ResolveAdminRoster(ctx, cfg.NormalizedAdmins())
	if err != nil {
		return fmt.Errorf("resolve admin roster: %w", err)
	}

	sessions := session.NewManager(session.SlackConnector{
		Client: client,
		Logger: logger.With("component", "rtm"),
	}, logger.With("component", "session"))
	if err := sessions.Open(ctx); err != nil {
		return err
	}
	defer sessions.Close()

	sinks := plugins.NewRegistry(logger.With("component", "audit"), cfg.Audit.Backlog)
	for _, sc := range cfg.Audit.Sinks {
		s, err := plugins.Build(sc, logger)
		if err != nil {
			return err
		}
		sinks.Register(s)
	}
	if n := sinks.ConnectAll(ctx); n < len(cfg.Audit.Sinks) {
		logger.Warn("some audit sinks unavailable", "connected", n, "configured", len(cfg.Audit.Sinks))
	}

	eventLog := logging.NewEventLogger(logger.With("component", "event"))
	d := dispatch.New(dispatch.Config{
		Prefix:           cfg.Commands.Prefix,
		IdleTimeout:      cfg.Auth.IdleTimeout,
		ChallengeTimeout: cfg.Auth.ChallengeTimeout,
	}, dispatch.Deps{
		Directory: directory,
		Mailer: mailer.New(mailer.Config{
			Host:         cfg.SMTP.Host,
			Port:         cfg.SMTP.Port,
			Username:     cfg.SMTP.Username,
			Password:     cfg.SMTP.Password,
			From:         cfg.SMTP.From,
			Subject:      cfg.SMTP.Subject,
			Organization: cfg.SMTP.Organization,
			RequireTLS:   cfg.SMTP.RequireTLS,
		}, logger.With("component", "mailer")),
		Poster:   sessions,
		Auditor:  sinks,
		Logger:   logger.With("component", "dispatcher"),
		EventLog: eventLog,
	})
	authCmd, deauthCmd := d.AuthCommands()
	if err := commands.Install(d.Registry(), commands.Options{
		MACAddr:      cfg.Commands.Power.MACAddr,
		Waker:        commands.UDPWaker{Addr: cfg.Commands.Power.Broadcast},
		AuthCommands: []string{authCmd, deauthCmd},
	}); err != nil {
		return err
	}
	d.SetRoster(roster)

	queue := ingress.NewQueue()
	bridge := ingress.NewBridge(sessions.Stream(), queue, logger.With("component", "ingress"), eventLog)

	watcher := config.NewWatcher(opts.configPath, config.DefaultWatchInterval, func(next *config.Config) {
		roster, err := directory.ResolveAdminRoster(ctx, next.NormalizedAdmins())
		if err != nil {
			logger.Error("admin roster reload failed", "error", err)
			return
		}
		d.SetRoster(roster)
	}, logger.With("component", "config"), opts.overrides())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error {
		// The stream ending stops everything else.
		defer cancelRun()
		return d.Run(gctx, queue)
	})
	g.Go(func() error {
		sinks.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Keepalive(gctx, cfg.Slack.Keepalive)
		return nil
	})
	g.Go(func() error {
		watcher.Watch(gctx)
		return nil
	})

	logger.Info("command bot started",
		"config", opts.configPath,
		"admins", len(roster),
		"sinks", sinks.Names(),
	)

	err = g.Wait()
	d.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sinks.StopAll(shutdownCtx)

	if err != nil {
		logger.Error("command bot stopped with error", "error", err)
		return err
	}
	logger.Info("command bot stopped")
	return nil
}
