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

// Package redis writes audit records to a Redis stream or pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type Sink struct {
	name    string
	addr    string
	stream  string
	channel string
	maxLen  int64
	client  *redis.Client
	logger  *slog.Logger
}

// New builds a sink. Records go to stream (XADD, trimmed to about maxLen
// entries when maxLen > 0) and to channel (PUBLISH); at least one must be
// set.
func New(name, addr, stream, channel string, maxLen int64, logger *slog.Logger) *Sink {
	return &Sink{
		name:    name,
		addr:    addr,
		stream:  stream,
		channel: channel,
		maxLen:  maxLen,
		logger:  logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "redis" }

func (s *Sink) Connect(ctx context.Context) error {
	if s.stream == "" && s.channel == "" {
		return fmt.Errorf("redis sink %s: stream or channel required", s.name)
	}
	s.client = redis.NewClient(&redis.Options{
		Addr: s.addr,
	})
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.client.Close()
		s.client = nil
		return fmt.Errorf("redis connection failed: %w", err)
	}
	s.logger.Info("redis sink connected", "name", s.name, "addr", s.addr, "stream", s.stream, "channel", s.channel)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	if s.client == nil {
		return fmt.Errorf("redis sink %s: not connected", s.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	if s.stream != "" {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{
				"id":      rec.ID,
				"kind":    rec.Kind,
				"user":    rec.User,
				"outcome": rec.Outcome,
				"record":  data,
			},
		})
	}
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
