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

// Package httppost delivers audit records to a webhook URL.
package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const defaultTimeout = 10 * time.Second

type Sink struct {
	name       string
	url        string
	authHeader string
	client     *http.Client
	logger     *slog.Logger
}

func New(name, url, authHeader string, logger *slog.Logger) *Sink {
	return &Sink{
		name:       name,
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "webhook" }

func (s *Sink) Connect(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("webhook %s: url is required", s.name)
	}
	s.logger.Info("webhook sink ready", "name", s.name, "url", s.url)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Audit-Kind", rec.Kind)
	if s.authHeader != "" {
		req.Header.Set("Authorization", s.authHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", s.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", s.name, resp.StatusCode)
	}
	return nil
}
