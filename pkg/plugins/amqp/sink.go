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

// Package amqp publishes audit records to an AMQP 1.0 broker such as
// ActiveMQ Artemis or Azure Service Bus.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Azure/go-amqp"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

type Sink struct {
	name    string
	url     string
	address string
	conn    *amqp.Conn
	session *amqp.Session
	sender  *amqp.Sender
	logger  *slog.Logger
}

func New(name, url, address string, logger *slog.Logger) *Sink {
	return &Sink{
		name:    name,
		url:     url,
		address: address,
		logger:  logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "amqp" }

func (s *Sink) Connect(ctx context.Context) error {
	if s.address == "" {
		return fmt.Errorf("amqp sink %s: address required", s.name)
	}
	var err error
	s.conn, err = amqp.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	s.session, err = s.conn.NewSession(ctx, nil)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("amqp session: %w", err)
	}
	s.sender, err = s.session.NewSender(ctx, s.address, nil)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("amqp sender: %w", err)
	}

	s.logger.Info("amqp sink connected", "name", s.name, "address", s.address)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.sender != nil {
		s.sender.Close(ctx)
	}
	if s.session != nil {
		s.session.Close(ctx)
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	if s.sender == nil {
		return fmt.Errorf("amqp sink %s: not connected", s.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	contentType := "application/json"
	subject := rec.Kind
	return s.sender.Send(ctx, &amqp.Message{
		Data: [][]byte{data},
		Properties: &amqp.MessageProperties{
			MessageID:   rec.ID,
			ContentType: &contentType,
			Subject:     &subject,
		},
	}, nil)
}
