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

// Package mqtt publishes audit records to MQTT 3.1.1 brokers.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const disconnectQuiesce = 250 // milliseconds

type Sink struct {
	name   string
	broker string
	topic  string
	qos    byte
	client pahomqtt.Client
	logger *slog.Logger
}

func New(name, broker, topic string, qos byte, logger *slog.Logger) *Sink {
	if qos > 2 {
		qos = 1
	}
	return &Sink{
		name:   name,
		broker: broker,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "mqtt" }

func (s *Sink) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID("command-bot-" + s.name + "-" + uuid.New().String()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(func(pahomqtt.Client) {
			s.logger.Info("mqtt connection up", "name", s.name)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", "name", s.name, "error", err)
		})

	s.client = pahomqtt.NewClient(opts)
	if err := wait(ctx, s.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.logger.Info("mqtt sink connected", "name", s.name, "broker", s.broker)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, rec core.AuditRecord) error {
	if s.client == nil {
		return fmt.Errorf("mqtt sink %s: not connected", s.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return wait(ctx, s.client.Publish(s.topic+"/"+rec.Kind, s.qos, false, data))
}

// wait blocks on a paho token until it completes or ctx ends.
func wait(ctx context.Context, tok pahomqtt.Token) error {
	timeout := 30 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("mqtt: timed out after %s", timeout)
	}
}
