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

package plugins

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/config"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/amqp"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/httpget"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/httppost"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/kafka"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/mqtt"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/mqtt5"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/rabbitmq"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/redis"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/solace"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/sse"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/plugins/ws"
)

// Build constructs the sink described by sc without connecting it.
func Build(sc config.SinkConfig, logger *slog.Logger) (core.Sink, error) {
	c := sc.Config
	logger = logger.With("sink", sc.Name)
	switch sc.Type {
	case "kafka":
		return kafka.New(sc.Name, splitList(c["brokers"]), c["topic"], logger), nil
	case "rabbitmq":
		return rabbitmq.New(sc.Name, c["url"], c["queue"], logger), nil
	case "mqtt5":
		return mqtt5.New(sc.Name, c["broker"], c["topic"], logger), nil
	case "mqtt":
		qos := 1
		if v := c["qos"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 2 {
				return nil, fmt.Errorf("sink %s: qos %q must be 0, 1 or 2", sc.Name, v)
			}
			qos = n
		}
		return mqtt.New(sc.Name, c["broker"], c["topic"], byte(qos), logger), nil
	case "amqp":
		return amqp.New(sc.Name, c["url"], c["address"], logger), nil
	case "solace":
		return solace.New(sc.Name, c["host"], c["vpn"], c["username"], c["password"], c["topic"], logger), nil
	case "redis":
		var maxLen int64
		if v := c["max_len"]; v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("sink %s: max_len %q must be a non-negative integer", sc.Name, v)
			}
			maxLen = n
		}
		return redis.New(sc.Name, c["addr"], c["stream"], c["channel"], maxLen, logger), nil
	case "sse":
		return sse.New(sc.Name, c["addr"], logger), nil
	case "websocket":
		return ws.New(sc.Name, c["addr"], logger), nil
	case "webhook":
		return httppost.New(sc.Name, c["url"], c["auth_header"], logger), nil
	case "http_get":
		limit := 0
		if v := c["limit"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("sink %s: limit %q must be a positive integer", sc.Name, v)
			}
			limit = n
		}
		return httpget.New(sc.Name, c["addr"], limit, logger), nil
	default:
		return nil, fmt.Errorf("sink %s: unknown type %q", sc.Name, sc.Type)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
