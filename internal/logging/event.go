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

package logging

import (
	"log/slog"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// EventLogger writes one structured line per stream event and per
// dispatcher decision.
type EventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (p *EventLogger) Log(evt core.Event, direction string) {
	p.logger.Debug("event",
		"direction", direction,
		"type", evt.Type(),
		"user", evt.User(),
		"channel", evt.Channel(),
		"fields", evt.Len(),
	)
}

func (p *EventLogger) Audit(rec core.AuditRecord) {
	p.logger.Info("audit",
		"audit_id", rec.ID,
		"kind", rec.Kind,
		"user", rec.User,
		"channel", rec.Channel,
		"command", rec.Command,
		"args", len(rec.Args),
		"outcome", rec.Outcome,
		"detail", rec.Detail,
		"timestamp", rec.Timestamp,
	)
}
