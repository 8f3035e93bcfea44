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
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

func TestAuditWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLogger(New(&buf, slog.LevelInfo, "json"))
	el.Audit(core.AuditRecord{
		ID:        "a1",
		Kind:      "command",
		User:      "U1",
		Command:   "$power",
		Args:      []string{"on"},
		Outcome:   "dispatched",
		Timestamp: time.Unix(0, 0).UTC(),
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "audit" || line["outcome"] != "dispatched" || line["command"] != "$power" {
		t.Fatalf("unexpected audit line: %v", line)
	}
}

func TestEventLogIsDebugOnly(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLogger(New(&buf, slog.LevelInfo, "text"))
	el.Log(core.NewTextMessage("U1", "D1", "secret"), "ingress")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level, got %q", buf.String())
	}

	buf.Reset()
	el = NewEventLogger(New(&buf, slog.LevelDebug, "text"))
	el.Log(core.NewTextMessage("U1", "D1", "secret"), "ingress")
	out := buf.String()
	if !strings.Contains(out, "direction=ingress") || !strings.Contains(out, "user=U1") {
		t.Fatalf("unexpected event line: %q", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatal("message text must not be logged")
	}
}
