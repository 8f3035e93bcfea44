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

package core

import (
	"encoding/json"
	"log/slog"
	"maps"
	"time"
)

const (
	EventTypeMessage  = "message"
	EventTypeHello    = "hello"
	EventTypeShutdown = "shutdown"
)

// Event is a decoded frame from the chat stream. The underlying map is
// never modified after construction; readers share it freely.
type Event struct {
	fields map[string]any
}

// NewEvent takes a deep copy of fields so later changes by the caller are
// not observed by consumers of the event.
func NewEvent(fields map[string]any) Event {
	return Event{fields: deepCopy(fields)}
}

// NewTextMessage builds a plain text message event.
func NewTextMessage(user, channel, text string) Event {
	return NewEvent(map[string]any{
		"type":    EventTypeMessage,
		"user":    user,
		"channel": channel,
		"text":    text,
	})
}

// ShutdownEvent is pushed by the ingress bridge when the stream ends.
func ShutdownEvent() Event {
	return NewEvent(map[string]any{"type": EventTypeShutdown})
}

func (e Event) Type() string    { return e.StringField("type") }
func (e Event) User() string    { return e.StringField("user") }
func (e Event) Channel() string { return e.StringField("channel") }
func (e Event) Text() string    { return e.StringField("text") }

func (e Event) IsShutdown() bool { return e.Type() == EventTypeShutdown }

// IsTextMessage reports whether the event is a plain user message. Edits,
// bot messages and other subtypes are not classified as commands.
func (e Event) IsTextMessage() bool {
	if e.Type() != EventTypeMessage {
		return false
	}
	if _, ok := e.fields["subtype"]; ok {
		return false
	}
	_, hasUser := e.fields["user"]
	_, hasText := e.fields["text"]
	return hasUser && hasText
}

// Field returns the raw value stored under name.
func (e Event) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// StringField returns the named field when it holds a string.
func (e Event) StringField(name string) string {
	s, _ := e.fields[name].(string)
	return s
}

// Fields returns a deep copy of the event's fields.
func (e Event) Fields() map[string]any {
	return deepCopy(e.fields)
}

// Clone returns an independent copy of the event.
func (e Event) Clone() Event {
	return Event{fields: deepCopy(e.fields)}
}

func (e Event) Len() int { return len(e.fields) }

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.fields)
}

// UnmarshalJSON decodes a raw stream frame.
func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	e.fields = fields
	return nil
}

func (e Event) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.fields))
	for k, v := range e.fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case map[string]string:
		return maps.Clone(val)
	case []any:
		cp := make([]any, len(val))
		for i, elem := range val {
			cp[i] = copyValue(elem)
		}
		return cp
	default:
		return val
	}
}

// CommandClass declares who may invoke a registered command.
type CommandClass int

const (
	ClassUser CommandClass = iota
	ClassAdmin
)

func (c CommandClass) String() string {
	if c == ClassAdmin {
		return "admin"
	}
	return "user"
}

// AuditRecord describes one decision taken by the dispatcher. Records are
// published to every configured sink.
type AuditRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	User      string    `json:"user,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Command   string    `json:"command,omitempty"`
	Args      []string  `json:"args,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
