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

import "context"

// Stream is the receiving half of a chat session. Recv blocks until the
// next frame arrives.
type Stream interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Poster sends a text message to a channel. Failures wrap ErrTransport.
type Poster interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// Directory resolves platform users. Failures wrap ErrDirectory.
type Directory interface {
	ResolveAdminRoster(ctx context.Context, emails []string) (map[string]string, error)
	ResolveEmail(ctx context.Context, userID string) (string, error)
}

// Mailer delivers one-time authorization codes. Failures wrap ErrDelivery.
type Mailer interface {
	SendOneTimeCode(ctx context.Context, email, code string) error
}

// Sink receives audit records from the dispatcher.
type Sink interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, record AuditRecord) error
}
