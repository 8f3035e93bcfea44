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

package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// Directory resolves users through users.list. Every call fetches a fresh
// listing.
type Directory struct {
	client *Client
	logger *slog.Logger
}

func NewDirectory(client *Client, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{client: client, logger: logger}
}

// ResolveAdminRoster maps the configured admin emails to user ids. Emails
// compare case-insensitively. Deleted users and bots never qualify, and
// emails with no matching user are logged and skipped.
func (d *Directory) ResolveAdminRoster(ctx context.Context, emails []string) (map[string]string, error) {
	users, err := d.client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[strings.ToLower(strings.TrimSpace(e))] = true
	}

	roster := make(map[string]string)
	found := make(map[string]bool)
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		email := strings.ToLower(u.Profile.Email)
		if email != "" && wanted[email] {
			roster[u.ID] = u.Profile.Email
			found[email] = true
		}
	}
	for e := range wanted {
		if !found[e] {
			d.logger.Warn("admin email has no matching user", "email", e)
		}
	}
	return roster, nil
}

func (d *Directory) ResolveEmail(ctx context.Context, userID string) (string, error) {
	users, err := d.client.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.ID != userID {
			continue
		}
		if u.Profile.Email == "" {
			return "", fmt.Errorf("%w: user %s has no email", core.ErrDirectory, userID)
		}
		return u.Profile.Email, nil
	}
	return "", fmt.Errorf("%w: user %s not found", core.ErrDirectory, userID)
}
