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

// Package slack talks to the Slack Web API and the RTM websocket.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const (
	DefaultBaseURL = "https://slack.com/api/"
	userPageSize   = 200
)

type Self struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ConnectInfo struct {
	URL  string `json:"url"`
	Self Self   `json:"self"`
}

type Profile struct {
	Email    string `json:"email"`
	RealName string `json:"real_name"`
}

type User struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Deleted bool    `json:"deleted"`
	IsBot   bool    `json:"is_bot"`
	Profile Profile `json:"profile"`
}

type apiResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Metadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect calls rtm.connect and returns the websocket URL for one RTM
// session.
func (c *Client) Connect(ctx context.Context) (ConnectInfo, error) {
	var resp struct {
		apiResponse
		ConnectInfo
	}
	if err := c.call(ctx, "rtm.connect", nil, &resp); err != nil {
		return ConnectInfo{}, fmt.Errorf("%w: %w", core.ErrSession, err)
	}
	if !resp.OK {
		return ConnectInfo{}, fmt.Errorf("%w: rtm.connect: %s", core.ErrSession, resp.Error)
	}
	if resp.URL == "" {
		return ConnectInfo{}, fmt.Errorf("%w: rtm.connect returned no url", core.ErrSession)
	}
	c.logger.Debug("rtm.connect ok", "self", resp.Self.Name)
	return resp.ConnectInfo, nil
}

// ListUsers pages through users.list.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	cursor := ""
	for {
		params := url.Values{"limit": {fmt.Sprint(userPageSize)}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp struct {
			apiResponse
			Members []User `json:"members"`
		}
		if err := c.call(ctx, "users.list", params, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrDirectory, err)
		}
		if !resp.OK {
			return nil, fmt.Errorf("%w: users.list: %s", core.ErrDirectory, resp.Error)
		}
		users = append(users, resp.Members...)
		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			return users, nil
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	body := strings.NewReader(params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("%s: http status %d", method, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}
