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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apiServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for method, h := range handlers {
		mux.HandleFunc("/api/"+method, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestConnect(t *testing.T) {
	var auth string
	srv := apiServer(t, map[string]http.HandlerFunc{
		"rtm.connect": func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			writeJSON(w, map[string]any{
				"ok":   true,
				"url":  "wss://example.invalid/rtm",
				"self": map[string]any{"id": "B1", "name": "bot"},
			})
		},
	})

	c := NewClient("xoxb-test", WithBaseURL(srv.URL+"/api"), WithLogger(quietLogger()))
	info, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer xoxb-test", auth)
	assert.Equal(t, "wss://example.invalid/rtm", info.URL)
	assert.Equal(t, Self{ID: "B1", Name: "bot"}, info.Self)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not ok", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ok": false, "error": "invalid_auth"})
		}},
		{"no url", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ok": true})
		}},
		{"http error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"bad body", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := apiServer(t, map[string]http.HandlerFunc{"rtm.connect": tt.handler})
			c := NewClient("t", WithBaseURL(srv.URL+"/api/"), WithLogger(quietLogger()))
			_, err := c.Connect(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrSession))
		})
	}
}

func TestListUsersPaginates(t *testing.T) {
	var cursors []string
	srv := apiServer(t, map[string]http.HandlerFunc{
		"users.list": func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			cursor := r.PostForm.Get("cursor")
			cursors = append(cursors, cursor)
			if cursor == "" {
				writeJSON(w, map[string]any{
					"ok":                true,
					"members":           []map[string]any{{"id": "U1", "profile": map[string]any{"email": "a@example.com"}}},
					"response_metadata": map[string]any{"next_cursor": "page2"},
				})
				return
			}
			writeJSON(w, map[string]any{
				"ok":      true,
				"members": []map[string]any{{"id": "U2", "profile": map[string]any{"email": "b@example.com"}}},
			})
		},
	})

	c := NewClient("t", WithBaseURL(srv.URL+"/api"), WithLogger(quietLogger()))
	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "U1", users[0].ID)
	assert.Equal(t, "b@example.com", users[1].Profile.Email)
	assert.Equal(t, []string{"", "page2"}, cursors)
}

func directoryServer(t *testing.T) *Directory {
	t.Helper()
	srv := apiServer(t, map[string]http.HandlerFunc{
		"users.list": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{
				"ok": true,
				"members": []map[string]any{
					{"id": "U1", "profile": map[string]any{"email": "Admin@Example.com"}},
					{"id": "U2", "profile": map[string]any{"email": "user@example.com"}},
					{"id": "U3", "deleted": true, "profile": map[string]any{"email": "gone@example.com"}},
					{"id": "B1", "is_bot": true, "profile": map[string]any{"email": "bot@example.com"}},
					{"id": "U4", "profile": map[string]any{}},
				},
			})
		},
	})
	c := NewClient("t", WithBaseURL(srv.URL+"/api"), WithLogger(quietLogger()))
	return NewDirectory(c, quietLogger())
}

func TestResolveAdminRoster(t *testing.T) {
	d := directoryServer(t)
	roster, err := d.ResolveAdminRoster(context.Background(),
		[]string{"admin@example.com", "gone@example.com", "bot@example.com", "missing@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"U1": "Admin@Example.com"}, roster)
}

func TestResolveEmail(t *testing.T) {
	d := directoryServer(t)
	email, err := d.ResolveEmail(context.Background(), "U2")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)

	_, err = d.ResolveEmail(context.Background(), "U4")
	assert.ErrorIs(t, err, core.ErrDirectory)
	_, err = d.ResolveEmail(context.Background(), "U404")
	assert.ErrorIs(t, err, core.ErrDirectory)
}

func TestDirectoryPropagatesAPIError(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"users.list": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ok": false, "error": "ratelimited"})
		},
	})
	d := NewDirectory(NewClient("t", WithBaseURL(srv.URL+"/api")), quietLogger())
	_, err := d.ResolveEmail(context.Background(), "U1")
	assert.ErrorIs(t, err, core.ErrDirectory)
	assert.Contains(t, err.Error(), "ratelimited")
}
