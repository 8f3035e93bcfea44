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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// rtmPeer is the server side of a test RTM connection.
type rtmPeer struct {
	conn     *websocket.Conn
	received chan map[string]any
}

func rtmServer(t *testing.T, hello string) (ConnectInfo, <-chan *rtmPeer) {
	t.Helper()
	peers := make(chan *rtmPeer, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(hello))
		p := &rtmPeer{conn: conn, received: make(chan map[string]any, 16)}
		peers <- p
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(p.received)
				return
			}
			var frame map[string]any
			json.Unmarshal(data, &frame)
			p.received <- frame
		}
	}))
	t.Cleanup(srv.Close)
	return ConnectInfo{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Self: Self{ID: "B1", Name: "bot"}}, peers
}

func dialTest(t *testing.T, info ConnectInfo) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), info, nil, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func nextPeer(t *testing.T, peers <-chan *rtmPeer) *rtmPeer {
	t.Helper()
	select {
	case p := <-peers:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket peer")
		return nil
	}
}

func TestDialRequiresHello(t *testing.T) {
	info, _ := rtmServer(t, `{"type":"message","text":"hi"}`)
	_, err := Dial(context.Background(), info, nil, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSession))
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), ConnectInfo{URL: "ws://127.0.0.1:1/rtm"}, nil, quietLogger())
	assert.ErrorIs(t, err, core.ErrSession)
}

func TestRecv(t *testing.T) {
	info, peers := rtmServer(t, `{"type":"hello"}`)
	c := dialTest(t, info)
	assert.Equal(t, "bot", c.Self().Name)
	p := nextPeer(t, peers)

	p.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","user":"U1","channel":"D1","text":"$auth"}`))
	p.conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	p.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_typing","user":"U1"}`))

	evt, err := c.Recv(context.Background())
	require.NoError(t, err)
	assert.True(t, evt.IsTextMessage())
	assert.Equal(t, "$auth", evt.Text())

	_, err = c.Recv(context.Background())
	assert.ErrorIs(t, err, core.ErrMalformedEvent)

	evt, err = c.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user_typing", evt.Type())

	p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_, err = c.Recv(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecvHonoursContext(t *testing.T) {
	info, _ := rtmServer(t, `{"type":"hello"}`)
	c := dialTest(t, info)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPostMessageAssignsIncreasingIDs(t *testing.T) {
	info, peers := rtmServer(t, `{"type":"hello"}`)
	c := dialTest(t, info)
	p := nextPeer(t, peers)

	require.NoError(t, c.PostMessage(context.Background(), "D1", "one"))
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.PostMessage(context.Background(), "D1", "two"))

	var frames []map[string]any
	for i := 0; i < 3; i++ {
		select {
		case f := <-p.received:
			frames = append(frames, f)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not received")
		}
	}
	assert.Equal(t, "message", frames[0]["type"])
	assert.Equal(t, "one", frames[0]["text"])
	assert.Equal(t, "ping", frames[1]["type"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, []any{frames[0]["id"], frames[1]["id"], frames[2]["id"]})
}

func TestPostAfterCloseFails(t *testing.T) {
	info, _ := rtmServer(t, `{"type":"hello"}`)
	c := dialTest(t, info)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.PostMessage(context.Background(), "D1", "late"), core.ErrTransport)
}
