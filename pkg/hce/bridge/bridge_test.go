// Zaparoo Echo
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Echo.
//
// Zaparoo Echo is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Echo is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Echo.  If not, see <http://www.gnu.org/licenses/>.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBridge(t *testing.T, opts Options) (*Bridge, string) {
	t.Helper()
	b := New(opts)
	srv := httptest.NewServer(b.Router())
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, srv.URL
}

func dial(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + Path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendHello(t *testing.T, conn *websocket.Conn, hello Hello) Reply {
	t.Helper()
	data, err := newRequest("hello-1", TypeHello, hello)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "hello-1", reply.ID)
	return reply
}

func attachCompanion(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	conn := dial(t, base)
	reply := sendHello(t, conn, Hello{Platform: "android", SupportsHCE: true})
	require.True(t, reply.OK, reply.Error)
	return conn
}

// answer reads one request and replies with ok and errMsg.
func answer(t *testing.T, conn *websocket.Conn, ok bool, errMsg string) Request {
	t.Helper()
	var req Request
	require.NoError(t, conn.ReadJSON(&req))
	require.NoError(t, conn.WriteJSON(Reply{ID: req.ID, OK: ok, Error: errMsg}))
	return req
}

func TestNoCompanion(t *testing.T) {
	t.Parallel()

	b := New(Options{})
	err := b.SetEnabled(context.Background(), true)
	require.ErrorIs(t, err, ErrNoCompanion)
	require.ErrorIs(t, err, radio.ErrDriverFailure)

	_, connected := b.Companion()
	assert.False(t, connected)
}

func TestSetApplication(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	conn := attachCompanion(t, base)

	hello, connected := b.Companion()
	require.True(t, connected)
	assert.Equal(t, "android", hello.Platform)

	message := []byte{0xD1, 0x01, 0x03, 'T', 0x02, 'e', 'n'}
	reqs := make(chan Request, 1)
	go func() { reqs <- answer(t, conn, true, "") }()

	require.NoError(t, b.SetApplication(context.Background(), message))

	req := <-reqs
	assert.Equal(t, TypeSetApplication, req.Type)
	assert.NotEmpty(t, req.ID)
	var payload SetApplicationPayload
	require.NoError(t, json.Unmarshal(req.Payload, &payload))
	assert.Equal(t, message, payload.Message)
}

func TestSetEnabled(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	conn := attachCompanion(t, base)

	reqs := make(chan Request, 1)
	go func() { reqs <- answer(t, conn, true, "") }()
	require.NoError(t, b.SetEnabled(context.Background(), true))

	req := <-reqs
	assert.Equal(t, TypeSetEnabled, req.Type)
	assert.JSONEq(t, `{"enabled":true}`, string(req.Payload))
}

func TestRejected(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	conn := attachCompanion(t, base)

	go answer(t, conn, false, "nfc is off")
	err := b.SetEnabled(context.Background(), true)
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "nfc is off")
	assert.Equal(t, radio.KindDriverFailure, radio.KindOf(err))
}

func TestAckTimeout(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{AckTimeout: 50 * time.Millisecond})
	conn := attachCompanion(t, base)

	go func() {
		var req Request
		_ = conn.ReadJSON(&req)
	}()
	err := b.SetEnabled(context.Background(), false)
	require.ErrorIs(t, err, ErrAckTimeout)
}

func TestContextCancelled(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	attachCompanion(t, base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.SetEnabled(ctx, true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHelloRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		hello func() []byte
	}{
		{
			name: "no hce support",
			hello: func() []byte {
				data, _ := newRequest("hello-1", TypeHello, Hello{Platform: "ios"})
				return data
			},
		},
		{
			name: "missing platform",
			hello: func() []byte {
				data, _ := newRequest("hello-1", TypeHello, Hello{SupportsHCE: true})
				return data
			},
		},
		{
			name: "wrong type",
			hello: func() []byte {
				data, _ := newRequest("hello-1", TypeSetEnabled, SetEnabledPayload{})
				return data
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, base := startBridge(t, Options{})
			conn := dial(t, base)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, tt.hello()))

			var reply Reply
			require.NoError(t, conn.ReadJSON(&reply))
			assert.False(t, reply.OK)
			assert.NotEmpty(t, reply.Error)

			_, _, err := conn.ReadMessage()
			require.Error(t, err, "connection is closed after a rejected hello")

			_, connected := b.Companion()
			assert.False(t, connected)
		})
	}
}

func TestCompanionReplaced(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	first := attachCompanion(t, base)
	second := attachCompanion(t, base)

	_, _, err := first.ReadMessage()
	require.Error(t, err, "first companion is disconnected")

	go answer(t, second, true, "")
	require.NoError(t, b.SetEnabled(context.Background(), true))
}

func TestCompanionDisconnect(t *testing.T) {
	t.Parallel()

	b, base := startBridge(t, Options{})
	conn := attachCompanion(t, base)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, connected := b.Companion()
		return !connected
	}, 2*time.Second, 5*time.Millisecond)

	err := b.SetEnabled(context.Background(), false)
	require.ErrorIs(t, err, ErrNoCompanion)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, base := startBridge(t, Options{})

	get := func() map[string]any {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+HealthPath, http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	assert.Equal(t, false, get()["companion"])
	attachCompanion(t, base)
	body := get()
	assert.Equal(t, true, body["companion"])
	assert.Equal(t, "android", body["platform"])
}

func TestServeListener(t *testing.T) {
	t.Parallel()

	b := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			require.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestConnectRateLimited(t *testing.T) {
	t.Parallel()

	_, base := startBridge(t, Options{})
	url := "ws" + strings.TrimPrefix(base, "http") + Path

	limited := false
	for range connectBurst + 2 {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			limited = true
			break
		}
		_ = conn.Close()
	}
	assert.True(t, limited, "connection attempts past the burst are refused")
}

func TestHealthCORS(t *testing.T) {
	t.Parallel()

	_, base := startBridge(t, Options{})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+HealthPath, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "capacitor://localhost")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "capacitor://localhost", resp.Header.Get("Access-Control-Allow-Origin"))
}
