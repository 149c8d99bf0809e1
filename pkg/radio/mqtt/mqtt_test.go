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

package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDriver(opts Options) (*Driver, *mockMQTTClient) {
	client := &mockMQTTClient{}
	if opts.Path == "" {
		opts.Path = "localhost:1883/echo/tags"
	}
	opts.ClientFactory = func(o *mqtt.ClientOptions) mqtt.Client {
		client.opts = o
		return client
	}
	return New(opts), client
}

func TestParseMQTTPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantBroker string
		wantTopic  string
		wantErr    bool
	}{
		{name: "plain", path: "localhost:1883/echo/tags", wantBroker: "localhost:1883", wantTopic: "echo/tags"},
		{name: "mqtts", path: "mqtts://broker.example.com:8883/home", wantBroker: "broker.example.com:8883", wantTopic: "home"},
		{name: "empty", path: "", wantErr: true},
		{name: "no topic", path: "localhost:1883", wantErr: true},
		{name: "no host", path: "mqtt:///topic", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			broker, topic, err := ParseMQTTPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBroker, broker)
			assert.Equal(t, tt.wantTopic, topic)
		})
	}
}

func TestNewClientOptions(t *testing.T) {
	t.Parallel()

	opts := NewClientOptions("mqtts://b:8883/t", "b:8883", "user", "pass")
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl", opts.Servers[0].Scheme)
	assert.Equal(t, "user", opts.Username)
	assert.NotNil(t, opts.TLSConfig)
	assert.Contains(t, opts.ClientID, "zaparoo-echo-")

	plain := NewClientOptions("b:1883/t", "b:1883", "", "")
	assert.Equal(t, "tcp", plain.Servers[0].Scheme)
	assert.Empty(t, plain.Username)
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	d, client := newMockDriver(Options{})
	assert.Equal(t, radio.Ready, d.Availability(context.Background()))
	assert.Equal(t, "echo/tags", client.subscribed)

	bad := New(Options{Path: "localhost:1883"})
	assert.Equal(t, radio.Unsupported, bad.Availability(context.Background()))

	down, downClient := newMockDriver(Options{})
	downClient.connectError = errors.New("connection refused")
	assert.Equal(t, radio.Disabled, down.Availability(context.Background()))
	assert.Equal(t, 1, downClient.disconnectCalls)
}

func TestRequestRead_Message(t *testing.T) {
	t.Parallel()

	d, client := newMockDriver(Options{})
	require.Equal(t, radio.Ready, d.Availability(context.Background()))

	// messages outside a read are dropped
	client.publish([]byte("too early"))

	done := make(chan radio.ReadResult, 1)
	go func() { done <- d.RequestRead(context.Background()) }()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.pending != nil
	}, time.Second, time.Millisecond)
	client.publish([]byte("uid:0a0b\nhello"))

	select {
	case res := <-done:
		require.Equal(t, radio.OutcomeTagFound, res.Outcome)
		assert.Equal(t, tags.TypeMQTT, res.Tag.TagType)
		assert.Equal(t, []byte{0x0A, 0x0B}, res.Tag.TagID)
		require.Len(t, res.Tag.Records, 1)
		text, err := ndef.DecodeText(res.Tag.Records[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("read never completed")
	}
}

func TestRequestRead_Timeout(t *testing.T) {
	t.Parallel()

	d, _ := newMockDriver(Options{DiscoveryTimeout: 20 * time.Millisecond})
	res := d.RequestRead(context.Background())
	assert.Equal(t, radio.OutcomeNoTag, res.Outcome)
}

func TestRequestRead_Cancel(t *testing.T) {
	t.Parallel()

	d, _ := newMockDriver(Options{})
	done := make(chan radio.ReadResult, 1)
	go func() { done <- d.RequestRead(context.Background()) }()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.cancel != nil
	}, time.Second, time.Millisecond)
	require.NoError(t, d.CancelRead(context.Background()))

	select {
	case res := <-done:
		assert.Equal(t, radio.OutcomeCancelled, res.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not stop")
	}
}

func TestRequestRead_ConnectFailure(t *testing.T) {
	t.Parallel()

	d, client := newMockDriver(Options{})
	client.connectError = errors.New("not authorized")

	res := d.RequestRead(context.Background())
	assert.Equal(t, radio.OutcomeFailed, res.Outcome)
	require.ErrorContains(t, res.Err, "not authorized")
}

func TestClose(t *testing.T) {
	t.Parallel()

	d, client := newMockDriver(Options{})
	require.Equal(t, radio.Ready, d.Availability(context.Background()))
	require.NoError(t, d.Close())
	assert.False(t, client.IsConnected())
}
