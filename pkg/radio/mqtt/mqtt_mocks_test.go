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
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockMQTTClient implements mqtt.Client for testing. Connect runs the
// OnConnect handler like a real client would.
type mockMQTTClient struct {
	connectError    error
	subscribeError  error
	messageHandler  mqtt.MessageHandler
	opts            *mqtt.ClientOptions
	subscribed      string
	mu              sync.Mutex
	disconnectCalls int
	connected       bool
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	if m.connectError != nil {
		return &mockToken{err: m.connectError, complete: true}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnectCalls++
}

func (*mockMQTTClient) Publish(_ string, _ byte, _ bool, _ any) mqtt.Token {
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if m.subscribeError != nil {
		return &mockToken{err: m.subscribeError, complete: true}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageHandler = callback
	m.subscribed = topic
	return &mockToken{complete: true}
}

func (*mockMQTTClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return &mockToken{complete: true}
}

func (*mockMQTTClient) Unsubscribe(_ ...string) mqtt.Token {
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) AddRoute(_ string, callback mqtt.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageHandler = callback
}

func (*mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (m *mockMQTTClient) publish(payload []byte) {
	m.mu.Lock()
	handler := m.messageHandler
	m.mu.Unlock()
	handler(m, &mockMessage{payload: payload})
}

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err      error
	complete bool
}

func (*mockToken) Wait() bool {
	return true
}

func (t *mockToken) WaitTimeout(_ time.Duration) bool {
	return t.complete
}

func (*mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	payload []byte
}

func (*mockMessage) Duplicate() bool   { return false }
func (*mockMessage) Qos() byte         { return 1 }
func (*mockMessage) Retained() bool    { return false }
func (*mockMessage) Topic() string     { return "echo/tags" }
func (*mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (*mockMessage) Ack()              {}
