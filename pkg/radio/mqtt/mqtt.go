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

// Package mqtt is a radio driver that receives tag dumps published by a
// remote reader on an MQTT topic. A message only counts as a tag while a read
// is outstanding.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	DriverID       = "mqtt"
	connectTimeout = 5 * time.Second
)

type Options struct {
	ClientFactory    ClientFactory
	Path             string
	Username         string
	Password         string
	DiscoveryTimeout time.Duration
}

type Driver struct {
	client   mqtt.Client
	factory  ClientFactory
	pending  chan []byte
	cancel   context.CancelFunc
	opts     Options
	broker   string
	topic    string
	parseErr error
	mu       syncutil.Mutex
	readMu   syncutil.Mutex
}

func New(opts Options) *Driver {
	d := &Driver{opts: opts, factory: opts.ClientFactory}
	if d.factory == nil {
		d.factory = DefaultClientFactory
	}
	d.broker, d.topic, d.parseErr = ParseMQTTPath(opts.Path)
	return d
}

func (*Driver) Metadata() radio.DriverMetadata {
	return radio.DriverMetadata{
		ID:          DriverID,
		Description: "Remote reader over MQTT",
	}
}

// Availability reports Unsupported for an unusable path and Disabled when
// the broker cannot be reached.
func (d *Driver) Availability(context.Context) radio.Availability {
	if d.parseErr != nil {
		log.Debug().Err(d.parseErr).Msg("mqtt reader: invalid path")
		return radio.Unsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.connectLocked(); err != nil {
		log.Debug().Err(err).Msg("mqtt reader: broker unavailable")
		return radio.Disabled
	}
	return radio.Ready
}

func (d *Driver) connectLocked() error {
	if d.client != nil && d.client.IsConnected() {
		return nil
	}

	opts := NewClientOptions(d.opts.Path, d.broker, d.opts.Username, d.opts.Password)
	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Msgf("mqtt reader: connected to %s", d.broker)
		token := client.Subscribe(d.topic, 1, d.handleMessage)
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msgf("mqtt reader: failed to subscribe to %s", d.topic)
			return
		}
		log.Info().Msgf("mqtt reader: subscribed to topic %s", d.topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt reader: connection lost")
	}

	client := d.factory(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return errors.New("failed to connect to MQTT broker: connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	d.client = client
	return nil
}

func (d *Driver) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) == 0 {
		log.Debug().Msg("mqtt reader: ignoring empty message")
		return
	}

	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()
	if pending == nil {
		log.Debug().Msg("mqtt reader: no read outstanding, dropping message")
		return
	}

	select {
	case pending <- append([]byte(nil), payload...):
	default:
		log.Debug().Msg("mqtt reader: read already has a message, dropping")
	}
}

// RequestRead waits for the next message on the topic.
func (d *Driver) RequestRead(ctx context.Context) radio.ReadResult {
	if d.parseErr != nil {
		return radio.Failed(fmt.Errorf("failed to parse MQTT path: %w", d.parseErr))
	}

	d.readMu.Lock()
	defer d.readMu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	pending := make(chan []byte, 1)

	d.mu.Lock()
	if err := d.connectLocked(); err != nil {
		d.mu.Unlock()
		cancel()
		return radio.Failed(err)
	}
	d.pending = pending
	d.cancel = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.pending = nil
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	var timeout <-chan time.Time
	if d.opts.DiscoveryTimeout > 0 {
		timer := time.NewTimer(d.opts.DiscoveryTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case payload := <-pending:
		snap, err := radio.ParseDump(payload, tags.TypeMQTT)
		if err != nil {
			return radio.Failed(err)
		}
		log.Debug().Int("records", len(snap.Records)).Msg("mqtt reader: received tag")
		return radio.Found(snap)
	case <-timeout:
		return radio.NoTag()
	case <-readCtx.Done():
		return radio.Failed(readCtx.Err())
	}
}

func (d *Driver) CancelRead(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *Driver) Close() error {
	_ = d.CancelRead(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil && d.client.IsConnected() {
		log.Debug().Msg("mqtt reader: disconnecting")
		d.client.Disconnect(250)
	}
	d.client = nil
	return nil
}
