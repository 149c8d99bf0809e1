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
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ClientFactory creates an MQTT client from options.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// DefaultClientFactory creates a real paho client.
func DefaultClientFactory(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// ParseMQTTPath parses an MQTT connection path in the format "broker:port/topic"
// and returns the broker address and topic separately.
//
// Examples:
//   - "localhost:1883/zaparoo/tags" -> ("localhost:1883", "zaparoo/tags")
//   - "mqtts://mqtt.example.com:8883/home/echo" -> ("mqtt.example.com:8883", "home/echo")
func ParseMQTTPath(path string) (broker, topic string, err error) {
	if path == "" {
		return "", "", errors.New("path cannot be empty")
	}

	urlStr := path
	if !strings.HasPrefix(path, "mqtt://") && !strings.HasPrefix(path, "mqtts://") {
		urlStr = "mqtt://" + path
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse MQTT URL: %w", err)
	}

	if u.Host == "" {
		return "", "", errors.New("broker address (host:port) is required")
	}

	topic = strings.TrimLeft(u.Path, "/")
	if topic == "" {
		return "", "", errors.New("topic is required")
	}

	return u.Host, topic, nil
}

// brokerURL returns the paho broker URL for a connection path, mapping
// mqtts:// to ssl://.
func brokerURL(path, broker string) (full string, useTLS bool) {
	if strings.HasPrefix(path, "mqtts://") {
		return "ssl://" + broker, true
	}
	return "tcp://" + broker, false
}

// NewClientOptions builds client options for a connection path.
func NewClientOptions(path, broker, username, password string) *mqtt.ClientOptions {
	full, useTLS := brokerURL(path, broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(full)
	opts.SetClientID("zaparoo-echo-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
		log.Debug().Msgf("mqtt: using authentication for %s", broker)
	}

	if useTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		log.Debug().Msgf("mqtt: using TLS for %s", broker)
	}

	return opts
}
