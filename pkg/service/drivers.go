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

package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/config"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio/file"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio/mqtt"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio/pn532"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// AuthLookup finds credentials for a broker URL.
type AuthLookup func(reqURL string) *config.CredentialEntry

// NewDriver builds the reader driver named in the radio config. The none
// driver returns nil, which the engine reports as an unsupported radio.
//
//nolint:gocritic // config section passed by value like the accessors return it
func NewDriver(r config.Radio, fs afero.Fs, auth AuthLookup) (radio.Driver, error) {
	timeout := time.Duration(r.DiscoveryTimeout) * time.Second

	switch strings.ToLower(r.Driver) {
	case config.DriverPN532:
		return pn532.New(pn532.Options{
			Transport:        r.Transport,
			Path:             r.Path,
			DiscoveryTimeout: timeout,
		}), nil
	case config.DriverFile:
		return file.New(file.Options{
			Fs:               fs,
			Path:             r.Path,
			DiscoveryTimeout: timeout,
		}), nil
	case config.DriverMQTT:
		opts := mqtt.Options{Path: r.Path, DiscoveryTimeout: timeout}
		if auth != nil {
			if creds := auth(brokerAuthURL(r.Path)); creds != nil {
				log.Debug().Msg("mqtt reader: using credentials from auth file")
				opts.Username = creds.Username
				opts.Password = creds.Password
			}
		}
		return mqtt.New(opts), nil
	case config.DriverNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown radio driver: %q", r.Driver)
	}
}

func brokerAuthURL(path string) string {
	broker, _, err := mqtt.ParseMQTTPath(path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, "mqtts://") {
		return "mqtts://" + broker
	}
	return "mqtt://" + broker
}
