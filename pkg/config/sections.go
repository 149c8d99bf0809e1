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

package config

import (
	"net"
	"path/filepath"
	"strconv"
)

const (
	DriverPN532 = "pn532"
	DriverFile  = "file"
	DriverMQTT  = "mqtt"
	DriverNone  = "none"

	EmitPolicyIdentifier = "identifier"
	EmitPolicyReplay     = "replay"

	DefaultHCEPort          = 7498
	DefaultDiscoveryTimeout = 30
	DefaultAckTimeout       = 5
)

// Radio selects and configures the reader driver. Timeouts are in seconds;
// a zero discovery timeout waits until the scan is stopped.
type Radio struct {
	Driver           string `toml:"driver"`
	Transport        string `toml:"transport,omitempty"`
	Path             string `toml:"path,omitempty"`
	DiscoveryTimeout int    `toml:"discovery_timeout"`
}

// HCE configures the companion bridge used for tag emulation.
type HCE struct {
	Discovery    *bool  `toml:"discovery,omitempty"`
	Listen       string `toml:"listen,omitempty"`
	InstanceName string `toml:"instance_name,omitempty"`
	Port         int    `toml:"port"`
	AckTimeout   int    `toml:"ack_timeout"`
	Enabled      bool   `toml:"enabled"`
}

type Emit struct {
	Policy   string `toml:"policy"`
	Language string `toml:"language"`
}

type Archive struct {
	Path string `toml:"path,omitempty"`
}

func (c *Instance) Radio() Radio {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Radio
}

func (c *Instance) SetRadio(r Radio) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Radio = r
}

func (c *Instance) HCEEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.HCE.Enabled
}

func (c *Instance) SetHCEEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.HCE.Enabled = enabled
}

func (c *Instance) HCEPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hcePortLocked()
}

// hcePortLocked returns the bridge port. Caller must hold mu.
func (c *Instance) hcePortLocked() int {
	if c.vals.HCE.Port <= 0 {
		return DefaultHCEPort
	}
	return c.vals.HCE.Port
}

// HCEListen returns the bridge listen address. A configured host without a
// port gets the bridge port appended.
func (c *Instance) HCEListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	port := strconv.Itoa(c.hcePortLocked())
	listen := c.vals.HCE.Listen
	if listen == "" {
		return ":" + port
	}
	if _, _, err := net.SplitHostPort(listen); err == nil {
		return listen
	}
	return net.JoinHostPort(listen, port)
}

// HCEDiscovery reports whether the bridge is advertised over mDNS. Defaults
// to true.
func (c *Instance) HCEDiscovery() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.HCE.Discovery == nil {
		return true
	}
	return *c.vals.HCE.Discovery
}

func (c *Instance) HCEInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.HCE.InstanceName
}

func (c *Instance) HCEAckTimeout() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.HCE.AckTimeout <= 0 {
		return DefaultAckTimeout
	}
	return c.vals.HCE.AckTimeout
}

func (c *Instance) Emit() Emit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.vals.Emit
	if e.Policy == "" {
		e.Policy = EmitPolicyIdentifier
	}
	if e.Language == "" {
		e.Language = "en"
	}
	return e
}

func (c *Instance) SetEmitPolicy(policy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Emit.Policy = policy
}

// ArchivePath resolves the archive database path. Relative paths are
// relative to dataDir.
func (c *Instance) ArchivePath(dataDir string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.vals.Archive.Path
	switch {
	case p == "":
		return filepath.Join(dataDir, ArchiveFile)
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(dataDir, p)
	}
}

// LookupAuth returns credentials from auth.toml for the URL, if any.
func (c *Instance) LookupAuth(reqURL string) *CredentialEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return LookupAuth(c.auth, reqURL)
}
