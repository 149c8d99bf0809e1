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
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD service type companions browse for.
const ServiceType = "_zaparoo-echo._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// filterInterfaces keeps interfaces that are up, non-loopback,
// multicast-capable and not virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lowerName := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return true
		}
	}
	return false
}

// Register announces the service. Replaceable in tests.
type Register func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (Server, error)

// Server is a running mDNS registration.
type Server interface {
	Shutdown()
}

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (Server, error) {
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return server, nil
}

type DiscoveryOptions struct {
	Register     Register
	Interfaces   func() ([]net.Interface, error)
	InstanceName string
	DeviceID     string
	Version      string
	Port         int
}

// Discovery advertises the bridge over mDNS so companions can find it
// without manual configuration.
type Discovery struct {
	server       Server
	cancelFunc   context.CancelFunc
	opts         DiscoveryOptions
	instanceName string
	mu           syncutil.Mutex
	stopped      bool
}

func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.Register == nil {
		opts.Register = zeroconfRegister
	}
	if opts.Interfaces == nil {
		opts.Interfaces = net.Interfaces
	}
	return &Discovery{opts: opts}
}

// Start begins advertising. When the network is not ready yet it keeps
// retrying in the background for a while.
func (d *Discovery) Start() {
	d.instanceName = d.resolveInstanceName()

	if d.tryRegister() {
		return
	}

	log.Info().
		Dur("retryInterval", retryInterval).
		Dur("maxDuration", maxRetryDuration).
		Msg("mDNS registration failed, retrying in background")

	ctx, cancel := context.WithTimeout(context.Background(), maxRetryDuration)
	d.mu.Lock()
	d.cancelFunc = cancel
	d.mu.Unlock()

	go d.retryLoop(ctx)
}

func (d *Discovery) tryRegister() bool {
	all, err := d.opts.Interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces found for mDNS")
		return false
	}

	txt := []string{
		"id=" + d.opts.DeviceID,
		"version=" + d.opts.Version,
		"path=" + Path,
	}
	server, err := d.opts.Register(d.instanceName, ServiceType, "local.", d.opts.Port, txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return false
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		server.Shutdown()
		return false
	}
	d.server = server
	d.mu.Unlock()

	log.Info().
		Str("instance", d.instanceName).
		Int("port", d.opts.Port).
		Str("type", ServiceType).
		Msg("mDNS advertising started")
	return true
}

func (d *Discovery) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d.tryRegister() {
				log.Info().Msg("mDNS registration succeeded after retry")
				return
			}
		case <-ctx.Done():
			log.Warn().Msg("mDNS registration retry timed out, companions must connect manually")
			return
		}
	}
}

// Stop withdraws the advertisement. Safe to call more than once.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.cancelFunc != nil {
		d.cancelFunc()
		d.cancelFunc = nil
	}
	if d.server != nil {
		log.Debug().Msg("stopping mDNS advertising")
		d.server.Shutdown()
		d.server = nil
	}
}

func (d *Discovery) InstanceName() string {
	return d.instanceName
}

// resolveInstanceName prefers the configured name, then the hostname.
func (d *Discovery) resolveInstanceName() string {
	if d.opts.InstanceName != "" {
		return d.opts.InstanceName
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		log.Warn().Err(err).Msg("failed to get hostname, using fallback")
		if len(d.opts.DeviceID) >= 8 {
			return "echo-" + d.opts.DeviceID[:8]
		}
		return "zaparoo-echo"
	}
	return hostname
}
