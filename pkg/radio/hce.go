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

package radio

import "context"

const defaultHCEReason = "host card emulation not supported"

// HCEChannel is a host-card emulation channel serving a single application
// id.
type HCEChannel interface {
	// SetApplication loads the NDEF message the emulated tag will serve.
	SetApplication(ctx context.Context, message []byte) error
	// SetEnabled starts or stops emulation.
	SetEnabled(ctx context.Context, enabled bool) error
}

// HCE is the host-card emulation capability of this device: either an
// available channel or a reason it is missing.
type HCE struct {
	channel HCEChannel
	reason  string
}

// Available wraps a usable channel.
func Available(ch HCEChannel) HCE {
	if ch == nil {
		return Unavailable("no channel")
	}
	return HCE{channel: ch}
}

// Unavailable marks emulation as missing on this device.
func Unavailable(reason string) HCE {
	if reason == "" {
		reason = defaultHCEReason
	}
	return HCE{reason: reason}
}

// Channel returns the channel and true when emulation is available.
func (h HCE) Channel() (HCEChannel, bool) {
	return h.channel, h.channel != nil
}

// Supported reports whether emulation is available.
func (h HCE) Supported() bool {
	return h.channel != nil
}

// Reason explains why emulation is unavailable.
func (h HCE) Reason() string {
	if h.channel == nil && h.reason == "" {
		return defaultHCEReason
	}
	return h.reason
}
