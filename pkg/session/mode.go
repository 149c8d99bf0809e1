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

package session

import (
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
)

// ModeKind enumerates the engine modes.
type ModeKind int

const (
	ModeIdle ModeKind = iota
	ModeScanning
	ModeEmitting
)

// Mode is the single active use of the radio. ItemID is set only while
// emitting.
type Mode struct {
	ItemID string
	Kind   ModeKind
}

func Idle() Mode {
	return Mode{Kind: ModeIdle}
}

func Scanning() Mode {
	return Mode{Kind: ModeScanning}
}

func Emitting(itemID string) Mode {
	return Mode{Kind: ModeEmitting, ItemID: itemID}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeIdle:
		return "idle"
	case ModeScanning:
		return "scanning"
	case ModeEmitting:
		return "emitting(" + m.ItemID + ")"
	default:
		return "invalid"
	}
}

// IsEmitting reports whether the mode is emitting the given item.
func (m Mode) IsEmitting(itemID string) bool {
	return m.Kind == ModeEmitting && m.ItemID == itemID
}

const (
	msgScanWhileEmitting = "cannot scan while emitting"
	msgEmitWhileScanning = "cannot emit while scanning"
)

// guardScan decides whether StartScan may begin a new read from mode m.
func guardScan(m Mode) error {
	if m.Kind == ModeEmitting {
		return radio.NewError(radio.KindBusy, "start scan", msgScanWhileEmitting, nil)
	}
	return nil
}

// guardEmit decides whether StartEmit may touch the HCE channel from mode m.
func guardEmit(m Mode) error {
	if m.Kind == ModeScanning {
		return radio.NewError(radio.KindBusy, "start emit", msgEmitWhileScanning, nil)
	}
	return nil
}
