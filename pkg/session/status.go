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
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
)

// StatusKind is the classified outcome reported to the UI.
type StatusKind int

const (
	StatusReady StatusKind = iota
	StatusScanning
	StatusTagRead
	StatusNoTag
	StatusScanCancelled
	StatusScanFailed
	StatusEmitting
	StatusEmitStopped
	StatusEmitFailed
	StatusBusy
	StatusUnsupported
	StatusDisabled
	StatusDeleted
	StatusDeleteFailed
)

var statusKindNames = [...]string{
	StatusReady:         "ready",
	StatusScanning:      "scanning",
	StatusTagRead:       "tag_read",
	StatusNoTag:         "no_tag",
	StatusScanCancelled: "scan_cancelled",
	StatusScanFailed:    "scan_failed",
	StatusEmitting:      "emitting",
	StatusEmitStopped:   "emit_stopped",
	StatusEmitFailed:    "emit_failed",
	StatusBusy:          "busy",
	StatusUnsupported:   "unsupported",
	StatusDisabled:      "disabled",
	StatusDeleted:       "deleted",
	StatusDeleteFailed:  "delete_failed",
}

func (k StatusKind) String() string {
	if k < 0 || int(k) >= len(statusKindNames) {
		return fmt.Sprintf("status(%d)", int(k))
	}
	return statusKindNames[k]
}

// Status is one engine status transition.
type Status struct {
	Time   time.Time
	Err    error
	Item   *tags.ScannedItem
	ItemID string
	Mode   Mode
	Kind   StatusKind
}

// IsTerminalScan reports whether the status ends a scan attempt.
func (s *Status) IsTerminalScan() bool {
	switch s.Kind {
	case StatusTagRead, StatusNoTag, StatusScanCancelled, StatusScanFailed:
		return true
	default:
		return false
	}
}

// Text is the short user-facing status line.
func (s *Status) Text() string {
	switch s.Kind {
	case StatusReady:
		return "Ready"
	case StatusScanning:
		return "Hold a tag near the reader"
	case StatusTagRead:
		if s.Item != nil {
			return "Tag read: " + s.Item.ID
		}
		return "Tag read"
	case StatusNoTag:
		return "No tag found"
	case StatusScanCancelled:
		return "Scan cancelled"
	case StatusScanFailed:
		return withErr("Scan failed", s.Err)
	case StatusEmitting:
		return "Emitting " + s.ItemID
	case StatusEmitStopped:
		return "Stopped emitting " + s.ItemID
	case StatusEmitFailed:
		return withErr("Emit failed", s.Err)
	case StatusBusy:
		return withErr("Busy", s.Err)
	case StatusUnsupported:
		return withErr("Not supported on this device", s.Err)
	case StatusDisabled:
		return "NFC is turned off, enable it in settings"
	case StatusDeleted:
		return "Deleted " + s.ItemID
	case StatusDeleteFailed:
		return withErr("Delete failed", s.Err)
	default:
		return fmt.Sprintf("status(%d)", int(s.Kind))
	}
}

func withErr(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}
