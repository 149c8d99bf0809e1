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

import (
	"context"

	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
)

// Outcome classifies how a read request ended.
type Outcome int

const (
	OutcomeTagFound Outcome = iota
	OutcomeNoTag
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTagFound:
		return "tag-found"
	case OutcomeNoTag:
		return "no-tag"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// ReadResult is the classified result of Driver.RequestRead. Tag is set only
// for OutcomeTagFound, Err only for OutcomeFailed and OutcomeCancelled.
type ReadResult struct {
	Err     error
	Tag     *tags.TagSnapshot
	Outcome Outcome
}

// Found builds a tag-found result.
func Found(tag *tags.TagSnapshot) ReadResult {
	return ReadResult{Outcome: OutcomeTagFound, Tag: tag}
}

// NoTag builds a no-tag result.
func NoTag() ReadResult {
	return ReadResult{Outcome: OutcomeNoTag}
}

// Failed classifies a driver error into a result.
func Failed(err error) ReadResult {
	return ReadResult{Outcome: ClassifyReadError(err), Err: err}
}

// Availability is the radio hardware state.
type Availability int

const (
	Ready Availability = iota
	// Disabled means the radio exists but is switched off or unplugged.
	Disabled
	// Unsupported means this device has no radio at all.
	Unsupported
)

func (a Availability) String() string {
	switch a {
	case Ready:
		return "ready"
	case Disabled:
		return "disabled"
	case Unsupported:
		return "unsupported"
	default:
		return "invalid"
	}
}

// DriverMetadata is static information about a driver.
type DriverMetadata struct {
	ID          string
	Description string
}

// Driver is the platform radio a session reads tags through.
type Driver interface {
	// Metadata returns static information about this driver.
	Metadata() DriverMetadata
	// Availability reports whether the radio can be used right now.
	Availability(ctx context.Context) Availability
	// RequestRead starts one discovery attempt and blocks until a tag is
	// read, the driver gives up, or ctx is cancelled. Only one request is
	// outstanding at a time.
	RequestRead(ctx context.Context) ReadResult
	// CancelRead asks the driver to abort the outstanding request.
	CancelRead(ctx context.Context) error
	// Close releases the radio.
	Close() error
}
