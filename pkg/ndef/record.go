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

// Package ndef converts NFC Data Exchange Format records between the shapes
// drivers hand us, the canonical Record form, diagnostic text and wire bytes.
package ndef

import (
	"errors"
	"fmt"
)

// TNF is the 3-bit Type Name Format of a record.
type TNF uint8

const (
	TNFEmpty TNF = iota
	TNFWellKnown
	TNFMedia
	TNFAbsoluteURI
	TNFExternal
	TNFUnknown
	TNFUnchanged
	TNFReserved
)

// MaxTNF is the largest value representable in the TNF field.
const MaxTNF = TNFReserved

var (
	// RTDText is the well-known type of a text record.
	RTDText = []byte("T")
	// RTDURI is the well-known type of a URI record.
	RTDURI = []byte("U")

	// ErrInvalidRecord is returned when a record violates the TNF invariants.
	ErrInvalidRecord = errors.New("invalid NDEF record")
	// ErrNoNDEF is returned when no NDEF message could be located.
	ErrNoNDEF = errors.New("no NDEF message found")
	// ErrInvalidNDEF is returned when message bytes cannot be parsed.
	ErrInvalidNDEF = errors.New("invalid NDEF format")
)

func (t TNF) String() string {
	switch t {
	case TNFEmpty:
		return "empty"
	case TNFWellKnown:
		return "well-known"
	case TNFMedia:
		return "media"
	case TNFAbsoluteURI:
		return "absolute-uri"
	case TNFExternal:
		return "external"
	case TNFUnknown:
		return "unknown"
	case TNFUnchanged:
		return "unchanged"
	case TNFReserved:
		return "reserved"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// Record is one decoded NDEF record. Type, ID and Payload are never nil once
// a record has passed through one of the decode functions.
type Record struct {
	Type    []byte `json:"type"`
	ID      []byte `json:"id"`
	Payload []byte `json:"payload"`
	TNF     TNF    `json:"tnf"`
}

// Validate checks the TNF range and the empty-record invariant.
func (r *Record) Validate() error {
	if r.TNF > MaxTNF {
		return fmt.Errorf("%w: tnf %d out of range", ErrInvalidRecord, r.TNF)
	}
	if r.TNF == TNFEmpty && (len(r.Type) > 0 || len(r.ID) > 0 || len(r.Payload) > 0) {
		return fmt.Errorf("%w: empty record must not carry type, id or payload", ErrInvalidRecord)
	}
	return nil
}

// IsText reports whether the record is a well-known text record.
func (r *Record) IsText() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == string(RTDText)
}

// IsURI reports whether the record is a well-known URI record.
func (r *Record) IsURI() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == string(RTDURI)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	return Record{
		TNF:     r.TNF,
		Type:    cloneBytes(r.Type),
		ID:      cloneBytes(r.ID),
		Payload: cloneBytes(r.Payload),
	}
}

// CloneRecords deep copies a record sequence, preserving order.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
