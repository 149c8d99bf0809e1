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

package ndef

import (
	"encoding/binary"
	"fmt"
	"slices"

	rawndef "github.com/ZaparooProject/go-pn532/pkg/ndef"
	"github.com/hsanjuan/go-ndef"
)

const (
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
	tlvLongLength = 0xFF
)

// DecodeRecord normalizes driver-level record fields into a Record. The byte
// slices are copied so the caller may reuse its buffers.
func DecodeRecord(tnf uint8, typ, id, payload []byte) (Record, error) {
	rec := Record{
		TNF:     TNF(tnf),
		Type:    cloneBytes(typ),
		ID:      cloneBytes(id),
		Payload: cloneBytes(payload),
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// FromNDEF converts a go-ndef record into the canonical form. The payload
// comes from the record's wire chunks: go-ndef's typed payloads re-encode
// text and URI records, which would change the bytes.
func FromNDEF(rec *ndef.Record) (Record, error) {
	if rec == nil {
		return Record{}, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}

	raw, err := rec.Marshal()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	payload, err := chunkPayload(raw)
	if err != nil {
		return Record{}, err
	}

	return DecodeRecord(rec.TNF(), []byte(rec.Type()), []byte(rec.ID()), payload)
}

// chunkPayload joins the payloads of the record chunks in raw, verbatim.
// Only the length fields of each header matter here, so the chunk flag and
// TNF are rewritten to something the raw parser accepts.
func chunkPayload(raw []byte) ([]byte, error) {
	buf := slices.Clone(raw)
	payload := []byte{}
	for off := 0; off < len(buf); {
		chunked := buf[off]&flagCF != 0
		buf[off] = buf[off]&^(flagCF|tnfMask) | byte(TNFUnknown)

		var chunk rawndef.Record
		n, err := chunk.Unmarshal(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
		payload = append(payload, chunk.Payload...)
		off += n
		if !chunked {
			break
		}
	}
	return payload, nil
}

// FromMessage converts every record of a go-ndef message, keeping wire order.
func FromMessage(msg *ndef.Message) ([]Record, error) {
	if msg == nil {
		return []Record{}, nil
	}
	records := make([]Record, 0, len(msg.Records))
	for i, r := range msg.Records {
		rec, err := FromNDEF(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeMessage parses raw NDEF message bytes (no TLV wrapper).
func DecodeMessage(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, ErrNoNDEF
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
	}

	return FromMessage(msg)
}

// DecodeTLV locates the NDEF TLV inside a tag memory dump and parses the
// message it carries.
func DecodeTLV(data []byte) ([]Record, error) {
	payload := extractNDEFPayload(data)
	if payload == nil {
		return nil, ErrNoNDEF
	}
	return DecodeMessage(payload)
}

// Decode accepts either a TLV-wrapped dump or a bare NDEF message. A bare
// message always starts with a record header carrying the MB flag.
func Decode(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, ErrNoNDEF
	}
	if data[0]&flagMB != 0 {
		return DecodeMessage(data)
	}
	return DecodeTLV(data)
}

func extractNDEFPayload(data []byte) []byte {
	for i := 0; i+1 < len(data); i++ {
		if data[i] != tlvNDEF {
			continue
		}
		if payload := extractTLVPayload(data, i); payload != nil {
			return payload
		}
	}
	return nil
}

func extractTLVPayload(data []byte, offset int) []byte {
	if offset+1 >= len(data) {
		return nil
	}

	if data[offset+1] != tlvLongLength {
		length := int(data[offset+1])
		if length > 0 && offset+2+length <= len(data) {
			return data[offset+2 : offset+2+length]
		}
		return nil
	}

	if offset+4 > len(data) {
		return nil
	}
	length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	if length > 0 && offset+4+length <= len(data) {
		return data[offset+4 : offset+4+length]
	}
	return nil
}
