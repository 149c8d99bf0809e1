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
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
)

const dumpUIDPrefix = "uid:"

// ParseDump turns a tag dump into a snapshot. Accepted bodies are a hex NDEF
// message or Type 2 TLV area, a raw binary NDEF message, or plain text which
// becomes a single text record. An optional first line "uid:<hex>" sets the
// tag id.
func ParseDump(contents []byte, tagType string) (*tags.TagSnapshot, error) {
	snap := &tags.TagSnapshot{
		TagType:      tagType,
		TechTypes:    []string{"Ndef"},
		MaxSizeBytes: len(contents),
	}

	body := contents
	if first, rest, found := strings.Cut(string(contents), "\n"); strings.HasPrefix(first, dumpUIDPrefix) {
		uid, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(first, dumpUIDPrefix)))
		if err != nil {
			return nil, NewError(KindMalformedRecord, "parse", "invalid uid line", err)
		}
		snap.TagID = uid
		body = nil
		if found {
			body = []byte(rest)
		}
	}

	records, err := parseDumpBody(body)
	if err != nil {
		return nil, err
	}
	snap.Records = records
	return snap, nil
}

// FormatDump is the inverse of ParseDump: an optional uid line followed by
// the records as a hex Type 2 TLV area.
func FormatDump(tagID []byte, records []ndef.Record) ([]byte, error) {
	var sb strings.Builder
	if len(tagID) > 0 {
		sb.WriteString(dumpUIDPrefix)
		sb.WriteString(hex.EncodeToString(tagID))
		sb.WriteByte('\n')
	}
	if len(records) == 0 {
		return []byte(sb.String()), nil
	}

	msg, err := ndef.MarshalMessage(records)
	if err != nil {
		return nil, NewError(KindMalformedRecord, "format", "cannot encode records", err)
	}
	tlv, err := ndef.WrapTLV(msg)
	if err != nil {
		return nil, NewError(KindMalformedRecord, "format", "cannot wrap message", err)
	}
	sb.WriteString(hex.EncodeToString(tlv))
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

func parseDumpBody(body []byte) ([]ndef.Record, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return []ndef.Record{}, nil
	}

	if raw, ok := decodeHexDump(text); ok {
		if records, err := ndef.Decode(raw); err == nil {
			return records, nil
		}
	}

	if !utf8.Valid(body) {
		records, err := ndef.Decode(body)
		if err != nil {
			return nil, NewError(KindMalformedRecord, "parse", "binary dump is not an NDEF message", err)
		}
		return records, nil
	}

	return []ndef.Record{ndef.EncodeText(text)}, nil
}

func decodeHexDump(s string) ([]byte, bool) {
	s = strings.Join(strings.Fields(s), "")
	if len(s) < 2 || len(s)%2 != 0 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}
