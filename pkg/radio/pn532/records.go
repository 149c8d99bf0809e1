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

package pn532

import (
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-pn532"
	echondef "github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
)

const (
	mediaPrefix       = "media:"
	absoluteURIPrefix = "uri:"
	externalPrefix    = "ext:"
)

// wellKnownTypes maps the record kinds go-pn532 reports back to the TNF and
// type they were read with.
var wellKnownTypes = map[pn532.NDEFRecordType]struct {
	typ string
	tnf echondef.TNF
}{
	pn532.NDEFTypeText:        {tnf: echondef.TNFWellKnown, typ: "T"},
	pn532.NDEFTypeURI:         {tnf: echondef.TNFWellKnown, typ: "U"},
	pn532.NDEFTypeSmartPoster: {tnf: echondef.TNFWellKnown, typ: "Sp"},
	pn532.NDEFTypeWiFi:        {tnf: echondef.TNFMedia, typ: "application/vnd.wfa.wsc"},
	pn532.NDEFTypeVCard:       {tnf: echondef.TNFMedia, typ: "text/vcard"},
	pn532.NDEFTypeBluetooth:   {tnf: echondef.TNFMedia, typ: "application/vnd.bluetooth.ep.oob"},
}

// fromNDEFMessage converts the records go-pn532 read off a tag. Payloads are
// the raw bytes from the tag. Record ids are not reported by go-pn532 and
// come back empty.
func fromNDEFMessage(msg *pn532.NDEFMessage) ([]echondef.Record, error) {
	if msg == nil {
		return []echondef.Record{}, nil
	}
	records := make([]echondef.Record, 0, len(msg.Records))
	for i := range msg.Records {
		rec, err := fromNDEFRecord(&msg.Records[i])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func fromNDEFRecord(rec *pn532.NDEFRecord) (echondef.Record, error) {
	tnf, typ := echondef.TNFUnknown, ""
	kind := string(rec.Type)

	if known, ok := wellKnownTypes[rec.Type]; ok {
		tnf, typ = known.tnf, known.typ
	} else if rest, ok := strings.CutPrefix(kind, mediaPrefix); ok {
		tnf, typ = echondef.TNFMedia, rest
	} else if rest, ok := strings.CutPrefix(kind, absoluteURIPrefix); ok {
		tnf, typ = echondef.TNFAbsoluteURI, rest
	} else if rest, ok := strings.CutPrefix(kind, externalPrefix); ok {
		tnf, typ = echondef.TNFExternal, rest
	}

	out, err := echondef.DecodeRecord(uint8(tnf), []byte(typ), nil, rec.Payload)
	if err != nil {
		return echondef.Record{}, fmt.Errorf("failed to convert %q record: %w", kind, err)
	}
	return out, nil
}
