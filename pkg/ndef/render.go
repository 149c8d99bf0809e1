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
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// URIPrefixes is the NFC Forum URI RTD abbreviation table, indexed by the
// identifier code in the first payload byte.
var URIPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

var (
	errTextTooShort = errors.New("text payload too short")
	errURITooShort  = errors.New("URI payload too short")
)

// DecodeTextFull decodes a text record payload and also returns its language
// code.
func DecodeTextFull(payload []byte) (text, lang string, err error) {
	if len(payload) < 1 {
		return "", "", errTextTooShort
	}

	status := payload[0]
	langLen := int(status & textLangMask)
	if len(payload) < 1+langLen {
		return "", "", fmt.Errorf("invalid text payload length: language code needs %d bytes", langLen)
	}

	lang = string(payload[1 : 1+langLen])
	body := payload[1+langLen:]

	if status&textUTF16Flag == 0 {
		if !utf8.Valid(body) {
			return "", "", errors.New("text payload is not valid UTF-8")
		}
		return string(body), lang, nil
	}

	if len(body)%2 != 0 {
		return "", "", fmt.Errorf("invalid UTF-16 text length: %d", len(body))
	}
	// UTF-16 text records default to big endian unless a BOM says otherwise.
	decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode UTF-16 text: %w", err)
	}
	return string(decoded), lang, nil
}

// DecodeText decodes a text record payload, discarding the language code.
func DecodeText(payload []byte) (string, error) {
	text, _, err := DecodeTextFull(payload)
	return text, err
}

// DecodeURI expands a URI record payload against URIPrefixes.
func DecodeURI(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", errURITooShort
	}

	code := int(payload[0])
	if code >= len(URIPrefixes) {
		return "", fmt.Errorf("invalid URI prefix code: %d", code)
	}

	suffix := payload[1:]
	if !utf8.Valid(suffix) {
		return "", errors.New("URI payload is not valid UTF-8")
	}
	return URIPrefixes[code] + string(suffix), nil
}

// RenderedRecord is the diagnostic view of one record.
type RenderedRecord struct {
	// Kind is "text", "uri" or "raw". Raw is also used when a text or URI
	// record failed to decode.
	Kind    string
	Type    string
	ID      string
	Value   string
	Index   int
	TNF     TNF
	Decoded bool
}

// Label is the 1-based record label.
func (r RenderedRecord) Label() string {
	return fmt.Sprintf("Record %d", r.Index)
}

func (r RenderedRecord) String() string {
	var sb strings.Builder
	sb.WriteString(r.Label())
	sb.WriteString("\n")
	_, _ = fmt.Fprintf(&sb, "  TNF: %d (0x%02X)\n", uint8(r.TNF), uint8(r.TNF))
	_, _ = fmt.Fprintf(&sb, "  Type: %s\n", r.Type)
	if r.ID != "" {
		_, _ = fmt.Fprintf(&sb, "  ID: %s\n", r.ID)
	}
	switch r.Kind {
	case "text":
		_, _ = fmt.Fprintf(&sb, "  Text: %s\n", r.Value)
	case "uri":
		_, _ = fmt.Fprintf(&sb, "  URI: %s\n", r.Value)
	default:
		_, _ = fmt.Fprintf(&sb, "  Payload: %s\n", r.Value)
	}
	return sb.String()
}

// Render produces one diagnostic entry per record, in order. A record whose
// payload cannot be decoded falls back to a hex dump without affecting the
// rest of the batch.
func Render(records []Record) []RenderedRecord {
	out := make([]RenderedRecord, 0, len(records))
	for i := range records {
		out = append(out, renderRecord(i+1, &records[i]))
	}
	return out
}

// RenderString joins the rendered records into one block of text.
func RenderString(records []Record) string {
	rendered := Render(records)
	parts := make([]string, 0, len(rendered))
	for _, r := range rendered {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, "\n")
}

func renderRecord(index int, rec *Record) RenderedRecord {
	out := RenderedRecord{
		Index: index,
		TNF:   rec.TNF,
		Type:  hex.EncodeToString(rec.Type),
		Kind:  "raw",
		Value: hex.EncodeToString(rec.Payload),
	}
	if len(rec.ID) > 0 {
		out.ID = hex.EncodeToString(rec.ID)
	}

	switch {
	case rec.IsText():
		if text, err := DecodeText(rec.Payload); err == nil {
			out.Kind, out.Value, out.Decoded = "text", text, true
		}
	case rec.IsURI():
		if uri, err := DecodeURI(rec.Payload); err == nil {
			out.Kind, out.Value, out.Decoded = "uri", uri, true
		}
	}

	return out
}
