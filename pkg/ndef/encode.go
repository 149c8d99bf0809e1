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
	"errors"
	"fmt"
	"math"

	rawndef "github.com/ZaparooProject/go-pn532/pkg/ndef"
)

// DefaultLanguage is the language code written into text records.
const DefaultLanguage = "en"

const (
	flagMB  = 0x80
	flagCF  = 0x20
	flagSR  = 0x10
	tnfMask = 0x07

	textUTF16Flag  = 0x80
	textLangMask   = 0x3F
	maxLanguageLen = textLangMask
)

// EncodeText builds a well-known text record with the default language code.
func EncodeText(text string) Record {
	rec, _ := EncodeTextLang(text, DefaultLanguage) //nolint:errcheck // default language is valid
	return rec
}

// EncodeTextLang builds a UTF-8 well-known text record: status byte, language
// code, then the text bytes.
func EncodeTextLang(text, lang string) (Record, error) {
	if lang == "" {
		lang = DefaultLanguage
	}
	if len(lang) > maxLanguageLen {
		return Record{}, fmt.Errorf("language code too long: %d bytes", len(lang))
	}

	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)))
	payload = append(payload, lang...)
	payload = append(payload, text...)

	return Record{
		TNF:     TNFWellKnown,
		Type:    cloneBytes(RTDText),
		ID:      []byte{},
		Payload: payload,
	}, nil
}

// MarshalMessage serializes records into NDEF message bytes, setting MB on
// the first record, ME on the last and SR wherever the payload fits a byte.
func MarshalMessage(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("cannot marshal empty NDEF message")
	}

	msg := &rawndef.Message{Records: make([]*rawndef.Record, 0, len(records))}
	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if len(rec.Type) > math.MaxUint8 {
			return nil, fmt.Errorf("record %d: type too long", i+1)
		}
		if len(rec.ID) > math.MaxUint8 {
			return nil, fmt.Errorf("record %d: id too long", i+1)
		}
		if uint64(len(rec.Payload)) > math.MaxUint32 {
			return nil, fmt.Errorf("record %d: payload too long", i+1)
		}
		msg.Records = append(msg.Records, &rawndef.Record{
			TNF:     byte(rec.TNF),
			Type:    string(rec.Type),
			ID:      string(rec.ID),
			Payload: rec.Payload,
		})
	}

	out, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	return out, nil
}

// WrapTLV wraps an NDEF message in a Type 2 tag NDEF TLV followed by the
// terminator TLV.
func WrapTLV(message []byte) ([]byte, error) {
	length := len(message)
	if length > math.MaxUint16 {
		return nil, errors.New("NDEF payload too large")
	}

	var header []byte
	if length < tlvLongLength {
		header = []byte{tlvNDEF, byte(length)}
	} else {
		header = []byte{tlvNDEF, tlvLongLength}
		header = binary.BigEndian.AppendUint16(header, uint16(length))
	}

	out := make([]byte, 0, len(header)+length+1)
	out = append(out, header...)
	out = append(out, message...)
	out = append(out, tlvTerminator)
	return out, nil
}
