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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uriRecord(code byte, suffix string) Record {
	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		ID:      []byte{},
		Payload: append([]byte{code}, suffix...),
	}
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		payload []byte
		wantErr bool
	}{
		{
			name:    "utf-8 with language",
			payload: []byte{0x02, 'e', 'n', 'h', 'e', 'l', 'l', 'o'},
			want:    "hello",
		},
		{
			name:    "no language code",
			payload: []byte{0x00, 'h', 'i'},
			want:    "hi",
		},
		{
			name:    "empty text",
			payload: []byte{0x02, 'e', 'n'},
			want:    "",
		},
		{
			name:    "utf-16 big endian",
			payload: []byte{0x82, 'e', 'n', 0x00, 'h', 0x00, 'i'},
			want:    "hi",
		},
		{
			name:    "utf-16 with little endian bom",
			payload: []byte{0x82, 'e', 'n', 0xFF, 0xFE, 'o', 0x00, 'k', 0x00},
			want:    "ok",
		},
		{
			name:    "missing status byte",
			payload: []byte{},
			wantErr: true,
		},
		{
			name:    "language longer than payload",
			payload: []byte{0x05, 'e', 'n'},
			wantErr: true,
		},
		{
			name:    "odd utf-16 length",
			payload: []byte{0x80, 0x00, 'h', 0x00},
			wantErr: true,
		},
		{
			name:    "invalid utf-8",
			payload: []byte{0x00, 0xFF, 0xFE, 0xFD},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeText(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		payload []byte
		wantErr bool
	}{
		{name: "no prefix", payload: append([]byte{0x00}, "urn:x"...), want: "urn:x"},
		{name: "http www", payload: append([]byte{0x01}, "zaparoo.org"...), want: "http://www.zaparoo.org"},
		{name: "https", payload: append([]byte{0x04}, "zaparoo.org/docs"...), want: "https://zaparoo.org/docs"},
		{name: "tel", payload: append([]byte{0x05}, "+15551234"...), want: "tel:+15551234"},
		{name: "last code", payload: append([]byte{0x23}, "sn:1"...), want: "urn:nfc:sn:1"},
		{name: "prefix only", payload: []byte{0x06}, want: "mailto:"},
		{name: "empty payload", payload: []byte{}, wantErr: true},
		{name: "code out of range", payload: []byte{0x24, 'x'}, wantErr: true},
		{name: "invalid utf-8 suffix", payload: []byte{0x03, 0xC3, 0x28}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeURI(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_MalformedRecordIsolated(t *testing.T) {
	t.Parallel()

	records := []Record{
		EncodeText("valid text"),
		{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte{}, Payload: []byte{0x05, 'e'}},
		uriRecord(0x04, "zaparoo.org"),
	}

	rendered := Render(records)
	require.Len(t, rendered, 3)

	assert.Equal(t, "text", rendered[0].Kind)
	assert.Equal(t, "valid text", rendered[0].Value)
	assert.True(t, rendered[0].Decoded)

	assert.Equal(t, "raw", rendered[1].Kind)
	assert.Equal(t, "0565", rendered[1].Value)
	assert.False(t, rendered[1].Decoded)

	assert.Equal(t, "uri", rendered[2].Kind)
	assert.Equal(t, "https://zaparoo.org", rendered[2].Value)
	assert.True(t, rendered[2].Decoded)
}

func TestRender_MalformedRecordIsolatedAfterDecode(t *testing.T) {
	t.Parallel()

	data, err := MarshalMessage([]Record{
		EncodeText("valid text"),
		{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte{}, Payload: []byte{0x05, 'e'}},
		uriRecord(0x04, "zaparoo.org"),
	})
	require.NoError(t, err)

	records, err := Decode(data)
	require.NoError(t, err)

	rendered := Render(records)
	require.Len(t, rendered, 3)
	assert.Equal(t, "text", rendered[0].Kind)
	assert.Equal(t, "valid text", rendered[0].Value)
	assert.Equal(t, "raw", rendered[1].Kind)
	assert.Equal(t, "0565", rendered[1].Value)
	assert.Equal(t, "uri", rendered[2].Kind)
	assert.Equal(t, "https://zaparoo.org", rendered[2].Value)
}

func TestRender_EmptyPayloads(t *testing.T) {
	t.Parallel()

	rendered := Render([]Record{
		{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte{}, Payload: []byte{}},
		{TNF: TNFWellKnown, Type: []byte("U"), ID: []byte{}, Payload: []byte{0x40}},
	})
	require.Len(t, rendered, 2)
	assert.Equal(t, "raw", rendered[0].Kind)
	assert.Empty(t, rendered[0].Value)
	assert.Equal(t, "raw", rendered[1].Kind)
	assert.Equal(t, "40", rendered[1].Value)
}

func TestRender_Fields(t *testing.T) {
	t.Parallel()

	records := []Record{
		{TNF: TNFMedia, Type: []byte("text/plain"), ID: []byte{0xAB, 0x01}, Payload: []byte{0x68, 0x69}},
		{TNF: TNFWellKnown, Type: []byte("Sp"), ID: []byte{}, Payload: []byte{0x01}},
	}

	rendered := Render(records)
	require.Len(t, rendered, 2)

	first := rendered[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "Record 1", first.Label())
	assert.Equal(t, "746578742f706c61696e", first.Type)
	assert.Equal(t, "ab01", first.ID)
	assert.Equal(t, "6869", first.Value)

	out := first.String()
	assert.Contains(t, out, "TNF: 2 (0x02)")
	assert.Contains(t, out, "ID: ab01")
	assert.Contains(t, out, "Payload: 6869")

	second := rendered[1]
	assert.Equal(t, 2, second.Index)
	assert.Empty(t, second.ID)
	assert.NotContains(t, second.String(), "ID:")
}

func TestRenderString(t *testing.T) {
	t.Parallel()

	out := RenderString([]Record{EncodeText("one"), uriRecord(0x00, "tel:1")})
	assert.Contains(t, out, "Record 1")
	assert.Contains(t, out, "Text: one")
	assert.Contains(t, out, "Record 2")
	assert.Contains(t, out, "URI: tel:1")
	assert.Contains(t, out, "TNF: 1 (0x01)")
	assert.Contains(t, out, "Type: 54")

	assert.Empty(t, RenderString(nil))
}

func TestTNFString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "well-known", TNFWellKnown.String())
	assert.Equal(t, "empty", TNFEmpty.String())
	assert.Equal(t, "invalid(9)", TNF(9).String())
}
