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

package tags

import (
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID(t *testing.T) {
	t.Parallel()

	created := time.UnixMilli(1760000000123)

	assert.Equal(t, "04a1b2-1760000000123", ItemID([]byte{0x04, 0xA1, 0xB2}, created))
	assert.Equal(t, "1760000000123", ItemID(nil, created))
	assert.NotEqual(t,
		ItemID([]byte{0x04}, created),
		ItemID([]byte{0x04}, created.Add(time.Millisecond)),
		"repeated scans of the same tag must get distinct ids",
	)
}

func TestItemTagID(t *testing.T) {
	t.Parallel()

	created := time.UnixMilli(1760000000123)
	assert.Equal(t, []byte{0x04, 0xA1, 0xB2}, ItemTagID(ItemID([]byte{0x04, 0xA1, 0xB2}, created)))
	assert.Nil(t, ItemTagID(ItemID(nil, created)))
	assert.Nil(t, ItemTagID("zz-1760000000123"))
}

func TestNewScannedItem_OwnsRecords(t *testing.T) {
	t.Parallel()

	snap := &TagSnapshot{
		TagID:   []byte{0x01, 0x02},
		TagType: TypeNTAG,
		Records: []ndef.Record{ndef.EncodeText("hello")},
	}
	created := time.UnixMilli(1000)

	item := NewScannedItem(snap, created)
	require.Len(t, item.Records, 1)
	assert.Equal(t, "0102-1000", item.ID)
	assert.Equal(t, created, item.CreatedAt)

	snap.Records[0].Payload[3] = 'X'
	text, err := ndef.DecodeText(item.Records[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	snap := &TagSnapshot{
		TagID:        []byte{0x04, 0xAB},
		TagType:      TypeNTAG,
		TechTypes:    []string{"NfcA", "Ndef"},
		MaxSizeBytes: 504,
		Records:      []ndef.Record{ndef.EncodeText("zap")},
	}

	out := Summary(snap)
	assert.Contains(t, out, "Tag ID: 04AB")
	assert.Contains(t, out, "Type: NTAG")
	assert.Contains(t, out, "Technologies: NfcA, Ndef")
	assert.Contains(t, out, "Max size: 504 bytes")
	assert.Contains(t, out, "Records: 1")
	assert.Contains(t, out, "Text: zap")
}

func TestSummary_UnknownMetadata(t *testing.T) {
	t.Parallel()

	out := Summary(&TagSnapshot{})
	assert.Contains(t, out, "Tag ID: unknown")
	assert.Contains(t, out, "Type: Unknown")
	assert.Contains(t, out, "Max size: unknown")
	assert.Contains(t, out, "Records: 0")
	assert.NotContains(t, out, "Technologies")
}
