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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
)

const (
	TypeNTAG    = "NTAG"
	TypeMifare  = "MIFARE"
	TypeFeliCa  = "FeliCa"
	TypeISODep  = "ISO-DEP"
	TypeFile    = "File"
	TypeMQTT    = "MQTT"
	TypeUnknown = "Unknown"
)

// TagSnapshot is the result of one successful read. Records keep wire order.
type TagSnapshot struct {
	TagType      string
	TagID        []byte
	TechTypes    []string
	Records      []ndef.Record
	MaxSizeBytes int
}

// HasTagID reports whether the tag exposed a hardware identifier.
func (s *TagSnapshot) HasTagID() bool {
	return len(s.TagID) > 0
}

// ScannedItem is an archived scan. CreatedAt never changes after creation.
type ScannedItem struct {
	CreatedAt time.Time
	ID        string
	Summary   string
	Records   []ndef.Record
}

// ItemID derives an archive id from the tag id and creation time. Tags
// without a hardware id get a timestamp-only id.
func ItemID(tagID []byte, createdAt time.Time) string {
	ts := strconv.FormatInt(createdAt.UnixMilli(), 10)
	if len(tagID) == 0 {
		return ts
	}
	return hex.EncodeToString(tagID) + "-" + ts
}

// ItemTagID recovers the tag id an item id was derived from, or nil for
// timestamp-only ids.
func ItemTagID(id string) []byte {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return nil
	}
	tagID, err := hex.DecodeString(prefix)
	if err != nil {
		return nil
	}
	return tagID
}

// NewScannedItem builds an archive item from a snapshot, taking its own copy
// of the records.
func NewScannedItem(snap *TagSnapshot, createdAt time.Time) ScannedItem {
	return ScannedItem{
		ID:        ItemID(snap.TagID, createdAt),
		CreatedAt: createdAt,
		Summary:   Summary(snap),
		Records:   ndef.CloneRecords(snap.Records),
	}
}

// Summary renders tag metadata and records for display.
func Summary(snap *TagSnapshot) string {
	var sb strings.Builder

	tagID := "unknown"
	if snap.HasTagID() {
		tagID = strings.ToUpper(hex.EncodeToString(snap.TagID))
	}
	_, _ = fmt.Fprintf(&sb, "Tag ID: %s\n", tagID)

	tagType := snap.TagType
	if tagType == "" {
		tagType = TypeUnknown
	}
	_, _ = fmt.Fprintf(&sb, "Type: %s\n", tagType)

	if len(snap.TechTypes) > 0 {
		_, _ = fmt.Fprintf(&sb, "Technologies: %s\n", strings.Join(snap.TechTypes, ", "))
	}

	if snap.MaxSizeBytes > 0 {
		_, _ = fmt.Fprintf(&sb, "Max size: %d bytes\n", snap.MaxSizeBytes)
	} else {
		sb.WriteString("Max size: unknown\n")
	}

	_, _ = fmt.Fprintf(&sb, "Records: %d", len(snap.Records))
	if len(snap.Records) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(ndef.RenderString(snap.Records))
	}

	return sb.String()
}
