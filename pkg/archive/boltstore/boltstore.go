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

// Package boltstore persists the scan archive as a single CBOR blob in a
// bbolt database.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketArchive = "archive"
	KeyItems      = "items"
	SchemaVersion = 1
)

type storedRecord struct {
	Type    []byte `cbor:"2,keyasint"`
	ID      []byte `cbor:"3,keyasint"`
	Payload []byte `cbor:"4,keyasint"`
	TNF     uint8  `cbor:"1,keyasint"`
}

type storedItem struct {
	ID        string         `cbor:"1,keyasint"`
	Summary   string         `cbor:"2,keyasint"`
	Records   []storedRecord `cbor:"4,keyasint"`
	CreatedAt int64          `cbor:"3,keyasint"`
}

type storedArchive struct {
	Items   []storedItem `cbor:"2,keyasint"`
	Version int          `cbor:"1,keyasint"`
}

type Store struct {
	bdb *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(txn *bolt.Tx) error {
		_, berr := txn.CreateBucketIfNotExists([]byte(BucketArchive))
		if berr != nil {
			return fmt.Errorf("failed to create bucket %q: %w", BucketArchive, berr)
		}
		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing bolt database")
		}
		return nil, err
	}

	return &Store{bdb: db}, nil
}

func (s *Store) Close() error {
	if err := s.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}

// Load returns the stored list, or nil when nothing has been saved yet.
func (s *Store) Load(ctx context.Context) ([]tags.ScannedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load cancelled: %w", err)
	}

	var data []byte
	err := s.bdb.View(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketArchive))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketArchive)
		}
		if v := b.Get([]byte(KeyItems)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to view bolt database: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var stored storedArchive
	if err := cbor.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive: %w", err)
	}
	if stored.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported archive schema version: %d", stored.Version)
	}

	items := make([]tags.ScannedItem, 0, len(stored.Items))
	for i := range stored.Items {
		item, err := fromStored(&stored.Items[i])
		if err != nil {
			return nil, fmt.Errorf("invalid archived item %q: %w", stored.Items[i].ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Save replaces the stored list in one transaction.
func (s *Store) Save(ctx context.Context, items []tags.ScannedItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save cancelled: %w", err)
	}

	stored := storedArchive{
		Version: SchemaVersion,
		Items:   make([]storedItem, 0, len(items)),
	}
	for i := range items {
		stored.Items = append(stored.Items, toStored(&items[i]))
	}

	data, err := cbor.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	err = s.bdb.Update(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketArchive))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketArchive)
		}
		return b.Put([]byte(KeyItems), data)
	})
	if err != nil {
		return fmt.Errorf("failed to update bolt database: %w", err)
	}
	return nil
}

func toStored(item *tags.ScannedItem) storedItem {
	out := storedItem{
		ID:        item.ID,
		Summary:   item.Summary,
		CreatedAt: item.CreatedAt.UnixNano(),
		Records:   make([]storedRecord, 0, len(item.Records)),
	}
	for _, r := range item.Records {
		out.Records = append(out.Records, storedRecord{
			TNF:     uint8(r.TNF),
			Type:    r.Type,
			ID:      r.ID,
			Payload: r.Payload,
		})
	}
	return out
}

func fromStored(s *storedItem) (tags.ScannedItem, error) {
	records := make([]ndef.Record, 0, len(s.Records))
	for _, r := range s.Records {
		rec, err := ndef.DecodeRecord(r.TNF, r.Type, r.ID, r.Payload)
		if err != nil {
			return tags.ScannedItem{}, err
		}
		records = append(records, rec)
	}
	return tags.ScannedItem{
		ID:        s.ID,
		Summary:   s.Summary,
		CreatedAt: time.Unix(0, s.CreatedAt),
		Records:   records,
	}, nil
}
