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

package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/archive"
	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/fxamacker/cbor/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_EmptyLoad(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()

	items, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestStore_SaveLoadAcrossReopen(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)

	created := time.Unix(1700000000, 123456789)
	items := []tags.ScannedItem{
		{
			ID:        "0401-1700000000123",
			Summary:   "Tag ID: 0401",
			CreatedAt: created,
			Records: []ndef.Record{
				ndef.EncodeText("hello"),
				{TNF: ndef.TNFMedia, Type: []byte("text/plain"), ID: []byte("a"), Payload: []byte("body")},
			},
		},
		{ID: "1700000000000", CreatedAt: created.Add(-time.Hour), Records: []ndef.Record{}},
	}
	require.NoError(t, s.Save(context.Background(), items))
	require.NoError(t, s.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, items[0].ID, loaded[0].ID)
	assert.Equal(t, items[0].Summary, loaded[0].Summary)
	assert.True(t, items[0].CreatedAt.Equal(loaded[0].CreatedAt))
	assert.Equal(t, items[0].Records, loaded[0].Records)
	assert.Equal(t, "1700000000000", loaded[1].ID)
	assert.Empty(t, loaded[1].Records)
}

func TestStore_RejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()

	data, err := cbor.Marshal(storedArchive{Version: SchemaVersion + 1})
	require.NoError(t, err)
	err = s.bdb.Update(func(txn *bolt.Tx) error {
		return txn.Bucket([]byte(BucketArchive)).Put([]byte(KeyItems), data)
	})
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	require.Error(t, err)
}

func TestStore_RejectsInvalidRecord(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()

	bad := []tags.ScannedItem{{
		ID:      "x",
		Records: []ndef.Record{{TNF: ndef.TNFEmpty, Payload: []byte{0x01}}},
	}}
	require.NoError(t, s.Save(context.Background(), bad))

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ndef.ErrInvalidRecord)
}

func TestStore_CancelledContext(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Save(ctx, nil), context.Canceled)
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_BacksArchive(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000000))
	a := archive.Open(context.Background(), s, clock)
	first, err := a.Add(&tags.TagSnapshot{TagID: []byte{0x01}, Records: []ndef.Record{ndef.EncodeText("a")}})
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := a.Add(&tags.TagSnapshot{TagID: []byte{0x02}})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	reopened := archive.Open(context.Background(), s, clock)
	defer func() { _ = reopened.Close(context.Background()) }()

	items := reopened.Items()
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
	assert.Equal(t, first.Records, items[1].Records)
}
