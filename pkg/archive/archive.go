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

// Package archive keeps the ordered list of completed scans. The in-memory
// list is authoritative; the backing Store is written asynchronously and
// failures there never change what callers see.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound = errors.New("item not found")
	ErrClosed   = errors.New("archive closed")
)

// Store is the external key-value blob store holding the whole list.
type Store interface {
	Load(ctx context.Context) ([]tags.ScannedItem, error)
	Save(ctx context.Context, items []tags.ScannedItem) error
}

// Archive is the most-recent-first list of scanned items. Every mutation
// replaces the list as a whole.
type Archive struct {
	store   Store
	clock   clockwork.Clock
	pending chan []tags.ScannedItem
	done    chan struct{}
	items   []tags.ScannedItem
	mu      syncutil.RWMutex
	saveMu  syncutil.Mutex
	closed  bool
}

// Open loads the stored list and starts the persistence worker. A failed
// load is logged and the archive starts empty.
func Open(ctx context.Context, store Store, clock clockwork.Clock) *Archive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &Archive{
		store:   store,
		clock:   clock,
		pending: make(chan []tags.ScannedItem, 1),
		done:    make(chan struct{}),
	}

	items, err := store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load scan archive, starting empty")
	} else {
		a.items = items
		log.Info().Int("items", len(items)).Msg("loaded scan archive")
	}

	go a.persist()
	return a
}

func (a *Archive) persist() {
	defer close(a.done)
	for items := range a.pending {
		if err := a.store.Save(context.Background(), items); err != nil {
			log.Error().Err(err).Int("items", len(items)).Msg("failed to save scan archive")
			continue
		}
		log.Debug().Int("items", len(items)).Msg("saved scan archive")
	}
}

// queueSave hands the latest list to the worker, replacing any list still
// waiting to be written.
func (a *Archive) queueSave(items []tags.ScannedItem) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if a.closed {
		log.Warn().Msg("archive closed, change not persisted")
		return
	}
	select {
	case <-a.pending:
	default:
	}
	a.pending <- items
}

// Add builds an item from snap and inserts it at the head of the list.
func (a *Archive) Add(snap *tags.TagSnapshot) (tags.ScannedItem, error) {
	if snap == nil {
		return tags.ScannedItem{}, errors.New("nil tag snapshot")
	}

	item := tags.NewScannedItem(snap, a.clock.Now())

	a.mu.Lock()
	item.ID = uniqueID(a.items, item.ID)
	next := make([]tags.ScannedItem, 0, len(a.items)+1)
	next = append(next, item)
	next = append(next, a.items...)
	a.items = next
	a.mu.Unlock()

	log.Info().Str("id", item.ID).Int("records", len(item.Records)).Msg("archived scan")
	a.queueSave(next)
	return cloneItem(&item), nil
}

// Delete removes the item with the given id.
func (a *Archive) Delete(id string) error {
	a.mu.Lock()
	idx := indexOf(a.items, id)
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]tags.ScannedItem, 0, len(a.items)-1)
	next = append(next, a.items[:idx]...)
	next = append(next, a.items[idx+1:]...)
	a.items = next
	a.mu.Unlock()

	log.Info().Str("id", id).Msg("deleted archived scan")
	a.queueSave(next)
	return nil
}

// Items returns a copy of the list, most recent first.
func (a *Archive) Items() []tags.ScannedItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]tags.ScannedItem, len(a.items))
	for i := range a.items {
		out[i] = cloneItem(&a.items[i])
	}
	return out
}

// Get returns the item with the given id.
func (a *Archive) Get(id string) (tags.ScannedItem, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx := indexOf(a.items, id)
	if idx < 0 {
		return tags.ScannedItem{}, false
	}
	return cloneItem(&a.items[idx]), true
}

func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

// Close stops accepting saves and waits for the last queued list to be
// written.
func (a *Archive) Close(ctx context.Context) error {
	a.saveMu.Lock()
	if a.closed {
		a.saveMu.Unlock()
		return nil
	}
	a.closed = true
	close(a.pending)
	a.saveMu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for archive flush: %w", ctx.Err())
	}
}

func indexOf(items []tags.ScannedItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// uniqueID suffixes id with a counter when it is already taken.
func uniqueID(items []tags.ScannedItem, id string) string {
	if indexOf(items, id) < 0 {
		return id
	}
	for n := 2; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if indexOf(items, candidate) < 0 {
			return candidate
		}
	}
}

func cloneItem(item *tags.ScannedItem) tags.ScannedItem {
	out := *item
	out.Records = ndef.CloneRecords(item.Records)
	return out
}
