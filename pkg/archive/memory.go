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

package archive

import (
	"context"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
)

// MemoryStore is a Store that keeps the list in memory. It backs the
// "memory" archive setting and tests.
type MemoryStore struct {
	items []tags.ScannedItem
	saves int
	mu    syncutil.Mutex
}

func NewMemoryStore(items ...tags.ScannedItem) *MemoryStore {
	return &MemoryStore{items: cloneItems(items)}
}

func (s *MemoryStore) Load(context.Context) ([]tags.ScannedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items), nil
}

func (s *MemoryStore) Save(_ context.Context, items []tags.ScannedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = cloneItems(items)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneItems(items []tags.ScannedItem) []tags.ScannedItem {
	if items == nil {
		return nil
	}
	out := make([]tags.ScannedItem, len(items))
	for i := range items {
		out[i] = cloneItem(&items[i])
	}
	return out
}
