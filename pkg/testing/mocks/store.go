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

package mocks

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of archive.Store.
type MockStore struct {
	mock.Mock
}

// Load returns the stored list
func (m *MockStore) Load(ctx context.Context) ([]tags.ScannedItem, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]tags.ScannedItem)
	if err := args.Error(1); err != nil {
		return items, fmt.Errorf("mock operation failed: %w", err)
	}
	return items, nil
}

// Save replaces the stored list
func (m *MockStore) Save(ctx context.Context, items []tags.ScannedItem) error {
	args := m.Called(ctx, items)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}
