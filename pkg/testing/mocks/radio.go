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

	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/stretchr/testify/mock"
)

// MockDriver is a mock implementation of radio.Driver using testify/mock.
type MockDriver struct {
	mock.Mock
}

// Metadata returns static information about this driver
func (m *MockDriver) Metadata() radio.DriverMetadata {
	args := m.Called()
	if metadata, ok := args.Get(0).(radio.DriverMetadata); ok {
		return metadata
	}
	return radio.DriverMetadata{}
}

// Availability reports the radio state
func (m *MockDriver) Availability(ctx context.Context) radio.Availability {
	args := m.Called(ctx)
	if a, ok := args.Get(0).(radio.Availability); ok {
		return a
	}
	return radio.Unsupported
}

// RequestRead blocks according to the configured expectation and returns its
// result
func (m *MockDriver) RequestRead(ctx context.Context) radio.ReadResult {
	args := m.Called(ctx)
	if res, ok := args.Get(0).(radio.ReadResult); ok {
		return res
	}
	return radio.NoTag()
}

// CancelRead aborts the outstanding read
func (m *MockDriver) CancelRead(ctx context.Context) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// Close releases the radio
func (m *MockDriver) Close() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockDriver creates a MockDriver that is ready and whose reads never find
// anything.
func NewMockDriver() *MockDriver {
	m := &MockDriver{}
	m.On("Metadata").Return(radio.DriverMetadata{ID: "mock", Description: "Mock driver"}).Maybe()
	m.On("Availability", mock.Anything).Return(radio.Ready).Maybe()
	m.On("CancelRead", mock.Anything).Return(nil).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

// MockHCEChannel is a mock implementation of radio.HCEChannel.
type MockHCEChannel struct {
	mock.Mock
}

// SetApplication loads the emulated message
func (m *MockHCEChannel) SetApplication(ctx context.Context, message []byte) error {
	args := m.Called(ctx, message)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// SetEnabled toggles emulation
func (m *MockHCEChannel) SetEnabled(ctx context.Context, enabled bool) error {
	args := m.Called(ctx, enabled)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockHCEChannel creates a channel that accepts every call.
func NewMockHCEChannel() *MockHCEChannel {
	m := &MockHCEChannel{}
	m.On("SetApplication", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetEnabled", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// MockSettingsOpener records requests to open the NFC settings screen.
type MockSettingsOpener struct {
	mock.Mock
}

// OpenNFCSettings navigates to the settings screen
func (m *MockSettingsOpener) OpenNFCSettings(ctx context.Context) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}
