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

// Package file is a radio driver that reads tags dropped into a file. Each
// non-empty write to the file is one tag; the driver empties the file once
// read.
//
// Contents use the dump format accepted by radio.ParseDump.
package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	DriverID            = "file"
	DefaultPollInterval = 100 * time.Millisecond
)

type Options struct {
	Fs               afero.Fs
	Path             string
	PollInterval     time.Duration
	DiscoveryTimeout time.Duration
}

type Driver struct {
	fs     afero.Fs
	cancel context.CancelFunc
	opts   Options
	mu     syncutil.Mutex
}

func New(opts Options) *Driver {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Driver{fs: opts.Fs, opts: opts}
}

func (*Driver) Metadata() radio.DriverMetadata {
	return radio.DriverMetadata{
		ID:          DriverID,
		Description: "Tags read from a file",
	}
}

// Availability creates the file if its directory exists.
func (d *Driver) Availability(context.Context) radio.Availability {
	if d.opts.Path == "" {
		return radio.Unsupported
	}
	if err := d.ensureFile(); err != nil {
		log.Debug().Err(err).Str("path", d.opts.Path).Msg("file reader not available")
		return radio.Disabled
	}
	return radio.Ready
}

func (d *Driver) ensureFile() error {
	if !filepath.IsAbs(d.opts.Path) {
		return errors.New("invalid device path, must be absolute")
	}
	if _, err := d.fs.Stat(filepath.Dir(d.opts.Path)); err != nil {
		return fmt.Errorf("failed to stat parent directory: %w", err)
	}
	if _, err := d.fs.Stat(d.opts.Path); err != nil {
		f, err := d.fs.Create(d.opts.Path)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		_ = f.Close()
	}
	return nil
}

// RequestRead polls the file until it holds a tag.
func (d *Driver) RequestRead(ctx context.Context) radio.ReadResult {
	if err := d.ensureFile(); err != nil {
		return radio.Failed(err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	var timeout <-chan time.Time
	if d.opts.DiscoveryTimeout > 0 {
		timer := time.NewTimer(d.opts.DiscoveryTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		snap, err := d.poll()
		if err != nil {
			return radio.Failed(err)
		}
		if snap != nil {
			return radio.Found(snap)
		}

		select {
		case <-readCtx.Done():
			return radio.Failed(readCtx.Err())
		case <-timeout:
			return radio.NoTag()
		case <-ticker.C:
		}
	}
}

// poll reads and consumes the file. A nil snapshot means it was empty.
func (d *Driver) poll() (*tags.TagSnapshot, error) {
	contents, err := afero.ReadFile(d.fs, d.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.opts.Path, err)
	}
	if len(strings.TrimSpace(string(contents))) == 0 {
		return nil, nil
	}

	// consumed even when malformed so the next scan does not fail on it
	if err := afero.WriteFile(d.fs, d.opts.Path, nil, 0o600); err != nil {
		log.Warn().Err(err).Msg("failed to clear tag file")
	}

	snap, err := radio.ParseDump(contents, tags.TypeFile)
	if err != nil {
		log.Warn().Err(err).Msg("discarded malformed tag file contents")
		return nil, err
	}
	log.Debug().Int("records", len(snap.Records)).Msg("read tag from file")
	return snap, nil
}

func (d *Driver) CancelRead(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *Driver) Close() error {
	return d.CancelRead(context.Background())
}

// Write drops contents into the file as the next tag.
func (d *Driver) Write(contents []byte) error {
	if err := d.ensureFile(); err != nil {
		return err
	}
	if err := afero.WriteFile(d.fs, d.opts.Path, contents, 0o600); err != nil {
		return fmt.Errorf("failed to write tag file: %w", err)
	}
	return nil
}
