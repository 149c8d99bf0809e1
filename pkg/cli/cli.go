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

// Package cli holds the command line surface: flags, one-shot archive
// commands and the interactive shell that drives the session engine.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/zaparoo-echo/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-echo/pkg/archive"
	"github.com/ZaparooProject/zaparoo-echo/pkg/archive/boltstore"
	"github.com/ZaparooProject/zaparoo-echo/pkg/config"
	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	Version *bool
	List    *bool
	Show    *string
	Delete  *string
	Export  *string
	Debug   *bool
}

// SetupFlags defines the CLI flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		List: fs.Bool(
			"list",
			false,
			"list archived scans and exit",
		),
		Show: fs.String(
			"show",
			"",
			"print the records of an archived scan and exit",
		),
		Delete: fs.String(
			"delete",
			"",
			"delete an archived scan and exit",
		),
		Export: fs.String(
			"export",
			"",
			"print an archived scan as a tag dump and exit",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
	}
}

// Setup creates the app directories, starts logging and loads the config.
//
//nolint:gocritic // config struct copied for immutability
func Setup(paths helpers.Paths, defaults config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.EnsureDirectories(paths); err != nil {
		return nil, fmt.Errorf("error creating directories: %w", err)
	}

	if err := helpers.InitLogging(paths.LogDir, writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(paths.ConfigDir, defaults)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetLogLevel(cfg.DebugLogging())

	if err := telemetry.Init(telemetry.Options{
		Enabled:    cfg.ErrorReporting(),
		DSN:        os.Getenv(telemetry.DSNEnv),
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
		Base:       helpers.LogWriter(),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}

// RunOffline handles the flags that only touch the archive. It reports
// whether a flag was handled, in which case the caller should exit.
func (f *Flags) RunOffline(ctx context.Context, out io.Writer, cfg *config.Instance, dataDir string) (bool, error) {
	if !*f.List && *f.Show == "" && *f.Delete == "" && *f.Export == "" {
		return false, nil
	}

	store, err := boltstore.Open(cfg.ArchivePath(dataDir))
	if err != nil {
		return true, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close archive store")
		}
	}()

	arch := archive.Open(ctx, store, clockwork.NewRealClock())
	defer func() {
		if err := arch.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush archive")
		}
	}()

	switch {
	case *f.Delete != "":
		if err := arch.Delete(*f.Delete); err != nil {
			return true, fmt.Errorf("failed to delete %s: %w", *f.Delete, err)
		}
		_, _ = fmt.Fprintf(out, "Deleted %s\n", *f.Delete)
	case *f.Show != "":
		item, ok := arch.Get(*f.Show)
		if !ok {
			return true, fmt.Errorf("%w: %s", archive.ErrNotFound, *f.Show)
		}
		printItem(out, &item)
	case *f.Export != "":
		item, ok := arch.Get(*f.Export)
		if !ok {
			return true, fmt.Errorf("%w: %s", archive.ErrNotFound, *f.Export)
		}
		if err := printDump(out, &item); err != nil {
			return true, err
		}
	default:
		printList(out, arch.Items())
	}
	return true, nil
}
