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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-echo/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-echo/pkg/cli"
	"github.com/ZaparooProject/zaparoo-echo/pkg/config"
	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-echo/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)
	flag.Parse()

	if *flags.Version {
		_, _ = fmt.Printf("Zaparoo Echo v%s\n", config.AppVersion)
		return nil
	}

	defaults := config.BaseDefaults
	if *flags.Debug {
		defaults.DebugLogging = true
	}

	paths := helpers.DefaultPaths()
	cfg, err := cli.Setup(
		paths, defaults,
		[]io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}},
	)
	if err != nil {
		return err
	}
	defer telemetry.Close()
	if *flags.Debug {
		helpers.SetLogLevel(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handled, err := flags.RunOffline(ctx, os.Stdout, cfg, paths.DataDir)
	if handled || err != nil {
		return err
	}

	out := cli.NewOutput(os.Stdout)
	svc, err := service.Start(ctx, service.Options{
		Config:   cfg,
		DataDir:  paths.DataDir,
		Settings: cli.SettingsHint{Out: out, ConfigPath: cfg.Path()},
		OnStatus: out.PrintStatus,
	})
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}
	if addr := svc.BridgeAddr(); addr != nil {
		_, _ = fmt.Fprintf(out, "Companion bridge listening on %s\n", addr)
	}

	shellErr := cli.NewShell(svc, out).Run(ctx, os.Stdin)

	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping service")
		return fmt.Errorf("error stopping service: %w", err)
	}
	return shellErr
}
