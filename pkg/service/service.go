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

// Package service wires the configured reader, the archive, the session
// engine, the emitter and the companion bridge together and runs them until
// stopped.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/archive"
	"github.com/ZaparooProject/zaparoo-echo/pkg/archive/boltstore"
	"github.com/ZaparooProject/zaparoo-echo/pkg/config"
	"github.com/ZaparooProject/zaparoo-echo/pkg/emit"
	"github.com/ZaparooProject/zaparoo-echo/pkg/hce/bridge"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/session"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Config   *config.Instance
	Clock    clockwork.Clock
	Settings session.SettingsOpener
	Fs       afero.Fs
	// Driver replaces the driver named in the config.
	Driver radio.Driver
	// Store replaces the bbolt archive store.
	Store archive.Store
	// OnStatus receives every engine status in order.
	OnStatus func(session.Status)
	DataDir  string
}

type Service struct {
	Engine    *session.Engine
	Archive   *archive.Archive
	Emitter   *emit.Controller
	Bridge    *bridge.Bridge
	driver    radio.Driver
	bolt      *boltstore.Store
	discovery *bridge.Discovery
	group     *errgroup.Group
	groupCtx  context.Context
	cancel    context.CancelFunc
	addr      net.Addr
	stopOnce  sync.Once
	stopErr   error
}

// Start builds every component from the config and starts the background
// work: the status consumer and, when emulation is enabled, the companion
// bridge server and its mDNS advertisement.
//
//nolint:gocritic // options struct copied once at startup
func Start(ctx context.Context, opts Options) (*Service, error) {
	cfg := opts.Config
	log.Info().Msgf("version: %s", config.AppVersion)

	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	emitCfg := cfg.Emit()
	policy, err := emit.ParsePolicy(emitCfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid emit config: %w", err)
	}

	s := &Service{driver: opts.Driver}
	if s.driver == nil {
		s.driver, err = NewDriver(cfg.Radio(), opts.Fs, cfg.LookupAuth)
		if err != nil {
			return nil, err
		}
	}
	if s.driver != nil {
		log.Info().Str("driver", s.driver.Metadata().ID).Msg("using reader driver")
	}

	store := opts.Store
	if store == nil {
		path := cfg.ArchivePath(opts.DataDir)
		log.Info().Str("path", path).Msg("opening archive")
		s.bolt, err = boltstore.Open(path)
		if err != nil {
			s.closeDriver()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		store = s.bolt
	}
	s.Archive = archive.Open(ctx, store, opts.Clock)

	hce := radio.Unavailable("card emulation disabled in config")
	var ln net.Listener
	if cfg.HCEEnabled() {
		ln, err = net.Listen("tcp", cfg.HCEListen())
		if err != nil {
			s.closeStorage(ctx)
			s.closeDriver()
			return nil, fmt.Errorf("failed to listen for companion: %w", err)
		}
		s.addr = ln.Addr()
		s.Bridge = bridge.New(bridge.Options{
			AckTimeout: time.Duration(cfg.HCEAckTimeout()) * time.Second,
		})
		hce = radio.Available(s.Bridge)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var statuses <-chan session.Status
	s.Engine, statuses = session.New(runCtx, session.Options{
		Driver:   s.driver,
		Archive:  s.Archive,
		Settings: opts.Settings,
		Clock:    opts.Clock,
		HCE:      hce,
	})
	s.Emitter = emit.New(s.Engine, emit.Options{Policy: policy, Language: emitCfg.Language})

	s.group, s.groupCtx = errgroup.WithContext(runCtx)
	s.group.Go(func() error {
		consumeStatuses(statuses, opts.OnStatus)
		return nil
	})

	if s.Bridge != nil {
		s.group.Go(func() error {
			return s.Bridge.ServeListener(s.groupCtx, ln)
		})
		if cfg.HCEDiscovery() {
			port := 0
			if tcp, ok := s.addr.(*net.TCPAddr); ok {
				port = tcp.Port
			}
			s.discovery = bridge.NewDiscovery(bridge.DiscoveryOptions{
				InstanceName: cfg.HCEInstanceName(),
				DeviceID:     cfg.DeviceID(),
				Version:      config.AppVersion,
				Port:         port,
			})
			s.discovery.Start()
		}
	}

	return s, nil
}

func consumeStatuses(statuses <-chan session.Status, onStatus func(session.Status)) {
	for st := range statuses {
		log.Debug().Str("status", st.Kind.String()).Msg(st.Text())
		if onStatus != nil {
			onStatus(st)
		}
	}
}

// BridgeAddr is the address the companion bridge listens on, if running.
func (s *Service) BridgeAddr() net.Addr {
	return s.addr
}

// Done is closed when the service stops or a background task fails.
func (s *Service) Done() <-chan struct{} {
	return s.groupCtx.Done()
}

// EmitItem starts emulating the archived item with the given id.
func (s *Service) EmitItem(ctx context.Context, id string) error {
	item, ok := s.Archive.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", archive.ErrNotFound, id)
	}
	return s.Emitter.Emit(ctx, &item)
}

// Item looks up an archived item.
func (s *Service) Item(id string) (tags.ScannedItem, bool) {
	return s.Archive.Get(id)
}

// Stop tears everything down in reverse order. Safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.CloseTimeout)
		defer cancel()

		var errs []error
		if s.discovery != nil {
			s.discovery.Stop()
		}
		if err := s.Engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close engine: %w", err))
		}
		s.closeDriver()
		s.cancel()
		if err := s.group.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := s.closeStorage(ctx); err != nil {
			errs = append(errs, err)
		}
		s.stopErr = errors.Join(errs...)
		log.Info().Msg("service stopped")
	})
	return s.stopErr
}

func (s *Service) closeDriver() {
	if s.driver == nil {
		return
	}
	if err := s.driver.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close reader driver")
	}
}

func (s *Service) closeStorage(ctx context.Context) error {
	var errs []error
	if s.Archive != nil {
		if err := s.Archive.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush archive: %w", err))
		}
	}
	if s.bolt != nil {
		if err := s.bolt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close archive store: %w", err))
		}
	}
	return errors.Join(errs...)
}
