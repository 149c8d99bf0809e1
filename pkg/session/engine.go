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

// Package session coordinates the single radio between tag scanning and tag
// emulation. The engine owns the current mode, drives the scan attempt
// lifecycle and publishes every transition on a status channel.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultNotificationBuffer is the status channel capacity used when Options
// leaves it unset.
const DefaultNotificationBuffer = 32

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session engine closed")

// Archive receives successful reads and explicit deletions.
type Archive interface {
	Add(snap *tags.TagSnapshot) (tags.ScannedItem, error)
	Delete(id string) error
}

// SettingsOpener navigates the user to the platform's NFC settings.
type SettingsOpener interface {
	OpenNFCSettings(ctx context.Context) error
}

// Options configures a new Engine. A nil Driver means the device has no
// reader radio.
type Options struct {
	Driver             radio.Driver
	Archive            Archive
	Settings           SettingsOpener
	Clock              clockwork.Clock
	HCE                radio.HCE
	NotificationBuffer int
}

type scanAttempt struct {
	cancel          context.CancelFunc
	done            chan struct{}
	id              uint64
	cancelRequested bool
}

// Engine is the session state machine. User commands are serialized by
// cmdMu; mu guards the mode and the live scan attempt.
type Engine struct {
	driver        radio.Driver
	archive       Archive
	settings      SettingsOpener
	clock         clockwork.Clock
	notifications chan Status
	scan          *scanAttempt
	last          Status
	hce           radio.HCE
	mode          Mode
	cmdMu         syncutil.Mutex
	mu            syncutil.RWMutex
	notifyMu      syncutil.Mutex
	seq           uint64
	unsupported   bool
	closed        bool
}

// New builds an engine and returns it with its status channel. Missing radio
// or HCE capabilities are reported once here.
func New(ctx context.Context, opts Options) (*Engine, <-chan Status) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	buf := opts.NotificationBuffer
	if buf <= 0 {
		buf = DefaultNotificationBuffer
	}

	e := &Engine{
		driver:        opts.Driver,
		archive:       opts.Archive,
		settings:      opts.Settings,
		clock:         opts.Clock,
		hce:           opts.HCE,
		mode:          Idle(),
		notifications: make(chan Status, buf),
	}

	if e.driver == nil || e.driver.Availability(ctx) == radio.Unsupported {
		e.unsupported = true
		log.Warn().Msg("no NFC reader available, scanning disabled")
		e.publish(Status{
			Kind: StatusUnsupported,
			Err:  radio.NewError(radio.KindUnsupported, "init", "no NFC reader on this device", nil),
		})
	}
	if _, ok := e.hce.Channel(); !ok {
		log.Warn().Str("reason", e.hce.Reason()).Msg("card emulation unavailable, emitting disabled")
		e.publish(Status{
			Kind: StatusUnsupported,
			Err:  radio.NewError(radio.KindUnsupported, "init", e.hce.Reason(), nil),
		})
	}
	if !e.unsupported || e.hce.Supported() {
		e.publish(Status{Kind: StatusReady})
	}

	return e, e.notifications
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// LastStatus returns the most recently published status.
func (e *Engine) LastStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// HCE returns the card emulation capability the engine was built with.
func (e *Engine) HCE() radio.HCE {
	return e.hce
}

// RadioSupported reports whether the engine has a usable reader.
func (e *Engine) RadioSupported() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.unsupported
}

// StartScan begins a read attempt. Calling it while already scanning stops
// the scan instead.
func (e *Engine) StartScan(ctx context.Context) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}

	mode := e.Mode()
	if mode.Kind == ModeScanning {
		log.Debug().Msg("scan already running, toggling off")
		return e.stopScanLocked(ctx)
	}

	if err := guardScan(mode); err != nil {
		e.publish(Status{Kind: StatusBusy, Err: err})
		return err
	}

	if !e.RadioSupported() {
		return radio.NewError(radio.KindUnsupported, "start scan", "no NFC reader on this device", nil)
	}

	switch e.driver.Availability(ctx) {
	case radio.Unsupported:
		e.mu.Lock()
		e.unsupported = true
		e.mu.Unlock()
		err := radio.NewError(radio.KindUnsupported, "start scan", "no NFC reader on this device", nil)
		e.publish(Status{Kind: StatusUnsupported, Err: err})
		return err
	case radio.Disabled:
		err := radio.NewError(radio.KindDisabled, "start scan", "NFC is disabled", nil)
		e.publish(Status{Kind: StatusDisabled, Err: err})
		if e.settings != nil {
			if serr := e.settings.OpenNFCSettings(ctx); serr != nil {
				log.Warn().Err(serr).Msg("failed to open NFC settings")
			}
		}
		return err
	case radio.Ready:
	}

	// the read outlives this call, so it is not bound to ctx
	readCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.seq++
	attempt := &scanAttempt{
		id:     e.seq,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.scan = attempt
	e.mode = Scanning()
	e.mu.Unlock()

	log.Info().Uint64("attempt", attempt.id).Str("driver", e.driver.Metadata().ID).Msg("scan started")
	e.publish(Status{Kind: StatusScanning})

	go e.runScan(readCtx, attempt)
	return nil
}

// StopScan cancels the live scan attempt and waits for it to finish. It is a
// no-op when not scanning.
func (e *Engine) StopScan(ctx context.Context) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	return e.stopScanLocked(ctx)
}

func (e *Engine) stopScanLocked(ctx context.Context) error {
	e.mu.Lock()
	attempt := e.scan
	if attempt == nil || e.mode.Kind != ModeScanning {
		e.mu.Unlock()
		return nil
	}
	attempt.cancelRequested = true
	e.mu.Unlock()

	log.Debug().Uint64("attempt", attempt.id).Msg("cancelling scan")
	attempt.cancel()
	if err := e.driver.CancelRead(ctx); err != nil {
		log.Debug().Err(err).Msg("driver cancel failed, ignoring")
	}

	select {
	case <-attempt.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scan to stop: %w", ctx.Err())
	}
}

func (e *Engine) runScan(ctx context.Context, attempt *scanAttempt) {
	defer close(attempt.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic in scan attempt")
			e.finishScan(attempt, radio.ReadResult{
				Outcome: radio.OutcomeFailed,
				Err:     fmt.Errorf("driver panic: %v", r),
			})
		}
	}()

	res := e.driver.RequestRead(ctx)
	e.finishScan(attempt, res)
}

// finishScan reports exactly one terminal status for the attempt and returns
// the engine to idle.
func (e *Engine) finishScan(attempt *scanAttempt, res radio.ReadResult) {
	e.mu.Lock()
	if e.scan != attempt {
		e.mu.Unlock()
		return
	}
	cancelRequested := attempt.cancelRequested
	e.mu.Unlock()

	status := classifyRead(res, cancelRequested)
	if status.Kind == StatusTagRead {
		item, err := e.archive.Add(res.Tag)
		if err != nil {
			log.Error().Err(err).Msg("failed to archive scanned tag")
			status = Status{Kind: StatusScanFailed, Err: err}
		} else {
			status.Item = &item
			status.ItemID = item.ID
		}
	}

	e.mu.Lock()
	e.scan = nil
	e.mode = Idle()
	e.mu.Unlock()
	attempt.cancel()

	ev := log.Info().Uint64("attempt", attempt.id).Str("result", status.Text())
	if status.Err != nil {
		ev = ev.Err(status.Err)
	}
	ev.Msg("scan finished")
	e.publish(status)
}

func classifyRead(res radio.ReadResult, cancelRequested bool) Status {
	if res.Outcome == radio.OutcomeTagFound && res.Tag != nil {
		return Status{Kind: StatusTagRead}
	}
	if cancelRequested {
		return Status{Kind: StatusScanCancelled}
	}
	switch res.Outcome {
	case radio.OutcomeCancelled:
		return Status{Kind: StatusScanCancelled}
	case radio.OutcomeNoTag:
		return Status{Kind: StatusNoTag}
	case radio.OutcomeTagFound:
		return Status{
			Kind: StatusScanFailed,
			Err:  radio.NewError(radio.KindDriverFailure, "read", "driver reported a tag without data", nil),
		}
	case radio.OutcomeFailed:
	}
	err := res.Err
	if err == nil {
		err = radio.ErrDriverFailure
	}
	return Status{
		Kind: StatusScanFailed,
		Err:  radio.NewError(radio.KindDriverFailure, "read", "", err),
	}
}

// StartEmit presents message as an emulated tag for itemID. Emitting the
// item that is already being emitted stops emission instead. Emitting a
// different item replaces the current one.
func (e *Engine) StartEmit(ctx context.Context, itemID string, message []byte) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}

	mode := e.Mode()
	if err := guardEmit(mode); err != nil {
		e.publish(Status{Kind: StatusBusy, Err: err, ItemID: itemID})
		return err
	}

	ch, ok := e.hce.Channel()
	if !ok {
		return radio.NewError(radio.KindUnsupported, "start emit", e.hce.Reason(), nil)
	}

	if mode.Kind == ModeEmitting {
		err := e.disableLocked(ctx, ch)
		if mode.ItemID == itemID {
			return err
		}
	}

	if err := ch.SetApplication(ctx, message); err != nil {
		return e.emitFailed(itemID, "set application", err)
	}
	if err := ch.SetEnabled(ctx, true); err != nil {
		return e.emitFailed(itemID, "enable emulation", err)
	}

	e.mu.Lock()
	e.mode = Emitting(itemID)
	e.mu.Unlock()

	log.Info().Str("item", itemID).Int("bytes", len(message)).Msg("emitting")
	e.publish(Status{Kind: StatusEmitting, ItemID: itemID})
	return nil
}

// StopEmit disables card emulation. It is a no-op when not emitting.
func (e *Engine) StopEmit(ctx context.Context) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	if e.Mode().Kind != ModeEmitting {
		return nil
	}
	ch, ok := e.hce.Channel()
	if !ok {
		return nil
	}
	return e.disableLocked(ctx, ch)
}

// disableLocked turns emulation off and always leaves the engine idle.
func (e *Engine) disableLocked(ctx context.Context, ch radio.HCEChannel) error {
	itemID := e.Mode().ItemID
	err := ch.SetEnabled(ctx, false)

	e.mu.Lock()
	e.mode = Idle()
	e.mu.Unlock()

	if err != nil {
		return e.emitFailed(itemID, "disable emulation", err)
	}
	log.Info().Str("item", itemID).Msg("stopped emitting")
	e.publish(Status{Kind: StatusEmitStopped, ItemID: itemID})
	return nil
}

func (e *Engine) emitFailed(itemID, op string, err error) error {
	wrapped := radio.NewError(radio.KindDriverFailure, op, "", err)
	log.Error().Err(err).Str("item", itemID).Msgf("failed to %s", op)
	e.publish(Status{Kind: StatusEmitFailed, ItemID: itemID, Err: wrapped})
	return wrapped
}

// DeleteItem removes an archived item, stopping emission first if that item
// is the one being emitted.
func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}

	if e.Mode().IsEmitting(id) {
		if ch, ok := e.hce.Channel(); ok {
			if err := e.disableLocked(ctx, ch); err != nil {
				log.Warn().Err(err).Str("item", id).Msg("failed to stop emitting before delete")
			}
		}
	}

	if err := e.archive.Delete(id); err != nil {
		log.Error().Err(err).Str("item", id).Msg("failed to delete item")
		e.publish(Status{Kind: StatusDeleteFailed, ItemID: id, Err: err})
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	e.publish(Status{Kind: StatusDeleted, ItemID: id})
	return nil
}

// Close releases the radio and the HCE channel. Failures are logged and
// ignored. Every later call returns ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.isClosed() {
		return nil
	}

	if err := e.stopScanLocked(ctx); err != nil {
		log.Warn().Err(err).Msg("scan did not stop during teardown")
	}

	if e.Mode().Kind == ModeEmitting {
		if ch, ok := e.hce.Channel(); ok {
			if err := ch.SetEnabled(ctx, false); err != nil {
				log.Warn().Err(err).Msg("failed to disable emulation during teardown")
			}
		}
	}

	e.notifyMu.Lock()
	e.mu.Lock()
	e.mode = Idle()
	e.closed = true
	e.mu.Unlock()
	close(e.notifications)
	e.notifyMu.Unlock()

	log.Info().Msg("session engine closed")
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// publish records s as the last status and queues it without blocking. Never
// call with mu held.
func (e *Engine) publish(s Status) {
	if s.Time.IsZero() {
		s.Time = e.clock.Now()
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	closed := e.closed
	s.Mode = e.mode
	e.last = s
	e.mu.Unlock()

	if closed {
		return
	}

	select {
	case e.notifications <- s:
	default:
		log.Warn().Str("status", s.Text()).Msg("status channel full, dropping notification")
	}
}
