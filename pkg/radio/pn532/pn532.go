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

// Package pn532 reads tags through a PN532 module on UART, I2C or SPI.
package pn532

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn532"
	"github.com/ZaparooProject/go-pn532/detection"
	_ "github.com/ZaparooProject/go-pn532/detection/uart"
	"github.com/ZaparooProject/go-pn532/polling"
	"github.com/ZaparooProject/go-pn532/tagops"
	"github.com/ZaparooProject/go-pn532/transport/i2c"
	"github.com/ZaparooProject/go-pn532/transport/spi"
	"github.com/ZaparooProject/go-pn532/transport/uart"
	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	echondef "github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/rs/zerolog/log"
)

const (
	DriverID = "pn532"

	quickDetectionTimeout = 5 * time.Second
	ndefReadTimeout       = 2 * time.Second
	deviceTimeout         = 5 * time.Second
)

// PN532Device abstracts the pn532.Device for testing.
type PN532Device interface {
	Init() error
	SetTimeout(timeout time.Duration) error
	Close() error
}

// PollingSession abstracts the polling.Session for testing.
type PollingSession interface {
	Start(ctx context.Context) error
	Close() error
	SetOnCardDetected(callback func(*pn532.DetectedTag) error)
}

// TransportFactory creates a transport from device info.
type TransportFactory func(deviceInfo detection.DeviceInfo) (pn532.Transport, error)

// DeviceFactory creates a PN532 device from a transport.
type DeviceFactory func(transport pn532.Transport) (PN532Device, error)

// SessionFactory creates a polling session from a device.
type SessionFactory func(device PN532Device, sessionConfig *polling.Config) PollingSession

// NDEFReader reads the NDEF message of a detected tag.
type NDEFReader func(ctx context.Context, device PN532Device, tag *pn532.DetectedTag) (*pn532.NDEFMessage, error)

// DefaultTransportFactory creates a real transport.
func DefaultTransportFactory(deviceInfo detection.DeviceInfo) (pn532.Transport, error) {
	switch deviceInfo.Transport {
	case "uart":
		transport, err := uart.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case "i2c":
		transport, err := i2c.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", deviceInfo.Transport)
	}
}

// DefaultDeviceFactory creates a real pn532.Device.
func DefaultDeviceFactory(transport pn532.Transport) (PN532Device, error) {
	device, err := pn532.New(transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create PN532 device: %w", err)
	}
	return device, nil
}

type realSession struct {
	session *polling.Session
}

func (s *realSession) Start(ctx context.Context) error {
	if err := s.session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start polling session: %w", err)
	}
	return nil
}

func (s *realSession) Close() error {
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("failed to close polling session: %w", err)
	}
	return nil
}

func (s *realSession) SetOnCardDetected(callback func(*pn532.DetectedTag) error) {
	s.session.OnCardDetected = callback
}

// DefaultSessionFactory creates a real polling.Session.
func DefaultSessionFactory(device PN532Device, sessionConfig *polling.Config) PollingSession {
	if dev, ok := device.(*pn532.Device); ok {
		return &realSession{session: polling.NewSession(dev, sessionConfig)}
	}
	return nil
}

// DefaultNDEFReader reads NDEF data with tagops on a real device. Other
// devices yield no message.
func DefaultNDEFReader(ctx context.Context, device PN532Device, tag *pn532.DetectedTag) (*pn532.NDEFMessage, error) {
	dev, ok := device.(*pn532.Device)
	if !ok {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ndefReadTimeout)
	defer cancel()

	ops := tagops.New(dev)
	if err := ops.DetectTag(ctx); err != nil {
		return nil, fmt.Errorf("failed to detect tag %s for NDEF read: %w", tag.UID, err)
	}
	msg, err := ops.ReadNDEF(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read NDEF: %w", err)
	}
	return msg, nil
}

func createVIDPIDBlocklist() []string {
	return []string{
		"16C0:0F38", // Sinden Lightgun
		"16C0:0F39", // Sinden Lightgun
		"16D0:0F38", // Sinden Lightgun
		"16D0:0F39", // Sinden Lightgun
	}
}

// Options selects the PN532 connection. An empty Path triggers
// auto-detection on first use.
type Options struct {
	Transport        string
	Path             string
	DiscoveryTimeout time.Duration
}

// Driver implements radio.Driver on a PN532. The device is opened lazily and
// kept open between reads.
type Driver struct {
	device           PN532Device
	transportFactory TransportFactory
	deviceFactory    DeviceFactory
	sessionFactory   SessionFactory
	readNDEF         NDEFReader
	cancel           context.CancelFunc
	opts             Options
	mu               syncutil.Mutex
	readMu           syncutil.Mutex
}

func New(opts Options) *Driver {
	if opts.Transport == "" {
		opts.Transport = "uart"
	}
	return &Driver{
		opts:             opts,
		transportFactory: DefaultTransportFactory,
		deviceFactory:    DefaultDeviceFactory,
		sessionFactory:   DefaultSessionFactory,
		readNDEF:         DefaultNDEFReader,
	}
}

func (*Driver) Metadata() radio.DriverMetadata {
	return radio.DriverMetadata{
		ID:          DriverID,
		Description: "PN532 NFC reader (UART/I2C/SPI)",
	}
}

// Availability opens the device if needed. A device that cannot be opened is
// reported as disabled since it may simply be unplugged.
func (d *Driver) Availability(context.Context) radio.Availability {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openLocked(); err != nil {
		log.Debug().Err(err).Msg("PN532 not available")
		return radio.Disabled
	}
	return radio.Ready
}

func (d *Driver) detect() (detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	opts.Timeout = quickDetectionTimeout
	opts.Mode = detection.Safe
	opts.Blocklist = createVIDPIDBlocklist()

	devices, err := detection.DetectAll(&opts)
	if err != nil {
		return detection.DeviceInfo{}, fmt.Errorf("PN532 detection failed: %w", err)
	}
	if len(devices) == 0 {
		return detection.DeviceInfo{}, errors.New("no PN532 device found")
	}
	log.Debug().Msgf("detected PN532 device: %s:%s", devices[0].Transport, devices[0].Path)
	return devices[0], nil
}

func (d *Driver) openLocked() error {
	if d.device != nil {
		return nil
	}

	info := detection.DeviceInfo{Transport: d.opts.Transport, Path: d.opts.Path}
	if info.Path == "" {
		detected, err := d.detect()
		if err != nil {
			return err
		}
		info = detected
	}

	transport, err := d.transportFactory(info)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := d.deviceFactory(transport)
	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		return fmt.Errorf("failed to create PN532 device: %w", err)
	}

	if err := device.Init(); err != nil {
		_ = device.Close()
		return fmt.Errorf("failed to initialize PN532 device: %w", err)
	}

	if err := device.SetTimeout(deviceTimeout); err != nil {
		_ = device.Close()
		return fmt.Errorf("failed to set device timeout: %w", err)
	}

	d.device = device
	log.Info().Msgf("PN532 reader opened: %s:%s", info.Transport, info.Path)
	return nil
}

type detectResult struct {
	tag *pn532.DetectedTag
	err error
}

// RequestRead polls until a tag is detected, the discovery timeout passes or
// ctx is cancelled.
func (d *Driver) RequestRead(ctx context.Context) radio.ReadResult {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	d.mu.Lock()
	if err := d.openLocked(); err != nil {
		d.mu.Unlock()
		return radio.Failed(err)
	}
	device := d.device

	readCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	pollCtx := readCtx
	if d.opts.DiscoveryTimeout > 0 {
		var pollCancel context.CancelFunc
		pollCtx, pollCancel = context.WithTimeout(readCtx, d.opts.DiscoveryTimeout)
		defer pollCancel()
	}

	session := d.sessionFactory(device, polling.DefaultConfig())
	if session == nil {
		return radio.Failed(errors.New("failed to create polling session"))
	}

	results := make(chan detectResult, 1)
	session.SetOnCardDetected(func(tag *pn532.DetectedTag) error {
		select {
		case results <- detectResult{tag: tag}:
		default:
		}
		return nil
	})

	sessCtx, stopSession := context.WithCancel(pollCtx)
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		if err := session.Start(sessCtx); err != nil && !errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded) {
			select {
			case results <- detectResult{err: err}:
			default:
			}
		}
	}()

	defer func() {
		stopSession()
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing PN532 polling session")
		}
		<-sessionDone
	}()

	select {
	case res := <-results:
		if res.err != nil {
			log.Warn().Err(res.err).Msg("PN532 polling failed")
			d.reset()
			return radio.Failed(res.err)
		}
		stopSession()
		return radio.Found(d.snapshot(readCtx, device, res.tag))
	case <-pollCtx.Done():
		if readCtx.Err() != nil {
			return radio.Failed(readCtx.Err())
		}
		return radio.NoTag()
	}
}

// reset drops the device so the next use reopens it.
func (d *Driver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		_ = d.device.Close()
		d.device = nil
	}
}

func (d *Driver) snapshot(ctx context.Context, device PN532Device, tag *pn532.DetectedTag) *tags.TagSnapshot {
	log.Info().Msgf("new tag detected: %s (%s)", tag.Type, tag.UID)

	snap := &tags.TagSnapshot{
		TagType:   convertTagType(tag.Type),
		TechTypes: techTypes(tag.Type),
		Records:   []echondef.Record{},
	}

	if uid, err := hex.DecodeString(tag.UID); err == nil {
		snap.TagID = uid
	} else {
		snap.TagID = []byte(tag.UID)
	}

	msg, err := d.readNDEF(ctx, device, tag)
	if err != nil {
		log.Debug().Err(err).Str("uid", tag.UID).Msg("no NDEF data read from tag")
		return snap
	}
	records, err := fromNDEFMessage(msg)
	if err != nil {
		log.Warn().Err(err).Str("uid", tag.UID).Msg("tag carries malformed NDEF records")
		return snap
	}
	snap.Records = records
	return snap
}

// CancelRead aborts the outstanding read, if any.
func (d *Driver) CancelRead(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return nil
	}
	log.Debug().Msg("cancelling PN532 read")
	d.cancel()
	return nil
}

func (d *Driver) Close() error {
	if err := d.CancelRead(context.Background()); err != nil {
		return err
	}
	d.readMu.Lock()
	defer d.readMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	err := d.device.Close()
	d.device = nil
	if err != nil {
		return fmt.Errorf("failed to close PN532 device: %w", err)
	}
	return nil
}

func convertTagType(tagType pn532.TagType) string {
	switch tagType {
	case pn532.TagTypeNTAG:
		return tags.TypeNTAG
	case pn532.TagTypeMIFARE:
		return tags.TypeMifare
	case pn532.TagTypeFeliCa:
		return tags.TypeFeliCa
	case pn532.TagTypeUnknown, pn532.TagTypeAny:
		return tags.TypeUnknown
	default:
		return tags.TypeUnknown
	}
}

func techTypes(tagType pn532.TagType) []string {
	switch tagType {
	case pn532.TagTypeNTAG:
		return []string{"NfcA", "MifareUltralight", "Ndef"}
	case pn532.TagTypeMIFARE:
		return []string{"NfcA", "MifareClassic"}
	case pn532.TagTypeFeliCa:
		return []string{"NfcF"}
	case pn532.TagTypeUnknown, pn532.TagTypeAny:
		return []string{"NfcA"}
	default:
		return []string{"NfcA"}
	}
}
