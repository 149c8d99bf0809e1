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

// Package emit turns archived items into the NDEF message an emulated tag
// serves and hands it to the session engine.
package emit

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
	"github.com/rs/zerolog/log"
)

// Policy selects which bytes are emitted for an item.
type Policy string

const (
	// PolicyIdentifier emits the item id as a single text record.
	PolicyIdentifier Policy = "identifier"
	// PolicyReplay emits the records read from the original tag.
	PolicyReplay Policy = "replay"
)

// ParsePolicy accepts a policy name, case-insensitively. Empty means
// PolicyIdentifier.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyIdentifier:
		return PolicyIdentifier, nil
	case PolicyReplay:
		return PolicyReplay, nil
	default:
		return "", fmt.Errorf("unknown emit policy: %q", s)
	}
}

// Engine is the part of the session engine the controller drives.
type Engine interface {
	HCE() radio.HCE
	StartEmit(ctx context.Context, itemID string, message []byte) error
}

type Options struct {
	Policy   Policy
	Language string
}

// Controller derives emission payloads. It holds no radio state of its own.
type Controller struct {
	engine   Engine
	policy   Policy
	language string
}

func New(engine Engine, opts Options) *Controller {
	if opts.Policy == "" {
		opts.Policy = PolicyIdentifier
	}
	if opts.Language == "" {
		opts.Language = ndef.DefaultLanguage
	}
	return &Controller{
		engine:   engine,
		policy:   opts.Policy,
		language: opts.Language,
	}
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Records returns the records that would be emitted for item.
func (c *Controller) Records(item *tags.ScannedItem) ([]ndef.Record, error) {
	switch c.policy {
	case PolicyReplay:
		if len(item.Records) == 0 {
			return nil, radio.NewError(radio.KindMalformedRecord, "emit",
				"item "+item.ID+" has no records to replay", nil)
		}
		return ndef.CloneRecords(item.Records), nil
	case PolicyIdentifier:
		rec, err := ndef.EncodeTextLang(item.ID, c.language)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item id: %w", err)
		}
		return []ndef.Record{rec}, nil
	default:
		return nil, fmt.Errorf("unknown emit policy: %q", c.policy)
	}
}

// Message returns the encoded NDEF message for item.
func (c *Controller) Message(item *tags.ScannedItem) ([]byte, error) {
	records, err := c.Records(item)
	if err != nil {
		return nil, err
	}
	msg, err := ndef.MarshalMessage(records)
	if err != nil {
		return nil, radio.NewError(radio.KindMalformedRecord, "emit", "failed to encode message", err)
	}
	return msg, nil
}

// Emit starts emitting item, or stops if it is already being emitted.
func (c *Controller) Emit(ctx context.Context, item *tags.ScannedItem) error {
	hce := c.engine.HCE()
	if !hce.Supported() {
		return radio.NewError(radio.KindUnsupported, "emit", hce.Reason(), nil)
	}

	msg, err := c.Message(item)
	if err != nil {
		return err
	}

	log.Debug().
		Str("item", item.ID).
		Str("policy", string(c.policy)).
		Int("bytes", len(msg)).
		Msg("emit requested")
	if err := c.engine.StartEmit(ctx, item.ID, msg); err != nil {
		return fmt.Errorf("failed to emit %s: %w", item.ID, err)
	}
	return nil
}
