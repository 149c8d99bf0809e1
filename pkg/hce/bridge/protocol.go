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

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Message types exchanged with the companion app.
const (
	TypeHello          = "hello"
	TypeSetApplication = "setApplication"
	TypeSetEnabled     = "setEnabled"
)

// Request is sent from the bridge to the companion. The companion's first
// message uses the same envelope with type hello.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply acknowledges a request by id.
type Reply struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
	OK    bool   `json:"ok"`
}

// Hello describes the connecting companion.
type Hello struct {
	Platform    string `json:"platform" validate:"required,oneof=android ios"`
	Name        string `json:"name,omitempty" validate:"max=64"`
	AppVersion  string `json:"appVersion,omitempty" validate:"max=32"`
	SupportsHCE bool   `json:"supportsHce"`
}

// SetApplicationPayload carries the NDEF message to serve. The JSON encoding
// of a byte slice is base64.
type SetApplicationPayload struct {
	Message []byte `json:"message"`
}

type SetEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

var errUnexpectedHello = errors.New("expected hello message")

var helloValidator = validator.New(validator.WithRequiredStructEnabled())

func validateHello(hello *Hello) error {
	err := helloValidator.Struct(hello)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid hello: %s failed %s", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("invalid hello: %w", err)
}

func parseHello(data []byte) (Request, Hello, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, Hello{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if req.Type != TypeHello {
		return req, Hello{}, fmt.Errorf("%w, got %q", errUnexpectedHello, req.Type)
	}

	var hello Hello
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &hello); err != nil {
			return req, Hello{}, fmt.Errorf("failed to parse hello payload: %w", err)
		}
	}
	if err := validateHello(&hello); err != nil {
		return req, hello, err
	}
	return req, hello, nil
}

func newRequest(id, msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Request{ID: id, Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", msgType, err)
	}
	return data, nil
}
