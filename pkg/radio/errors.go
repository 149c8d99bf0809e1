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

package radio

import (
	"context"
	"errors"
	"strings"
)

// Kind is the classification of a failure surfaced by the session engine.
type Kind int

const (
	KindDriverFailure Kind = iota
	KindUnsupported
	KindDisabled
	KindBusy
	KindCancelled
	KindMalformedRecord
)

func (k Kind) String() string {
	switch k {
	case KindDriverFailure:
		return "driver failure"
	case KindUnsupported:
		return "unsupported"
	case KindDisabled:
		return "disabled"
	case KindBusy:
		return "busy"
	case KindCancelled:
		return "cancelled"
	case KindMalformedRecord:
		return "malformed record"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation and the underlying cause.
type Error struct {
	Cause   error
	Op      string
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(e.Kind.String())
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewError builds a classified error.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

var (
	ErrUnsupported     = &Error{Kind: KindUnsupported}
	ErrDisabled        = &Error{Kind: KindDisabled}
	ErrBusy            = &Error{Kind: KindBusy}
	ErrCancelled       = &Error{Kind: KindCancelled}
	ErrDriverFailure   = &Error{Kind: KindDriverFailure}
	ErrMalformedRecord = &Error{Kind: KindMalformedRecord}
)

// KindOf returns the Kind of err. Unclassified errors are driver failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDriverFailure
}

// ClassifyReadError maps a driver error to a read outcome. Text matching on
// platform error messages happens here and nowhere else.
func ClassifyReadError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeNoTag
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeNoTag
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range cancelSignatures {
		if strings.Contains(msg, sig) {
			return OutcomeCancelled
		}
	}
	return OutcomeFailed
}

var cancelSignatures = []string{
	"cancelled",
	"canceled",
	"session invalidated by user",
	"user cancel",
	"aborted",
}
