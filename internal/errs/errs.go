/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package errs implements the MediaFox error taxonomy: a small set of
// named kinds plus structured detail, so callers can switch on Kind
// instead of matching message strings.
package errs

import "fmt"

// Kind enumerates the error taxonomy from the engine specification.
type Kind string

const (
	MediaNotSupported Kind = "MediaNotSupported"
	MediaLoadFailed    Kind = "MediaLoadFailed"
	DecodeError        Kind = "DecodeError"
	NetworkError       Kind = "NetworkError"
	PermissionDenied   Kind = "PermissionDenied"
	PlaybackError      Kind = "PlaybackError"
	TrackNotFound      Kind = "TrackNotFound"
	InvalidState       Kind = "InvalidState"
	OperationAborted   Kind = "OperationAborted"
)

// recoverable reports whether a kind is one a caller or the engine
// itself can recover from without a fresh load.
var recoverable = map[Kind]bool{
	MediaNotSupported: false,
	MediaLoadFailed:    false,
	DecodeError:        false,
	NetworkError:       true,
	PermissionDenied:   true,
	PlaybackError:      true,
	TrackNotFound:      true,
	InvalidState:       true,
	OperationAborted:   true,
}

// Error is the concrete error type every MediaFox verb returns.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Kind: e.Kind, Message: e.Message, Details: merged, Cause: e.Cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Recoverable reports whether the engine or caller can continue after
// this error without a fresh load.
func (e *Error) Recoverable() bool { return recoverable[e.Kind] }

// As is a convenience for extracting a *Error from a generic error.
func As(err error) (*Error, bool) {
	me, ok := err.(*Error)
	return me, ok
}
