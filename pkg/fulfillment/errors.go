package fulfillment

import (
	"errors"
	"fmt"
)

// Kind classifies an expected, caller-recoverable failure.
// The string values are part of the JSON contract exposed to scanners and UIs.
type Kind string

const (
	KindInvalidState     Kind = "InvalidState"
	KindEmptyChecklist   Kind = "EmptyChecklist"
	KindValidation       Kind = "ValidationError"
	KindUnknownCode      Kind = "UnknownCode"
	KindDuplicateScan    Kind = "DuplicateScan"
	KindNotScanning      Kind = "NotScanning"
	KindDuplicateRequest Kind = "DuplicateRequest"
	KindUnauthorized     Kind = "Unauthorized"
	KindExportValidation Kind = "ExportValidation"
	KindNotFound         Kind = "NotFound"
)

// Error is the single error type returned for every expected domain failure.
// A failed operation never leaves partial state behind.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrEmptyChecklist   = &Error{Kind: KindEmptyChecklist}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUnknownCode      = &Error{Kind: KindUnknownCode}
	ErrDuplicateScan    = &Error{Kind: KindDuplicateScan}
	ErrNotScanning      = &Error{Kind: KindNotScanning}
	ErrDuplicateRequest = &Error{Kind: KindDuplicateRequest}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrExportValidation = &Error{Kind: KindExportValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

func newError(kind Kind, op, format string, a ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, a...)}
}

// NewError builds a domain error for callers outside this package
// (engine, export) that need to report one of the shared kinds.
func NewError(kind Kind, op, format string, a ...any) *Error {
	return newError(kind, op, format, a...)
}

// KindOf returns the Kind carried by err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsScanRejection reports whether err is one of the non-fatal scan outcomes
// a device should surface immediately before accepting the next code.
func IsScanRejection(err error) bool {
	switch KindOf(err) {
	case KindUnknownCode, KindDuplicateScan, KindNotScanning:
		return true
	}
	return false
}
