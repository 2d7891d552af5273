package models

import "errors"

// Domain error taxonomy. Services wrap these with context; the HTTP layer
// maps them to problem+json responses via errors.Is.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrIllegalTransition    = errors.New("illegal state transition")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrCurrencyNotPermitted = errors.New("currency not permitted for user")
	ErrCurrencyKindMismatch = errors.New("currency kind does not match operation kind")
	ErrNotFound             = errors.New("not found")
)
