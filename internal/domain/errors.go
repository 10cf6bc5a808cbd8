package domain

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors below wrap one of these so callers can
// match either the class or the exact cause with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrAccountNotActivated = errors.New("account not activated")
	ErrPendingActivation   = errors.New("account created, pending activation")
	ErrVersionConflict     = errors.New("version conflict")
)

var (
	ErrEventNameRequired       = fmt.Errorf("%w: event name required", ErrValidation)
	ErrInvalidRange            = fmt.Errorf("%w: end must not be before start", ErrValidation)
	ErrInvalidDirection        = fmt.Errorf("%w: invalid direction", ErrValidation)
	ErrInvalidInterval         = fmt.Errorf("%w: invalid interval", ErrValidation)
	ErrEmailRequired           = fmt.Errorf("%w: email required", ErrValidation)
	ErrPasswordTooShort        = fmt.Errorf("%w: password too short", ErrValidation)
	ErrAssociationNameRequired = fmt.Errorf("%w: association name required", ErrValidation)
	ErrEmailTaken              = fmt.Errorf("%w: email already registered", ErrValidation)

	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrAssociationNotFound = fmt.Errorf("association %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)

	ErrTotalAtZero    = fmt.Errorf("%w: total is already zero", ErrInvalidState)
	ErrEventNotActive = fmt.Errorf("%w: event is not active", ErrInvalidState)
	ErrLedgerFull     = fmt.Errorf("%w: ledger is full", ErrInvalidState)
)
