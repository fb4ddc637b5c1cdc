package model

import "errors"

// Error kinds surfaced to the API boundary. Callers wrap them with context and
// match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrSlotTaken          = errors.New("slot taken")
	ErrTooLate            = errors.New("too late")
	ErrNotPaid            = errors.New("not paid")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrConfiguration      = errors.New("configuration error")
	ErrInvalidInput       = errors.New("invalid input")
)
