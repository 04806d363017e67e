package domain

import "errors"

var (
	ErrUnknownSession  = errors.New("session not found")
	ErrNoActiveSession = errors.New("no active session")
	ErrInvalidTime     = errors.New("target time outside session bounds")
	ErrInvalidSpeed    = errors.New("invalid speed multiplier")
)
