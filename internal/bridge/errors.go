package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrDraining is returned by Ready when the previous session's relay
	// loops did not exit before the caller's context expired.
	ErrDraining = errors.New("bridge: previous session still draining")

	// ErrClosed is returned by Ready after Stop.
	ErrClosed = errors.New("bridge: closed")

	// ErrInvalidOptions is returned by New for incomplete options.
	ErrInvalidOptions = errors.New("bridge: invalid options")

	// errAbsent is returned when writing to an endpoint with no open connection.
	errAbsent = errors.New("bridge: connection absent")
)
