package serial

import "errors"

// Domain-specific errors for serial endpoints.
var (
	// ErrInvalidEndpoint is returned when an endpoint fails validation.
	ErrInvalidEndpoint = errors.New("serial: invalid endpoint")

	// ErrUnknownDriver is returned by NewOpener for an unrecognised driver name.
	ErrUnknownDriver = errors.New("serial: unknown driver")

	// ErrOpenFailed is returned when the device cannot be opened.
	ErrOpenFailed = errors.New("serial: open failed")

	// ErrPortClosed is returned by operations on a closed port.
	ErrPortClosed = errors.New("serial: port closed")
)
