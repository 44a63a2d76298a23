package serial

import (
	"context"
	"fmt"
	"time"
)

// Driver names understood by NewOpener.
const (
	DriverTermios = "termios"
	DriverGurux   = "gurux"
)

// Endpoint describes one serial device.
type Endpoint struct {
	// Name identifies the endpoint in logs and events ("tft", "firmware").
	Name string

	// Path is the device path, e.g. /dev/ttyS0 or /tmp/printer.
	Path string

	// Baud is the line speed.
	Baud int

	// Timeout bounds a single ReadLine. Zero blocks until a full record arrives.
	Timeout time.Duration
}

// Validate checks that the endpoint can be opened.
func (e Endpoint) Validate() error {
	switch {
	case e.Path == "":
		return fmt.Errorf("%w: %s: path is empty", ErrInvalidEndpoint, e.Name)
	case e.Baud <= 0:
		return fmt.Errorf("%w: %s: baud %d must be positive", ErrInvalidEndpoint, e.Name, e.Baud)
	case e.Timeout < 0:
		return fmt.Errorf("%w: %s: timeout %s must not be negative", ErrInvalidEndpoint, e.Name, e.Timeout)
	}
	return nil
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s(%s@%d)", e.Name, e.Path, e.Baud)
}

// MaxRecordLen caps a record. A driver holding this many bytes without a
// newline returns them as a record that has no trailing newline.
const MaxRecordLen = 4096

// Port is an open, line-oriented serial connection.
type Port interface {
	// ReadLine returns the next newline-terminated record, including the
	// newline. It returns (nil, nil) when the endpoint timeout elapses
	// before a complete record arrives.
	ReadLine(ctx context.Context) ([]byte, error)

	// Write sends data unchanged.
	Write(p []byte) (int, error)

	// Close releases the device. Safe to call more than once.
	Close() error

	// Name returns the endpoint name.
	Name() string
}

// Opener opens ports for endpoints.
type Opener interface {
	Open(ctx context.Context, ep Endpoint) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, ep Endpoint) (Port, error)

// Open calls f(ctx, ep).
func (f OpenerFunc) Open(ctx context.Context, ep Endpoint) (Port, error) {
	return f(ctx, ep)
}

// NewOpener returns the Opener for the named driver.
func NewOpener(driver string) (Opener, error) {
	switch driver {
	case DriverTermios, "":
		return OpenerFunc(openTermios), nil
	case DriverGurux:
		return OpenerFunc(openGurux), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
