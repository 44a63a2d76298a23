package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// readChunk is the size of a single device read.
const readChunk = 256

// termiosPort reads records from a blocking device handle.
type termiosPort struct {
	name    string
	timeout time.Duration
	rwc     io.ReadWriteCloser

	// pending holds bytes read after the last complete record.
	pending []byte
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

func openTermios(ctx context.Context, ep Endpoint) (Port, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        ep.Path,
		Baud:        ep.Baud,
		ReadTimeout: ep.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, ep.Path, err)
	}
	return newTermiosPort(ep, p), nil
}

func newTermiosPort(ep Endpoint, rwc io.ReadWriteCloser) *termiosPort {
	return &termiosPort{
		name:    ep.Name,
		timeout: ep.Timeout,
		rwc:     rwc,
		buf:     make([]byte, readChunk),
	}
}

func (p *termiosPort) Name() string { return p.name }

func (p *termiosPort) ReadLine(ctx context.Context) ([]byte, error) {
	if line := p.takeLine(); line != nil {
		return line, nil
	}

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := p.rwc.Read(p.buf)
		if n > 0 {
			p.pending = append(p.pending, p.buf[:n]...)
			if line := p.takeLine(); line != nil {
				return line, nil
			}
		}

		if err != nil {
			// With VTIME set, an expired wait surfaces as a zero-length read.
			if errors.Is(err, io.EOF) && p.timeout > 0 {
				return nil, nil
			}
			return nil, err
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, nil
		}
	}
}

// takeLine removes and returns the first complete record from pending, or
// the first MaxRecordLen bytes when no newline arrives within them.
func (p *termiosPort) takeLine() []byte {
	n := bytes.IndexByte(p.pending, '\n') + 1
	if n == 0 {
		if len(p.pending) < MaxRecordLen {
			return nil
		}
		n = MaxRecordLen
	}
	line := make([]byte, n)
	copy(line, p.pending[:n])
	p.pending = append(p.pending[:0], p.pending[n:]...)
	return line
}

func (p *termiosPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *termiosPort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.rwc.Close()
	})
	return p.closeErr
}
