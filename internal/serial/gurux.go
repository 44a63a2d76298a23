package serial

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/Gurux/gxserial-go"
)

// guruxPollWait is the receive wait used for endpoints without a timeout,
// so a blocking ReadLine still notices context cancellation.
const guruxPollWait = 250 * time.Millisecond

// guruxMedia is the subset of *gxserial.GXSerial used by guruxPort.
type guruxMedia interface {
	Send(data any, receiver string) error
	Receive(args *gxcommon.ReceiveParameters) (bool, error)
	Close() error
}

type guruxPort struct {
	name    string
	timeout time.Duration
	media   guruxMedia

	// release ends synchronous mode on Close.
	release func()
	// asyncErr holds the last error reported by the media reader goroutine.
	asyncErr atomic.Pointer[error]

	closeOnce sync.Once
	closeErr  error
}

func openGurux(ctx context.Context, ep Endpoint) (Port, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	media := newGuruxMedia(ep)
	p := &guruxPort{
		name:    ep.Name,
		timeout: ep.Timeout,
		media:   media,
	}
	media.SetOnError(func(_ gxcommon.IGXMedia, err error) {
		p.asyncErr.Store(&err)
	})

	if err := media.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, ep.Path, err)
	}
	if err := media.Open(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, ep.Path, err)
	}
	p.release = media.GetSynchronous()
	return p, nil
}

// newGuruxMedia configures an unopened 8N1 line for ep.
func newGuruxMedia(ep Endpoint) *gxserial.GXSerial {
	return gxserial.NewGXSerial(ep.Path, gxcommon.BaudRate(ep.Baud), 8, gxcommon.StopBitsOne, gxcommon.ParityNone)
}

func (p *guruxPort) Name() string { return p.name }

func (p *guruxPort) ReadLine(ctx context.Context) ([]byte, error) {
	wait := p.timeout
	if wait <= 0 {
		wait = guruxPollWait
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errp := p.asyncErr.Swap(nil); errp != nil {
			return nil, *errp
		}

		r := gxcommon.NewReceiveParameters[string]()
		r.EOP = "\n"
		r.Count = 0
		r.WaitTime = int(wait / time.Millisecond)

		ok, err := p.media.Receive(r)
		if err != nil {
			return nil, err
		}
		if ok {
			return toBytes(r.Reply), nil
		}
		if p.timeout > 0 {
			return nil, nil
		}
	}
}

func (p *guruxPort) Write(b []byte) (int, error) {
	if err := p.media.Send(b, ""); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *guruxPort) Close() error {
	p.closeOnce.Do(func() {
		if p.release != nil {
			p.release()
		}
		p.closeErr = p.media.Close()
	})
	return p.closeErr
}

// toBytes converts a gurux reply value to a fresh byte slice.
func toBytes(v any) []byte {
	switch r := v.(type) {
	case string:
		return []byte(r)
	case []byte:
		out := make([]byte, len(r))
		copy(out, r)
		return out
	case nil:
		return nil
	default:
		return []byte(fmt.Sprint(r))
	}
}
