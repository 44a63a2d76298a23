package bridge

import (
	"io"
	"sync"

	"github.com/nerrad567/tftbridge/internal/serial"
)

// slot holds the single live connection for one endpoint.
//
// The opposite relay loop writes through the slot and the owning loop
// closes it; both happen under mu so a close never interleaves with a
// write. Reads are done only by the owning loop, outside mu.
type slot struct {
	ep serial.Endpoint

	mu   sync.Mutex
	port serial.Port
}

func newSlot(ep serial.Endpoint) *slot {
	return &slot{ep: ep}
}

func (s *slot) name() string { return s.ep.Name }

func (s *slot) get() serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *slot) present() bool {
	return s.get() != nil
}

// install stores p unless a connection is already present.
// Returns false when p was not stored.
func (s *slot) install(p serial.Port) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return false
	}
	s.port = p
	return true
}

// write sends the whole record or reports why it could not.
func (s *slot) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return errAbsent
	}
	n, err := s.port.Write(b)
	if err != nil {
		return err
	}
	if n < len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// closeAndClear closes the connection if present and empties the slot.
// Reports whether a connection was closed.
func (s *slot) closeAndClear() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return false, nil
	}
	err := s.port.Close()
	s.port = nil
	return true, err
}
