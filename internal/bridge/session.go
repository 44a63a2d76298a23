package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// session is the state shared by the two relay loops of one ready period.
type session struct {
	id        string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// shutdown is set once, by Disconnect or Stop.
	shutdown atomic.Bool

	wg   sync.WaitGroup
	done chan struct{}

	// reported records which (kind, direction) pairs were already journalled.
	reportedMu sync.Mutex
	reported   map[string]bool
}

func newSession() *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:        uuid.NewString(),
		startedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		reported:  make(map[string]bool),
	}
}

// signalShutdown sets the shutdown flag and wakes sleeping loops.
func (s *session) signalShutdown() {
	s.shutdown.Store(true)
	s.cancel()
}

func (s *session) shuttingDown() bool {
	return s.shutdown.Load()
}

// spawn runs fn as one of the session's loops.
func (s *session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// seal closes done once every spawned loop has returned.
// Must be called after the last spawn.
func (s *session) seal() {
	go func() {
		s.wg.Wait()
		close(s.done)
	}()
}

// wait blocks until the session's loops have exited or ctx expires.
func (s *session) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep pauses for d or until shutdown.
func (s *session) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.ctx.Done():
	}
}

// firstReport returns true the first time it is called for key.
func (s *session) firstReport(key string) bool {
	s.reportedMu.Lock()
	defer s.reportedMu.Unlock()
	if s.reported[key] {
		return false
	}
	s.reported[key] = true
	return true
}
