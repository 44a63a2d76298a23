package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tftbridge/internal/serial"
)

// route binds a relay loop to its source and destination slots.
type route struct {
	dir   Direction
	src   *slot
	dst   *slot
	stats *directionStats
}

// runRelay copies records from rt.src to rt.dst until the session shuts
// down, then closes and clears rt.src.
func (b *Bridge) runRelay(s *session, rt route) {
	b.emit(s, EventLoopStarted, rt.src.name(), string(rt.dir))
	b.logDebug("relay loop started", "session", s.id, "direction", rt.dir)

	for !s.shuttingDown() {
		b.relayOnce(s, rt)
	}

	closed, err := rt.src.closeAndClear()
	if err != nil {
		b.logWarn("closing connection failed", "endpoint", rt.src.name(), "error", err)
	}
	if closed {
		b.emit(s, EventConnectionClosed, rt.src.name(), "")
	}

	b.emit(s, EventLoopStopped, rt.src.name(), string(rt.dir))
	b.logDebug("relay loop stopped", "session", s.id, "direction", rt.dir)
}

// relayOnce performs one iteration. A panic is logged and the loop continues.
func (b *Bridge) relayOnce(s *session, rt route) {
	defer func() {
		if r := recover(); r != nil {
			rt.stats.readErrors.Add(1)
			b.logError("relay loop panic recovered", fmt.Errorf("%v", r), "direction", rt.dir)
			s.sleep(b.pollInterval)
		}
	}()

	src := rt.src.get()
	if src == nil || !rt.dst.present() {
		s.sleep(b.pollInterval)
		return
	}

	record, err := src.ReadLine(s.ctx)
	if err != nil {
		if s.shuttingDown() {
			return
		}
		rt.stats.readErrors.Add(1)
		b.logWarn("read failed", "endpoint", rt.src.name(), "direction", rt.dir, "error", err)
		b.reportOnce(s, EventReadError, rt, err)
		s.sleep(b.pollInterval)
		return
	}
	if len(record) == 0 {
		rt.stats.timeouts.Add(1)
		return
	}
	if record[len(record)-1] != '\n' && s.firstReport("oversize/"+string(rt.dir)) {
		b.logWarn("oversized record relayed without terminator",
			"endpoint", rt.src.name(),
			"direction", rt.dir,
			"max_bytes", serial.MaxRecordLen)
	}

	if err := rt.dst.write(record); err != nil {
		if errors.Is(err, errAbsent) {
			// Destination closed during shutdown.
			b.logDebug("destination closed, record dropped", "direction", rt.dir, "bytes", len(record))
			return
		}
		rt.stats.writeErrors.Add(1)
		b.logWarn("write failed, record dropped",
			"endpoint", rt.dst.name(),
			"direction", rt.dir,
			"bytes", len(record),
			"error", err)
		b.reportOnce(s, EventWriteError, rt, err)
		return
	}

	rt.stats.records.Add(1)
	rt.stats.bytes.Add(uint64(len(record)))
	if b.tap != nil {
		b.tap(rt.dir, record)
	}
}

// reportOnce journals the first error of each kind per direction and session.
func (b *Bridge) reportOnce(s *session, kind EventKind, rt route, err error) {
	if !s.firstReport(string(kind) + "/" + string(rt.dir)) {
		return
	}
	endpoint := rt.src.name()
	if kind == EventWriteError {
		endpoint = rt.dst.name()
	}
	b.emit(s, kind, endpoint, err.Error())
}

// pollIntervalOrDefault clamps a configured idle interval.
func pollIntervalOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPollInterval
	}
	return d
}
