package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tftbridge/internal/serial"
)

// defaultPollInterval bounds idle sleeps when no interval is configured.
const defaultPollInterval = 100 * time.Millisecond

// Endpoint names used in events and snapshots.
const (
	EndpointTFT      = "tft"
	EndpointFirmware = "firmware"
)

// State is the lifecycle state of the bridge.
type State string

// Lifecycle states.
const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Logger is the logging interface used by the bridge.
// It is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds everything needed to construct a Bridge.
type Options struct {
	// ID names this bridge in events and health messages.
	ID string

	// TFT is the display controller endpoint.
	TFT serial.Endpoint

	// Firmware is the firmware host endpoint.
	Firmware serial.Endpoint

	// Opener opens serial ports. Required.
	Opener serial.Opener

	// PollInterval bounds idle sleeps. Default: 100ms.
	PollInterval time.Duration

	// Logger is optional.
	Logger Logger

	// Events receives lifecycle events. Optional.
	Events EventSink

	// Tap observes every relayed record. Optional.
	Tap RecordTap
}

// Bridge relays records between the TFT and firmware endpoints.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id           string
	opener       serial.Opener
	tft          *slot
	firmware     *slot
	pollInterval time.Duration
	events       EventSink
	tap          RecordTap

	toFirmware directionStats
	toTFT      directionStats

	// lifecycleMu serialises Ready and Stop.
	lifecycleMu sync.Mutex

	// mu guards state, sess and closed.
	mu     sync.Mutex
	state  State
	sess   *session
	closed bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a stopped bridge. Call Ready to start relaying.
func New(opts Options) (*Bridge, error) {
	if opts.Opener == nil {
		return nil, fmt.Errorf("%w: opener is required", ErrInvalidOptions)
	}
	if opts.TFT.Name == "" {
		opts.TFT.Name = EndpointTFT
	}
	if opts.Firmware.Name == "" {
		opts.Firmware.Name = EndpointFirmware
	}
	if err := opts.TFT.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := opts.Firmware.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return &Bridge{
		id:           opts.ID,
		opener:       opts.Opener,
		tft:          newSlot(opts.TFT),
		firmware:     newSlot(opts.Firmware),
		pollInterval: pollIntervalOrDefault(opts.PollInterval),
		events:       opts.Events,
		tap:          opts.Tap,
		state:        StateStopped,
		logger:       opts.Logger,
	}, nil
}

// ID returns the bridge identifier.
func (b *Bridge) ID() string { return b.id }

// Ready handles the host's ready signal.
//
// From Stopped it waits for the previous session to drain (bounded by
// ctx), opens each absent endpoint and starts both relay loops. While
// Running it only retries opening absent endpoints; no loops are added.
// An endpoint that fails to open stays absent and its loops idle.
func (b *Bridge) Ready(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	state, prev := b.state, b.sess
	b.mu.Unlock()

	if state == StateRunning {
		b.emit(prev, EventReadyRepeated, "", "")
		b.logInfo("ready while running, opening absent endpoints", "session", prev.id)
		b.openAbsent(ctx, prev)
		return nil
	}

	if prev != nil {
		if err := prev.wait(ctx); err != nil {
			b.logWarn("previous session still draining", "session", prev.id, "error", err)
			return fmt.Errorf("%w: %w", ErrDraining, err)
		}
	}

	// Publish the session before opening so a Disconnect that arrives
	// while a device is still opening sets this session's flag.
	s := newSession()
	b.mu.Lock()
	b.sess = s
	b.state = StateRunning
	b.mu.Unlock()

	b.emit(s, EventReady, "", "")
	b.openAbsent(ctx, s)

	s.spawn(func() {
		b.runRelay(s, route{dir: ToFirmware, src: b.tft, dst: b.firmware, stats: &b.toFirmware})
	})
	s.spawn(func() {
		b.runRelay(s, route{dir: ToTFT, src: b.firmware, dst: b.tft, stats: &b.toTFT})
	})
	s.seal()

	b.logInfo("relay session started",
		"session", s.id,
		"tft_open", b.tft.present(),
		"firmware_open", b.firmware.present())
	return nil
}

// openAbsent opens every endpoint without a live connection. It stops
// early once s is shutting down.
func (b *Bridge) openAbsent(ctx context.Context, s *session) {
	for _, sl := range []*slot{b.tft, b.firmware} {
		if s.shuttingDown() {
			return
		}
		if sl.present() {
			continue
		}
		p, err := b.opener.Open(ctx, sl.ep)
		if err != nil {
			b.logWarn("failed to open connection", "endpoint", sl.name(), "device", sl.ep.Path, "error", err)
			b.emit(s, EventOpenFailed, sl.name(), err.Error())
			continue
		}
		if !b.adopt(s, sl, p) {
			b.logDebug("discarding connection opened during shutdown", "endpoint", sl.name())
			_ = p.Close()
			continue
		}
		b.logInfo("connection opened", "endpoint", sl.name(), "device", sl.ep.Path, "baud", sl.ep.Baud)
		b.emit(s, EventConnectionOpened, sl.name(), sl.ep.Path)
	}
}

// adopt stores p in sl unless s has been told to shut down or sl is
// already occupied. The check and the store happen under b.mu, which
// Disconnect holds while setting the flag, so a port is never installed
// after its owning loop has been told to exit.
func (b *Bridge) adopt(s *session, sl *slot, p serial.Port) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.shuttingDown() {
		return false
	}
	return sl.install(p)
}

// Disconnect handles the host's disconnect signal. It sets the shutdown
// flag and returns without waiting; each loop closes its source
// connection when it observes the flag. No-op while Stopped.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}
	s := b.sess
	b.state = StateStopped
	s.signalShutdown()
	b.mu.Unlock()

	b.emit(s, EventDisconnect, "", "")
	b.logInfo("relay session stopping", "session", s.id)
}

// Wait blocks until the current session's loops have exited.
func (b *Bridge) Wait(ctx context.Context) error {
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.wait(ctx)
}

// Stop disconnects, waits for the loops (bounded by ctx) and closes any
// connection still open. Ready fails with ErrClosed afterwards.
func (b *Bridge) Stop(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.Disconnect()
	waitErr := b.Wait(ctx)

	b.mu.Lock()
	b.closed = true
	s := b.sess
	b.mu.Unlock()

	for _, sl := range []*slot{b.tft, b.firmware} {
		closed, err := sl.closeAndClear()
		if err != nil {
			b.logWarn("closing connection failed", "endpoint", sl.name(), "error", err)
		}
		if closed {
			b.emit(s, EventConnectionClosed, sl.name(), "forced")
		}
	}

	b.logInfo("bridge stopped")
	if waitErr != nil {
		return fmt.Errorf("%w: %w", ErrDraining, waitErr)
	}
	return nil
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConnectionSnapshot describes one endpoint.
type ConnectionSnapshot struct {
	Endpoint string `json:"endpoint"`
	Device   string `json:"device"`
	Baud     int    `json:"baud"`
	Open     bool   `json:"open"`
}

// Snapshot is a read-only view of the bridge.
type Snapshot struct {
	BridgeID   string                       `json:"bridge_id"`
	State      State                        `json:"state"`
	SessionID  string                       `json:"session_id,omitempty"`
	StartedAt  *time.Time                   `json:"started_at,omitempty"`
	TFT        ConnectionSnapshot           `json:"tft"`
	Firmware   ConnectionSnapshot           `json:"firmware"`
	Directions map[Direction]DirectionStats `json:"directions"`
}

// Snapshot returns the current state, connections and counters.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	state, s := b.state, b.sess
	b.mu.Unlock()

	snap := Snapshot{
		BridgeID: b.id,
		State:    state,
		TFT:      connectionSnapshot(b.tft),
		Firmware: connectionSnapshot(b.firmware),
		Directions: map[Direction]DirectionStats{
			ToFirmware: b.toFirmware.snapshot(),
			ToTFT:      b.toTFT.snapshot(),
		},
	}
	if s != nil && state == StateRunning {
		started := s.startedAt
		snap.SessionID = s.id
		snap.StartedAt = &started
	}
	return snap
}

func connectionSnapshot(sl *slot) ConnectionSnapshot {
	return ConnectionSnapshot{
		Endpoint: sl.name(),
		Device:   sl.ep.Path,
		Baud:     sl.ep.Baud,
		Open:     sl.present(),
	}
}

// IsDraining reports whether err came from a session that did not drain in time.
func IsDraining(err error) bool {
	return errors.Is(err, ErrDraining)
}

// emit delivers an event to the configured sink.
func (b *Bridge) emit(s *session, kind EventKind, endpoint, detail string) {
	if b.events == nil {
		return
	}
	e := Event{
		BridgeID:  b.id,
		Kind:      kind,
		Endpoint:  endpoint,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if s != nil {
		e.SessionID = s.id
	}
	b.events.HandleEvent(e)
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
