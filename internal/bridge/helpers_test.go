package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tftbridge/internal/serial"
)

var errPortClosed = errors.New("fake: port closed")

// fakePort is an in-memory serial.Port fed through a channel.
type fakePort struct {
	name string

	lines chan []byte
	errs  chan error

	// timeout makes ReadLine return (nil, nil) after the given wait. Zero blocks.
	timeout time.Duration
	// ignoreCtx makes ReadLine deaf to cancellation, like a blocking device read.
	ignoreCtx bool

	panicNext atomic.Bool
	reads     atomic.Int64

	mu         sync.Mutex
	written    [][]byte
	failWrites int
	closed     bool
	closeCount int
	closedCh   chan struct{}
}

func newFakePort(name string) *fakePort {
	return &fakePort{
		name:     name,
		lines:    make(chan []byte, 16),
		errs:     make(chan error, 4),
		timeout:  20 * time.Millisecond,
		closedCh: make(chan struct{}),
	}
}

func (p *fakePort) Name() string { return p.name }

func (p *fakePort) ReadLine(ctx context.Context) ([]byte, error) {
	p.reads.Add(1)
	if p.panicNext.CompareAndSwap(true, false) {
		panic("fake: read exploded")
	}

	var timeout <-chan time.Time
	if p.timeout > 0 {
		t := time.NewTimer(p.timeout)
		defer t.Stop()
		timeout = t.C
	}
	done := ctx.Done()
	if p.ignoreCtx {
		done = nil
	}

	select {
	case line := <-p.lines:
		return line, nil
	case err := <-p.errs:
		return nil, err
	case <-p.closedCh:
		return nil, errPortClosed
	case <-done:
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.failWrites > 0 {
		p.failWrites--
		return 0, fmt.Errorf("fake: write to %s failed", p.name)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	p.written = append(p.written, cp)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	if !p.closed {
		p.closed = true
		close(p.closedCh)
	}
	return nil
}

func (p *fakePort) setFailWrites(n int) {
	p.mu.Lock()
	p.failWrites = n
	p.mu.Unlock()
}

func (p *fakePort) getWritten() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.written))
	for i, w := range p.written {
		out[i] = string(w)
	}
	return out
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeOpener hands out fakePorts by endpoint name.
type fakeOpener struct {
	mu    sync.Mutex
	ports map[string]*fakePort
	fail  map[string]error
	opens map[string]int
}

func newFakeOpener(ports ...*fakePort) *fakeOpener {
	o := &fakeOpener{
		ports: make(map[string]*fakePort),
		fail:  make(map[string]error),
		opens: make(map[string]int),
	}
	for _, p := range ports {
		o.ports[p.name] = p
	}
	return o
}

func (o *fakeOpener) Open(_ context.Context, ep serial.Endpoint) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[ep.Name]++
	if err := o.fail[ep.Name]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", serial.ErrOpenFailed, ep.Path, err)
	}
	p, ok := o.ports[ep.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such device", serial.ErrOpenFailed, ep.Path)
	}
	return p, nil
}

func (o *fakeOpener) setFail(name string, err error) {
	o.mu.Lock()
	o.fail[name] = err
	o.mu.Unlock()
}

func (o *fakeOpener) setPort(p *fakePort) {
	o.mu.Lock()
	o.ports[p.name] = p
	o.mu.Unlock()
}

func (o *fakeOpener) openCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[name]
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) HandleEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// captureLogger records log calls by level.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type testRig struct {
	bridge   *Bridge
	tft      *fakePort
	firmware *fakePort
	opener   *fakeOpener
	events   *eventRecorder
	logger   *captureLogger
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		tft:      newFakePort(EndpointTFT),
		firmware: newFakePort(EndpointFirmware),
		events:   &eventRecorder{},
		logger:   &captureLogger{},
	}
	rig.opener = newFakeOpener(rig.tft, rig.firmware)

	b, err := New(Options{
		ID:           "test-bridge",
		TFT:          serial.Endpoint{Name: EndpointTFT, Path: "/dev/ttyTFT", Baud: 115200, Timeout: time.Second},
		Firmware:     serial.Endpoint{Name: EndpointFirmware, Path: "/tmp/printer", Baud: 250000, Timeout: time.Second},
		Opener:       rig.opener,
		PollInterval: 5 * time.Millisecond,
		Logger:       rig.logger,
		Events:       rig.events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rig.bridge = b

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return rig
}

func (r *testRig) ready(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.bridge.Ready(ctx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func (r *testRig) disconnectAndWait(t *testing.T) {
	t.Helper()
	r.bridge.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.bridge.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// gateOpener blocks Open for one endpoint until release is closed.
type gateOpener struct {
	serial.Opener
	name    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateOpener(inner serial.Opener, name string) *gateOpener {
	return &gateOpener{
		Opener:  inner,
		name:    name,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gateOpener) Open(ctx context.Context, ep serial.Endpoint) (serial.Port, error) {
	if ep.Name == g.name {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.Opener.Open(ctx, ep)
}

// readyAsync runs Ready in the background and returns its result channel.
func (r *testRig) readyAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errCh <- r.bridge.Ready(ctx)
	}()
	return errCh
}

// stateRecorder records the bridge state seen by each event as it is emitted.
type stateRecorder struct {
	bridge *Bridge
	mu     sync.Mutex
	seen   map[EventKind]State
}

func (r *stateRecorder) HandleEvent(e Event) {
	st := r.bridge.State()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[EventKind]State)
	}
	r.seen[e.Kind] = st
}

func (r *stateRecorder) stateAt(kind EventKind) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.seen[kind]
	return st, ok
}
