package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tftbridge/internal/bridge"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
	pruneEvery       = 100
)

// WriterConfig holds Writer settings.
type WriterConfig struct {
	// QueueSize bounds pending events. Default: 256.
	QueueSize int

	// Retain caps the table size. 0 keeps everything.
	Retain int
}

// Writer queues events and stores them in the background.
type Writer struct {
	repo   Repository
	retain int
	queue  chan bridge.Event

	dropped atomic.Uint64
	written int

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   bridge.Logger
	loggerMu sync.RWMutex
}

// NewWriter creates a writer. Call Start before events arrive.
func NewWriter(repo Repository, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Writer{
		repo:   repo,
		retain: cfg.Retain,
		queue:  make(chan bridge.Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the write goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop drains queued events and waits for the write goroutine.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

// HandleEvent queues e. It never blocks; when the queue is full the event
// is dropped and counted.
func (w *Writer) HandleEvent(e bridge.Event) {
	select {
	case <-w.done:
		w.dropped.Add(1)
		return
	default:
	}

	select {
	case w.queue <- e:
	default:
		if w.dropped.Add(1) == 1 {
			w.logWarn("journal queue full, dropping events", "queue_size", cap(w.queue))
		}
	}
}

// Dropped returns the number of events that were not journaled.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case e := <-w.queue:
			w.store(e)
		case <-w.done:
			for {
				select {
				case e := <-w.queue:
					w.store(e)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) store(e bridge.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	entry := &Entry{
		BridgeID:  e.BridgeID,
		SessionID: e.SessionID,
		Kind:      string(e.Kind),
		Endpoint:  e.Endpoint,
		Detail:    e.Detail,
		CreatedAt: e.Timestamp,
	}
	if err := w.repo.Create(ctx, entry); err != nil {
		w.dropped.Add(1)
		w.logWarn("journal write failed", "kind", e.Kind, "error", err)
		return
	}

	w.written++
	if w.retain > 0 && w.written%pruneEvery == 0 {
		n, err := w.repo.Prune(ctx, w.retain)
		if err != nil {
			w.logWarn("journal prune failed", "error", err)
		} else if n > 0 {
			w.logDebug("journal pruned", "removed", n, "retain", w.retain)
		}
	}
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger bridge.Logger) {
	w.loggerMu.Lock()
	w.logger = logger
	w.loggerMu.Unlock()
}

func (w *Writer) getLogger() bridge.Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	return w.logger
}

func (w *Writer) logWarn(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (w *Writer) logDebug(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}
