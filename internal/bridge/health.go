package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthReporter publishes bridge status at regular intervals and on
// lifecycle transitions.
type HealthReporter struct {
	bridgeID    string
	version     string
	startTime   time.Time
	interval    time.Duration
	source      SnapshotSource
	publisher   HealthPublisher
	metrics     MetricsWriter
	broadcaster StatsBroadcaster

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// SnapshotSource provides the bridge state to report. *Bridge implements it.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsWriter records relay counters, typically to InfluxDB.
type MetricsWriter interface {
	WriteRelayStats(bridgeID string, dir Direction, stats DirectionStats)
}

// StatsBroadcaster pushes snapshots to live subscribers.
type StatsBroadcaster interface {
	BroadcastStats(snap Snapshot)
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// Source is required.
	Source SnapshotSource

	// Publisher, Metrics and Broadcaster are each optional.
	Publisher   HealthPublisher
	Metrics     MetricsWriter
	Broadcaster StatsBroadcaster
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		bridgeID:    cfg.BridgeID,
		version:     cfg.Version,
		startTime:   time.Now(),
		interval:    interval,
		source:      cfg.Source,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		broadcaster: cfg.Broadcaster,
		done:        make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "process shutting down")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := StatusFor(h.source.Snapshot())
	return h.publishStatus(status, reason)
}

// HandleEvent republishes status after transitions that change it.
func (h *HealthReporter) HandleEvent(e Event) {
	switch e.Kind {
	case EventReady, EventDisconnect, EventConnectionOpened, EventOpenFailed, EventLoopStopped:
		if err := h.PublishNow(); err != nil {
			h.logError("failed to publish health", err)
		}
	}
}

// GetLWTPayload returns the Last Will and Testament payload.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.bridgeID))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return HealthTopic(h.bridgeID)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.tick()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// tick publishes health, writes metrics and broadcasts one snapshot.
func (h *HealthReporter) tick() {
	snap := h.source.Snapshot()

	status, reason := StatusFor(snap)
	if err := h.publish(snap, status, reason); err != nil {
		h.logError("failed to publish health", err)
	}

	if h.metrics != nil {
		for _, dir := range []Direction{ToFirmware, ToTFT} {
			h.metrics.WriteRelayStats(h.bridgeID, dir, snap.Directions[dir])
		}
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastStats(snap)
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	return h.publish(h.source.Snapshot(), status, reason)
}

func (h *HealthReporter) publish(snap Snapshot, status HealthStatus, reason string) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	msg := NewHealthMessage(snap, h.version, status, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(HealthTopic(h.bridgeID), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
