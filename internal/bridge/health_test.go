package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// mockPublisher implements HealthPublisher for testing.
type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockPublisher(connected bool) *mockPublisher {
	return &mockPublisher{connected: connected}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{
		topic:    topic,
		payload:  payload,
		qos:      qos,
		retained: retained,
	})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]publishedMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

func (m *mockPublisher) last(t *testing.T) HealthMessage {
	t.Helper()
	msgs := m.getMessages()
	if len(msgs) == 0 {
		t.Fatal("no messages published")
	}
	var hm HealthMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return hm
}

// staticSource returns a fixed snapshot.
type staticSource struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *staticSource) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *staticSource) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type metricPoint struct {
	bridgeID string
	dir      Direction
	stats    DirectionStats
}

type mockMetrics struct {
	mu     sync.Mutex
	points []metricPoint
}

func (m *mockMetrics) WriteRelayStats(bridgeID string, dir Direction, stats DirectionStats) {
	m.mu.Lock()
	m.points = append(m.points, metricPoint{bridgeID, dir, stats})
	m.mu.Unlock()
}

func (m *mockMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

type mockBroadcaster struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (m *mockBroadcaster) BroadcastStats(snap Snapshot) {
	m.mu.Lock()
	m.snaps = append(m.snaps, snap)
	m.mu.Unlock()
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func runningSnapshot(tftOpen, fwOpen bool) Snapshot {
	return Snapshot{
		BridgeID:  "printer-1",
		State:     StateRunning,
		SessionID: "sess-1",
		TFT:       ConnectionSnapshot{Endpoint: EndpointTFT, Open: tftOpen},
		Firmware:  ConnectionSnapshot{Endpoint: EndpointFirmware, Open: fwOpen},
		Directions: map[Direction]DirectionStats{
			ToFirmware: {Records: 10, Bytes: 120},
			ToTFT:      {Records: 12, Bytes: 300, Timeouts: 4},
		},
	}
}

func TestNewHealthReporter_Defaults(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{BridgeID: "printer-1", Source: &staticSource{}})
	if hr.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", hr.interval)
	}
	if hr.GetLWTTopic() != "tftbridge/health/printer-1" {
		t.Errorf("GetLWTTopic() = %q", hr.GetLWTTopic())
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	tests := []struct {
		name       string
		snap       Snapshot
		wantStatus HealthStatus
	}{
		{"running", runningSnapshot(true, true), HealthRunning},
		{"degraded", runningSnapshot(false, true), HealthDegraded},
		{"stopped", Snapshot{BridgeID: "printer-1", State: StateStopped}, HealthStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newMockPublisher(true)
			hr := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "printer-1",
				Version:   "1.2.3",
				Source:    &staticSource{snap: tt.snap},
				Publisher: pub,
			})

			if err := hr.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}

			msgs := pub.getMessages()
			if len(msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(msgs))
			}
			if msgs[0].topic != "tftbridge/health/printer-1" || msgs[0].qos != 1 || !msgs[0].retained {
				t.Errorf("publish = %s qos=%d retained=%v", msgs[0].topic, msgs[0].qos, msgs[0].retained)
			}

			hm := pub.last(t)
			if hm.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", hm.Status, tt.wantStatus)
			}
			if hm.Version != "1.2.3" {
				t.Errorf("version = %q", hm.Version)
			}
		})
	}
}

func TestHealthReporter_DisconnectedPublisherSkips(t *testing.T) {
	pub := newMockPublisher(false)
	hr := NewHealthReporter(HealthReporterConfig{Source: &staticSource{}, Publisher: pub})

	if err := hr.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}
	if len(pub.getMessages()) != 0 {
		t.Error("expected no publish while disconnected")
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{Source: &staticSource{}})
	if err := hr.PublishStarting(); err != nil {
		t.Errorf("PublishStarting() error = %v", err)
	}
}

func TestHealthReporter_StartTicksMetricsAndBroadcast(t *testing.T) {
	pub := newMockPublisher(true)
	metrics := &mockMetrics{}
	bc := &mockBroadcaster{}
	hr := NewHealthReporter(HealthReporterConfig{
		BridgeID:    "printer-1",
		Interval:    10 * time.Millisecond,
		Source:      &staticSource{snap: runningSnapshot(true, true)},
		Publisher:   pub,
		Metrics:     metrics,
		Broadcaster: bc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hr.Start(ctx)

	waitFor(t, "several ticks", func() bool { return bc.count() >= 3 })
	hr.Stop()

	// Two points (one per direction) per tick.
	if metrics.count()%2 != 0 || metrics.count() < 6 {
		t.Errorf("metric points = %d, want an even number >= 6", metrics.count())
	}
	if got := pub.last(t).Status; got != HealthStopping {
		t.Errorf("final status = %q, want stopping", got)
	}

	hr.Stop() // idempotent
}

func TestHealthReporter_HandleEvent(t *testing.T) {
	src := &staticSource{snap: Snapshot{BridgeID: "printer-1", State: StateStopped}}
	pub := newMockPublisher(true)
	hr := NewHealthReporter(HealthReporterConfig{BridgeID: "printer-1", Source: src, Publisher: pub})

	hr.HandleEvent(Event{Kind: EventLoopStarted})
	if len(pub.getMessages()) != 0 {
		t.Error("loop_started should not republish")
	}

	src.set(runningSnapshot(true, true))
	hr.HandleEvent(Event{Kind: EventReady})
	if got := pub.last(t).Status; got != HealthRunning {
		t.Errorf("status after ready = %q, want running", got)
	}

	src.set(runningSnapshot(true, false))
	hr.HandleEvent(Event{Kind: EventOpenFailed})
	hm := pub.last(t)
	if hm.Status != HealthDegraded || hm.Reason != "firmware connection absent" {
		t.Errorf("after open_failed = %q (%q)", hm.Status, hm.Reason)
	}
}

func TestHealthReporter_LWTPayload(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{BridgeID: "printer-1", Source: &staticSource{}})
	payload, err := hr.GetLWTPayload()
	if err != nil {
		t.Fatalf("GetLWTPayload() error = %v", err)
	}
	var hm HealthMessage
	if err := json.Unmarshal(payload, &hm); err != nil {
		t.Fatal(err)
	}
	if hm.Status != HealthOffline || hm.Bridge != "printer-1" {
		t.Errorf("LWT = %+v", hm)
	}
}

func TestHealthReporter_WithBridge(t *testing.T) {
	rig := newTestRig(t)
	pub := newMockPublisher(true)
	hr := NewHealthReporter(HealthReporterConfig{BridgeID: "test-bridge", Source: rig.bridge, Publisher: pub})
	rig.bridge.events = Sinks{rig.events, hr}

	rig.ready(t)
	if got := pub.last(t).Status; got != HealthRunning {
		t.Errorf("status after ready = %q, want running", got)
	}

	rig.disconnectAndWait(t)
	if got := pub.last(t).Status; got != HealthStopped {
		t.Errorf("status after disconnect = %q, want stopped", got)
	}
}
