package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tftbridge/internal/bridge"
	"github.com/nerrad567/tftbridge/internal/infrastructure/config"
)

// fakeInflux answers ping and write requests and keeps write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	server *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/write") {
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.bodies = append(f.bodies, string(body))
			f.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.server.URL,
		Token:         "test-token",
		Org:           "tftbridge",
		Bucket:        "relay",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func waitForWrite(t *testing.T, f *fakeInflux, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(f.written(), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("write body %q does not contain %q", f.written(), want)
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:59999", Org: "o", Bucket: "b"}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthAndClose(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = 0     // default
	cfg.FlushInterval = 0 // default

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes after Close are dropped silently.
	client.WriteRelayStats("b", bridge.ToTFT, bridge.DirectionStats{})
	client.Flush()
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteRelayStats(t *testing.T) {
	f := newFakeInflux(t)
	client, err := Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var _ bridge.MetricsWriter = client

	client.WriteRelayStats("printer-1", bridge.ToFirmware, bridge.DirectionStats{
		Records: 3, Bytes: 42, Timeouts: 7,
	})
	client.Flush()

	waitForWrite(t, f, "relay_stats,bridge_id=printer-1,direction=tft_to_firmware")
	waitForWrite(t, f, "records=3i")
	waitForWrite(t, f, "bytes=42i")
}

func TestHandleEvent(t *testing.T) {
	f := newFakeInflux(t)
	client, err := Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var _ bridge.EventSink = client

	client.HandleEvent(bridge.Event{
		BridgeID:  "printer-1",
		Kind:      bridge.EventOpenFailed,
		Endpoint:  bridge.EndpointTFT,
		Timestamp: time.Now(),
	})
	client.Flush()

	waitForWrite(t, f, "relay_events,bridge_id=printer-1,endpoint=tft,kind=open_failed count=1i")
}

func TestRelayStatsPoint(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := relayStatsPoint("b1", bridge.ToTFT, bridge.DirectionStats{
		Records: 1, Bytes: 2, Timeouts: 3, ReadErrors: 4, WriteErrors: 5,
	}, ts)

	if p.Name() != MeasurementRelayStats {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["bridge_id"] != "b1" || tags["direction"] != "firmware_to_tft" {
		t.Errorf("tags = %v", tags)
	}

	want := map[string]int64{"records": 1, "bytes": 2, "timeouts": 3, "read_errors": 4, "write_errors": 5}
	for _, field := range p.FieldList() {
		if got, ok := field.Value.(int64); !ok || got != want[field.Key] {
			t.Errorf("field %s = %v, want %d", field.Key, field.Value, want[field.Key])
		}
		delete(want, field.Key)
	}
	if len(want) != 0 {
		t.Errorf("missing fields: %v", want)
	}
}

func TestRelayEventPoint_Defaults(t *testing.T) {
	p := relayEventPoint(bridge.Event{BridgeID: "b1", Kind: bridge.EventDisconnect})

	if p.Time().IsZero() {
		t.Error("zero event timestamp should default to now")
	}
	for _, tag := range p.TagList() {
		if tag.Key == "endpoint" {
			t.Errorf("endpoint tag should be omitted when empty, got %q", tag.Value)
		}
	}
}
