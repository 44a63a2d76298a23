package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tftbridge/internal/bridge"
)

// Measurement names.
const (
	MeasurementRelayStats  = "relay_stats"
	MeasurementRelayEvents = "relay_events"
)

// WriteRelayStats records the cumulative counters of one relay direction.
//
// Satisfies bridge.MetricsWriter. The write is non-blocking; points are
// batched and sent asynchronously.
func (c *Client) WriteRelayStats(bridgeID string, dir bridge.Direction, stats bridge.DirectionStats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(relayStatsPoint(bridgeID, dir, stats, time.Now()))
}

// HandleEvent counts lifecycle events per kind. Satisfies bridge.EventSink.
func (c *Client) HandleEvent(ev bridge.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(relayEventPoint(ev))
}

func relayStatsPoint(bridgeID string, dir bridge.Direction, stats bridge.DirectionStats, ts time.Time) *write.Point {
	// #nosec G115 -- counters stay far below MaxInt64
	return write.NewPoint(
		MeasurementRelayStats,
		map[string]string{
			"bridge_id": bridgeID,
			"direction": string(dir),
		},
		map[string]interface{}{
			"records":      int64(stats.Records),
			"bytes":        int64(stats.Bytes),
			"timeouts":     int64(stats.Timeouts),
			"read_errors":  int64(stats.ReadErrors),
			"write_errors": int64(stats.WriteErrors),
		},
		ts,
	)
}

func relayEventPoint(ev bridge.Event) *write.Point {
	tags := map[string]string{
		"bridge_id": ev.BridgeID,
		"kind":      string(ev.Kind),
	}
	if ev.Endpoint != "" {
		tags["endpoint"] = ev.Endpoint
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementRelayEvents,
		tags,
		map[string]interface{}{"count": int64(1)},
		ts,
	)
}
