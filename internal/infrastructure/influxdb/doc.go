// Package influxdb provides InfluxDB connectivity for tftbridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing and health monitoring.
//
// # Measurements
//
//   - relay_stats: cumulative counters per relay direction, written on
//     every health tick (tags bridge_id, direction)
//   - relay_events: one point per lifecycle event (tags bridge_id, kind,
//     endpoint)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteRelayStats("printer-1", bridge.ToFirmware, stats)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; batch
// errors are delivered via SetOnError.
package influxdb
