// Package bridge relays newline-delimited records between a printer's TFT
// display controller and the printer firmware host.
//
// # Architecture
//
//	┌──────────┐  tft_to_firmware   ┌──────────────┐
//	│   TFT    │───────────────────►│   firmware   │
//	│ (serial) │◄───────────────────│ (pseudo-tty) │
//	└──────────┘  firmware_to_tft   └──────────────┘
//
// The Bridge owns both serial connections. A ready signal opens whichever
// endpoints are absent and starts one relay loop per direction. A
// disconnect signal sets the session's shutdown flag; each loop notices it
// on its next iteration, closes the connection it reads from and exits.
//
// Records are copied byte for byte. The bridge never parses G-code or
// firmware responses.
//
// # Sessions
//
// Every Stopped to Running transition creates a new session with its own
// shutdown flag, context and WaitGroup. A ready signal that arrives while
// the previous session is still draining waits for it (bounded by the
// caller's context) so two generations of loops never share a connection.
// The session is published before any device is opened, so a disconnect
// that lands mid-open still stops it, and a port whose open completes
// after the disconnect is closed instead of installed.
//
// # Reporting
//
// Lifecycle transitions are emitted as Events to an optional EventSink.
// HealthReporter publishes retained status to MQTT, relay counters to a
// MetricsWriter and snapshots to a StatsBroadcaster.
//
// Sinks run on the relay goroutines. Wrap any sink that can block on I/O
// in a QueuedSink.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package bridge
