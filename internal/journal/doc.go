// Package journal persists bridge lifecycle events to the relay_events
// table and serves them back, newest first, for the HTTP API.
//
// Writer is a bridge.EventSink. Events are queued and written by a single
// goroutine so relay loops never wait on SQLite.
package journal
