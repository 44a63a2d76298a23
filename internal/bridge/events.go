package bridge

import "time"

// EventKind identifies a lifecycle transition.
type EventKind string

// Event kinds.
const (
	EventReady            EventKind = "ready"
	EventReadyRepeated    EventKind = "ready_repeated"
	EventDisconnect       EventKind = "disconnect"
	EventConnectionOpened EventKind = "connection_opened"
	EventOpenFailed       EventKind = "open_failed"
	EventConnectionClosed EventKind = "connection_closed"
	EventLoopStarted      EventKind = "loop_started"
	EventLoopStopped      EventKind = "loop_stopped"
	EventReadError        EventKind = "read_error"
	EventWriteError       EventKind = "write_error"
)

// Event describes one lifecycle transition.
type Event struct {
	BridgeID  string    `json:"bridge_id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives lifecycle events. HandleEvent is called synchronously
// from the goroutine that caused the transition and must not call back
// into the Bridge.
type EventSink interface {
	HandleEvent(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// HandleEvent calls f(e).
func (f EventSinkFunc) HandleEvent(e Event) { f(e) }

// Sinks fans events out to every non-nil sink in order.
type Sinks []EventSink

// HandleEvent delivers e to each sink.
func (s Sinks) HandleEvent(e Event) {
	for _, sink := range s {
		if sink != nil {
			sink.HandleEvent(e)
		}
	}
}

// RecordTap observes every record that was relayed successfully.
// The slice must not be retained.
type RecordTap func(dir Direction, record []byte)
