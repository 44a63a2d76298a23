package bridge

import (
	"fmt"
	"time"
)

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthRunning indicates both connections are open and relaying.
	HealthRunning HealthStatus = "running"

	// HealthDegraded indicates a session is running with a connection absent.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopped indicates no session is running.
	HealthStopped HealthStatus = "stopped"

	// HealthStarting indicates the process is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the process is shutting down.
	HealthStopping HealthStatus = "stopping"

	// HealthOffline indicates the process vanished (from LWT).
	HealthOffline HealthStatus = "offline"
)

// HealthMessage is published to report operational status.
// Topic: tftbridge/health/{bridge_id}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	Status  HealthStatus `json:"status"`
	Version string       `json:"version,omitempty"`

	// UptimeSeconds is how long the process has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// SessionID is set while a relay session is running.
	SessionID string `json:"session_id,omitempty"`

	Connections map[string]bool              `json:"connections,omitempty"`
	Statistics  map[Direction]DirectionStats `json:"statistics,omitempty"`

	// Reason explains degraded, stopping and offline states.
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage builds a health message from a snapshot.
func NewHealthMessage(snap Snapshot, version string, status HealthStatus, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        snap.BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		SessionID:     snap.SessionID,
		Connections: map[string]bool{
			snap.TFT.Endpoint:      snap.TFT.Open,
			snap.Firmware.Endpoint: snap.Firmware.Open,
		},
		Statistics: snap.Directions,
	}
}

// NewLWTMessage creates the Last Will and Testament message, published by
// the broker if the process disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// StatusFor derives the health status from a snapshot.
func StatusFor(snap Snapshot) (HealthStatus, string) {
	if snap.State != StateRunning {
		return HealthStopped, ""
	}
	switch {
	case !snap.TFT.Open && !snap.Firmware.Open:
		return HealthDegraded, "tft and firmware connections absent"
	case !snap.TFT.Open:
		return HealthDegraded, "tft connection absent"
	case !snap.Firmware.Open:
		return HealthDegraded, "firmware connection absent"
	}
	return HealthRunning, ""
}

// TopicPrefix is the base topic for all tftbridge messages.
const TopicPrefix = "tftbridge"

// HealthTopic returns the MQTT topic for health status.
// Example: tftbridge/health/printer-1
func HealthTopic(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}
