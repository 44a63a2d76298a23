// Package host turns printer host state messages into bridge lifecycle
// signals.
//
// The host (e.g. a Klipper/Moonraker hook) publishes its state to an MQTT
// topic, tftbridge/host/state by default. The payload is either a bare
// word ("ready") or JSON ({"state":"ready"}). Matching is case-insensitive
// against the configured ready and disconnect payload lists; anything
// else is ignored.
package host
