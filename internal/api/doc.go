// Package api provides the operator HTTP API and WebSocket stream for
// tftbridge.
//
// Endpoints (all under /api/v1):
//
//	GET  /health             liveness and version
//	GET  /bridge             lifecycle state, connections, relay counters
//	POST /bridge/ready       host ready: start or refresh a session (202)
//	POST /bridge/disconnect  host gone: stop relaying (202)
//	GET  /events             lifecycle journal, newest first
//	GET  /ws                 WebSocket: bridge.event, bridge.stats, relay.record
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
