package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/tftbridge/internal/bridge"
	"github.com/nerrad567/tftbridge/internal/journal"
)

// bridgeResponse is the body of the /bridge endpoints.
type bridgeResponse struct {
	bridge.Snapshot
	Health bridge.HealthStatus `json:"health"`
	Reason string              `json:"reason,omitempty"`
}

func (s *Server) bridgeView() bridgeResponse {
	snap := s.bridge.Snapshot()
	status, reason := bridge.StatusFor(snap)
	return bridgeResponse{Snapshot: snap, Health: status, Reason: reason}
}

// handleGetBridge returns state, connections and counters.
func (s *Server) handleGetBridge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridgeView())
}

// handleReady signals that the host is ready. Endpoint open failures are
// not errors: they show up in the returned connection state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	if err := s.bridge.Ready(ctx); err != nil {
		switch {
		case errors.Is(err, bridge.ErrDraining):
			writeError(w, http.StatusConflict, "previous session is still shutting down")
		case errors.Is(err, bridge.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "bridge is stopped")
		default:
			s.logger.Error("ready request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "ready failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, s.bridgeView())
}

// handleDisconnect signals that the host went away. The relay loops drain
// in the background; the response does not wait for them.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.bridge.Disconnect()
	writeJSON(w, http.StatusAccepted, s.bridgeView())
}

// handleListEvents pages through the lifecycle journal.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Kind:      q.Get("kind"),
		SessionID: q.Get("session_id"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	res, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
