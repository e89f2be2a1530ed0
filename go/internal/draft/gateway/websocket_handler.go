package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for draft connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	engine            Engine
	clock             clockwork.Clock
}

// NewWebSocketHandler creates a new WebSocket handler. engine may be nil,
// in which case subscribers get no initial state frame.
func NewWebSocketHandler(cm *ConnectionManager, engine Engine, clock clockwork.Clock) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		engine:            engine,
		clock:             clock,
	}
}

// HandleDraftConnection handles GET /ws/draft?draft_id=
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftIDStr := r.URL.Query().Get("draft_id")
	if draftIDStr == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "draft_id is required")
		return
	}

	draftID, err := uuid.Parse(draftIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid draft_id format")
		return
	}

	teamID := r.URL.Query().Get("team_id")
	if teamID == "" {
		teamID = "spectator"
	}

	var initial *DraftEvent
	if h.engine != nil {
		status, err := h.engine.GetStatus(r.Context(), draftID)
		if err != nil {
			writeEngineError(w, err, draftID)
			return
		}
		initial, err = newStateSyncEvent(status, h.clock.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, session.Kind(err), "internal error")
			return
		}
	}

	// After a failed upgrade the upgrader has already replied.
	if err := h.connectionManager.UpgradeConnection(w, r, teamID, draftID, initial); err != nil {
		log.Error().
			Err(err).
			Str("draft_id", draftID.String()).
			Str("team_id", teamID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// DraftConnectionStats is served on /ws/stats?draft_id=
type DraftConnectionStats struct {
	DraftID     string `json:"draft_id"`
	Connections int    `json:"connections"`
}

// HandleConnectionStats handles GET /ws/stats, optionally for one draft.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	draftIDStr := r.URL.Query().Get("draft_id")
	if draftIDStr == "" {
		writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
		return
	}
	draftID, err := uuid.Parse(draftIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid draft_id format")
		return
	}
	writeJSON(w, http.StatusOK, DraftConnectionStats{
		DraftID:     draftID.String(),
		Connections: h.connectionManager.ConnectionCount(draftID),
	})
}
