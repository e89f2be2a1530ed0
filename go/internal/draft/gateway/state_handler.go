package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeTeamMismatch   = "team_mismatch"
)

// Engine is the part of the draft engine the gateway serves. Both
// *session.App and *session.Client satisfy it.
type Engine interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*session.Status, error)
	ListPicks(ctx context.Context, id uuid.UUID) ([]models.DraftPick, error)
	SubmitPick(ctx context.Context, req session.SubmitPickRequest) (*models.DraftPick, error)
}

var (
	_ Engine = (*session.App)(nil)
	_ Engine = (*session.Client)(nil)
)

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type submitPickBody struct {
	TeamID   string `json:"teamId"`
	PlayerID string `json:"playerId"`
}

// StateHandler serves draft state and pick submission over REST.
type StateHandler struct {
	engine Engine
}

func NewStateHandler(engine Engine) *StateHandler {
	return &StateHandler{engine: engine}
}

// HandleGetDraftState handles GET /api/drafts/{id}/state
func (h *StateHandler) HandleGetDraftState(w http.ResponseWriter, r *http.Request) {
	draftID, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.engine.GetStatus(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err, draftID)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleListPicks handles GET /api/drafts/{id}/picks
func (h *StateHandler) HandleListPicks(w http.ResponseWriter, r *http.Request) {
	draftID, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	picks, err := h.engine.ListPicks(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err, draftID)
		return
	}
	if picks == nil {
		picks = []models.DraftPick{}
	}
	writeJSON(w, http.StatusOK, picks)
}

// HandleSubmitPick handles POST /api/drafts/{id}/picks
func (h *StateHandler) HandleSubmitPick(w http.ResponseWriter, r *http.Request) {
	draftID, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	var body submitPickBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return
	}
	teamID, err := uuid.Parse(body.TeamID)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid teamId")
		return
	}
	playerID, err := uuid.Parse(body.PlayerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid playerId")
		return
	}

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && !claims.IsService() && claims.TeamID != teamID.String() {
		writeError(w, http.StatusForbidden, codeTeamMismatch, "token does not belong to team")
		return
	}

	pick, err := h.engine.SubmitPick(r.Context(), session.SubmitPickRequest{
		SessionID: draftID,
		TeamID:    teamID,
		PlayerID:  playerID,
	})
	if err != nil {
		writeEngineError(w, err, draftID)
		return
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", playerID.String()).
		Int("overall_pick", pick.OverallPick).
		Msg("pick submitted")
	writeJSON(w, http.StatusCreated, pick)
}

func draftIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	draftID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid draft ID format")
		return uuid.Nil, false
	}
	return draftID, true
}

// StatusForKind maps an engine error kind to an HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case "session_not_found":
		return http.StatusNotFound
	case "invalid_draft_configuration":
		return http.StatusBadRequest
	case "not_your_turn":
		return http.StatusForbidden
	case "player_not_eligible":
		return http.StatusUnprocessableEntity
	case "pick_window_expired":
		return http.StatusGone
	case "player_already_picked", "session_not_active", "invalid_transition",
		"version_conflict", "stale_pick", "pick_window_open":
		return http.StatusConflict
	case "storage_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error, draftID uuid.UUID) {
	if errors.Is(err, context.Canceled) {
		// client went away
		return
	}
	kind := session.Kind(err)
	status := StatusForKind(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("draft request failed")
		msg = "internal error"
	}
	writeError(w, status, kind, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
