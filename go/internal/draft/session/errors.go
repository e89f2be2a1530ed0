package session

import "errors"

var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionNotActive          = errors.New("session not active")
	ErrInvalidTransition         = errors.New("invalid transition")
	ErrNotYourTurn               = errors.New("not your turn")
	ErrPlayerAlreadyPicked       = errors.New("player already picked")
	ErrPickWindowExpired         = errors.New("pick window expired")
	ErrInvalidDraftConfiguration = errors.New("invalid draft configuration")
	ErrStorageUnavailable        = errors.New("storage unavailable")

	// ErrPlayerNotEligible is returned when the roster directory does not know
	// the player or the player is outside the session pool.
	ErrPlayerNotEligible = errors.New("player not eligible")
	// ErrStalePick is returned by ExpirePick when the pick it targeted has
	// already been committed.
	ErrStalePick = errors.New("stale pick")
	// ErrPickWindowOpen is returned by ExpirePick before the deadline passed.
	ErrPickWindowOpen = errors.New("pick window still open")
	// ErrVersionConflict is returned by a Store when the conditional write
	// lost against a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionNotActive, "session_not_active"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrPlayerAlreadyPicked, "player_already_picked"},
	{ErrPickWindowExpired, "pick_window_expired"},
	{ErrInvalidDraftConfiguration, "invalid_draft_configuration"},
	{ErrStorageUnavailable, "storage_unavailable"},
	{ErrPlayerNotEligible, "player_not_eligible"},
	{ErrStalePick, "stale_pick"},
	{ErrPickWindowOpen, "pick_window_open"},
	{ErrVersionConflict, "version_conflict"},
}

// Kind returns a stable snake_case code for err, or "internal" when err
// does not wrap one of the package errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// ErrorForKind is the inverse of Kind. It returns nil for unknown kinds.
func ErrorForKind(kind string) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
