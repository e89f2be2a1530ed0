package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/rs/zerolog/log"
)

// worker expires due picks from workCh until it is closed or ctx is done.
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int, workCh <-chan session.DuePick) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case due, ok := <-workCh:
			if !ok {
				return
			}
			if err := o.handleTimeout(ctx, due); err != nil {
				retryIn := o.recordFailure(due.SessionID)
				log.Error().
					Err(err).
					Str("draft_id", due.SessionID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Dur("retry_in", retryIn).
					Msg("worker timeout handling failed")
				o.release(due.SessionID)
				continue
			}
			o.clearFailure(due.SessionID)
			o.release(due.SessionID)
			o.Wake()
		}
	}
}

// handleTimeout expires one pick. Losing a race against a human pick, a
// pause or another orchestrator is expected and not an error.
func (o *Orchestrator) handleTimeout(ctx context.Context, due session.DuePick) error {
	pick, err := o.engine.ExpirePick(ctx, due.SessionID, due.PickIndex)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrStalePick),
		errors.Is(err, session.ErrPickWindowOpen),
		errors.Is(err, session.ErrSessionNotActive),
		errors.Is(err, session.ErrVersionConflict):
		log.Debug().
			Err(err).
			Str("draft_id", due.SessionID.String()).
			Int("pick_index", due.PickIndex).
			Msg("expiry no longer applies")
		return nil
	default:
		return err
	}

	ev := log.Info().
		Str("draft_id", due.SessionID.String()).
		Str("team_id", pick.TeamID.String()).
		Int("overall_pick", pick.OverallPick).
		Str("instance", o.instanceID)
	if pick.Skipped() {
		ev.Msg("pick expired, slot skipped")
	} else {
		ev.Str("player_id", pick.PlayerID.String()).Msg("pick expired, auto-picked")
	}
	return nil
}
