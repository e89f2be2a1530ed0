package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// PickTimer is the deadline of the pick currently on the clock.
type PickTimer struct {
	StartedAt time.Time
	ExpiresAt time.Time
}

// Duration is the full length of the pick window.
func (t PickTimer) Duration() time.Duration {
	return t.ExpiresAt.Sub(t.StartedAt)
}

// TurnClock reads time through an injected clock so deadlines are testable
// without waiting on the wall clock. Expiry is never self-triggered; callers
// observe Remaining and drive the expiry transition themselves.
type TurnClock struct {
	clock clockwork.Clock
}

func NewTurnClock(clock clockwork.Clock) *TurnClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TurnClock{clock: clock}
}

// Now returns the current time of the underlying clock.
func (c *TurnClock) Now() time.Time {
	return c.clock.Now()
}

// Arm starts a pick window of d from now.
func (c *TurnClock) Arm(d time.Duration) PickTimer {
	now := c.clock.Now()
	return PickTimer{StartedAt: now, ExpiresAt: now.Add(d)}
}

// Remaining returns max(0, ExpiresAt - now). A nil timer has nothing remaining.
func (c *TurnClock) Remaining(t *PickTimer) time.Duration {
	if t == nil {
		return 0
	}
	left := t.ExpiresAt.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether at is past the deadline plus grace.
func (c *TurnClock) Expired(t *PickTimer, at time.Time, grace time.Duration) bool {
	if t == nil {
		return true
	}
	return at.After(t.ExpiresAt.Add(grace))
}
