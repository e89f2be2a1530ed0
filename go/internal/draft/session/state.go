package session

import (
	"fmt"
	"time"

	"github.com/mcdev12/leaguedraft/go/internal/models"
)

// State is the lifecycle state of a session. Each variant carries only the
// fields that are meaningful in that state; only Active has a pick timer.
type State interface {
	Status() models.SessionStatus
	isState()
}

type Scheduled struct{}

type Active struct {
	Timer PickTimer
}

type Paused struct {
	PausedAt time.Time
}

type Completed struct {
	CompletedAt time.Time
}

type Cancelled struct {
	CancelledAt time.Time
	Reason      string
}

func (Scheduled) Status() models.SessionStatus { return models.SessionStatusScheduled }
func (Active) Status() models.SessionStatus    { return models.SessionStatusActive }
func (Paused) Status() models.SessionStatus    { return models.SessionStatusPaused }
func (Completed) Status() models.SessionStatus { return models.SessionStatusCompleted }
func (Cancelled) Status() models.SessionStatus { return models.SessionStatusCancelled }

func (Scheduled) isState() {}
func (Active) isState()    {}
func (Paused) isState()    {}
func (Completed) isState() {}
func (Cancelled) isState() {}

// Event drives a state transition.
type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

// Transition is the total state machine. Entering Active arms a fresh pick
// window of pickTimer; leaving Active drops the timer. Events that are not
// valid for the current state return ErrInvalidTransition.
func Transition(current State, ev Event, clock *TurnClock, pickTimer time.Duration) (State, error) {
	now := clock.Now()

	switch current.(type) {
	case Scheduled:
		switch ev {
		case EventStart:
			return Active{Timer: clock.Arm(pickTimer)}, nil
		case EventCancel:
			return Cancelled{CancelledAt: now}, nil
		}
	case Active:
		switch ev {
		case EventPause:
			return Paused{PausedAt: now}, nil
		case EventComplete:
			return Completed{CompletedAt: now}, nil
		case EventCancel:
			return Cancelled{CancelledAt: now}, nil
		}
	case Paused:
		switch ev {
		case EventResume:
			return Active{Timer: clock.Arm(pickTimer)}, nil
		case EventCancel:
			return Cancelled{CancelledAt: now}, nil
		}
	}

	return current, fmt.Errorf("%w: cannot %s a %s session", ErrInvalidTransition, ev, current.Status())
}
