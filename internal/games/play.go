package games

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

type Phase string

const (
	PhaseBetting    Phase = "betting"
	PhaseActive     Phase = "active"
	PhaseArming     Phase = "arming"
	PhasePlayerTurn Phase = "playerTurn"
	PhaseDealerTurn Phase = "dealerTurn"
	PhaseCascading  Phase = "cascading"
	PhaseSettled    Phase = "settled"
)

// Action is a player step or a timed transition.
type Action struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// Transition is a timer-driven step. The manager applies Action{Type: Name}
// once Delay has elapsed. Pacing transitions only slow the round down for
// presentation; a Deadline ends the round when it fires and always runs on
// the clock.
type Transition struct {
	Name     string        `json:"name"`
	Delay    time.Duration `json:"delay"`
	Deadline bool          `json:"deadline,omitempty"`
}

// Named transitions and their pacing.
var (
	TransitionDealerDraw = Transition{Name: "dealer_draw", Delay: 800 * time.Millisecond}
	TransitionCascade    = Transition{Name: "cascade", Delay: 500 * time.Millisecond}
	TransitionArm        = Transition{Name: "arm", Delay: 500 * time.Millisecond}
	TransitionExpire     = Transition{Name: "expire", Delay: 30 * time.Second, Deadline: true}
)

// IsTimed reports whether an action name belongs to a timer, not a player.
func IsTimed(name string) bool {
	switch name {
	case TransitionDealerDraw.Name, TransitionCascade.Name, TransitionArm.Name, TransitionExpire.Name:
		return true
	}
	return false
}

// Play is the state machine of one stepwise round. Every method is called
// with the round manager's lock held.
type Play interface {
	Phase() Phase
	// Apply performs a step. Illegal steps return ErrInvalidTransition and
	// leave the state untouched.
	Apply(a Action, src engine.Source) error
	// Pending reports the timed transition the play is waiting on.
	Pending() (Transition, bool)
	Multiplier() float64
	// Forfeit drives the play to settled using its current state.
	Forfeit(src engine.Source) error
	// Resolve is only meaningful once settled.
	Resolve(bet decimal.Decimal) (Resolution, error)
	View() any
}
