package round

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/games"
)

var (
	ErrRoundInProgress = errors.New("round already in progress")
	ErrRoundNotFound   = errors.New("round not found")
)

// Status is where a round stands in its lifecycle. Everything but
// StatusActive is final.
type Status string

const (
	StatusActive    Status = "active"
	StatusSettled   Status = "settled"
	StatusAbandoned Status = "abandoned"
	// StatusAborted rounds hit a retry bound and were refunded.
	StatusAborted Status = "aborted"
)

// Wallet is the balance the manager moves money through.
type Wallet interface {
	Balance() decimal.Decimal
	Debit(ctx context.Context, amount decimal.Decimal, ref string) (decimal.Decimal, error)
	Credit(ctx context.Context, amount decimal.Decimal, ref string) (decimal.Decimal, error)
}

// Recorder persists finished rounds. Optional.
type Recorder interface {
	RecordRound(ctx context.Context, s Snapshot) error
}

// Emitter pushes every round change to the presentation layer. Optional.
type Emitter interface {
	EmitRound(s Snapshot)
}

// Observer receives lifecycle counters for metrics. Optional.
type Observer interface {
	BetPlaced(game string, amount decimal.Decimal)
	RoundFinished(game string, status Status, bet, payout decimal.Decimal, d time.Duration)
	TransitionApplied(game, name string)
	ActiveRounds(n int)
}

// Snapshot is a serializable view of a round.
type Snapshot struct {
	ID         string            `json:"id"`
	GameID     string            `json:"game_id"`
	Amount     decimal.Decimal   `json:"amount"`
	Params     map[string]any    `json:"params,omitempty"`
	Phase      games.Phase       `json:"phase"`
	Status     Status            `json:"status"`
	Multiplier float64           `json:"multiplier"`
	Pending    *games.Transition `json:"pending,omitempty"`
	View       any               `json:"view,omitempty"`
	Resolution *games.Resolution `json:"resolution,omitempty"`
	Balance    decimal.Decimal   `json:"balance"`
	PlacedAt   time.Time         `json:"placed_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Finished reports whether the round has left StatusActive.
func (s Snapshot) Finished() bool { return s.Status != StatusActive }

type round struct {
	id      string
	game    games.Game
	bet     games.Bet
	params  map[string]any
	play    games.Play    // stepwise only
	outcome games.Outcome // instant only
	status  Status
	res     *games.Resolution
	updated time.Time

	timer     *time.Timer
	timerName string
	timerSeq  uint64
}

func (r *round) phase() games.Phase {
	if r.play != nil {
		return r.play.Phase()
	}
	if r.status == StatusActive {
		return games.PhaseBetting
	}
	return games.PhaseSettled
}

func (r *round) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerName = ""
	r.timerSeq++
}
