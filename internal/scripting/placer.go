package scripting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/round"
)

// RoundPlacer is the slice of round.Manager autoplay needs.
type RoundPlacer interface {
	Games() []games.GameSpec
	Balance() decimal.Decimal
	PlaceBet(ctx context.Context, gameID string, params map[string]any, amount decimal.Decimal) (round.Snapshot, error)
}

// ManagerPlacer places autoplay bets as ordinary rounds, so they are
// debited, recorded and emitted like any manual bet. Only instant games
// can be autoplayed.
type ManagerPlacer struct {
	rounds RoundPlacer
}

func NewManagerPlacer(rounds RoundPlacer) *ManagerPlacer {
	return &ManagerPlacer{rounds: rounds}
}

func (p *ManagerPlacer) Balance() decimal.Decimal { return p.rounds.Balance() }

// GameIDs lists the instant games.
func (p *ManagerPlacer) GameIDs() []string {
	var ids []string
	for _, spec := range p.rounds.Games() {
		if spec.Kind == games.KindInstant {
			ids = append(ids, spec.ID)
		}
	}
	return ids
}

func (p *ManagerPlacer) PlaceBet(ctx context.Context, game string, params map[string]any, amount decimal.Decimal) (BetResult, error) {
	if !p.instant(game) {
		return BetResult{}, fmt.Errorf("%w: %q cannot be autoplayed", games.ErrInvalidParams, game)
	}
	snap, err := p.rounds.PlaceBet(ctx, game, params, amount)
	if err != nil {
		return BetResult{}, err
	}
	if snap.Resolution == nil {
		return BetResult{}, fmt.Errorf("round %s did not settle", snap.ID)
	}

	res := snap.Resolution
	return BetResult{
		RoundID:    snap.ID,
		Game:       snap.GameID,
		Amount:     snap.Amount.InexactFloat64(),
		Payout:     res.Payout.InexactFloat64(),
		Multiplier: res.Multiplier,
		Result:     string(res.Result),
		Win:        res.Result == games.ResultWin,
		Balance:    snap.Balance.InexactFloat64(),
		Outcome:    snap.View,
	}, nil
}

func (p *ManagerPlacer) instant(game string) bool {
	for _, spec := range p.rounds.Games() {
		if spec.ID == game {
			return spec.Kind == games.KindInstant
		}
	}
	return false
}
