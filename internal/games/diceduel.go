package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// DiceDuelGame rolls 2d6 for the player against 2d6 for the house. A win
// pays DuelMultiplier of the current streak, a tie returns the stake and a
// loss resets the streak.
type DiceDuelGame struct{}

const duelStreakStep = 0.25

type DiceDuelOutcome struct {
	Player [2]int `json:"player"`
	House  [2]int `json:"house"`
	Streak int    `json:"streak"`
}

func (DiceDuelOutcome) Game() string { return "diceduel" }

func (o DiceDuelOutcome) PlayerTotal() int { return o.Player[0] + o.Player[1] }
func (o DiceDuelOutcome) HouseTotal() int  { return o.House[0] + o.House[1] }

func (g *DiceDuelGame) Spec() GameSpec {
	return GameSpec{
		ID:          "diceduel",
		Name:        "Dice Duel",
		MetricLabel: "total",
		Kind:        KindInstant,
	}
}

// Validate checks the carried streak. The round manager supplies it.
func (g *DiceDuelGame) Validate(params map[string]any) error {
	_, err := duelStreak(params)
	return err
}

func (g *DiceDuelGame) FloatCount(map[string]any) int { return 4 }

func (g *DiceDuelGame) Generate(params map[string]any, src engine.Source) (Outcome, error) {
	streak, err := duelStreak(params)
	if err != nil {
		return nil, err
	}
	out := DiceDuelOutcome{Streak: streak}
	out.Player[0] = engine.Intn(src, 6) + 1
	out.Player[1] = engine.Intn(src, 6) + 1
	out.House[0] = engine.Intn(src, 6) + 1
	out.House[1] = engine.Intn(src, 6) + 1
	return out, nil
}

func (g *DiceDuelGame) Resolve(o Outcome, bet decimal.Decimal) (Resolution, error) {
	out, ok := o.(DiceDuelOutcome)
	if !ok {
		return Resolution{}, fmt.Errorf("dice duel cannot resolve %T", o)
	}
	switch p, h := out.PlayerTotal(), out.HouseTotal(); {
	case p > h:
		m := DuelMultiplier(out.Streak)
		return Resolution{Payout: payoutFor(bet, m), Multiplier: m, Result: ResultWin, Settled: true}, nil
	case p < h:
		return settledAt(bet, 0), nil
	default:
		return Resolution{Payout: bet, Multiplier: 1, Result: ResultPush, Settled: true}, nil
	}
}

// NextStreak: wins extend, losses reset, ties leave the streak alone.
func (g *DiceDuelGame) NextStreak(streak int, res Resolution) int {
	switch res.Result {
	case ResultWin:
		return streak + 1
	case ResultLose:
		return 0
	}
	return streak
}

// DuelMultiplier is 1 + 0.25 per consecutive win.
func DuelMultiplier(streak int) float64 {
	if streak <= 0 {
		return 1
	}
	return 1 + float64(streak)*duelStreakStep
}

func duelStreak(params map[string]any) (int, error) {
	s, err := intParam(params, "streak", 0)
	if err != nil {
		return 0, err
	}
	if s < 0 {
		return 0, invalidParams("streak must not be negative, got %d", s)
	}
	return s, nil
}
