package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// DiceGame rolls 1-100 and wins when the roll is at or under the target.
type DiceGame struct{}

const (
	diceMinTarget     = 1
	diceMaxTarget     = 95
	diceDefaultTarget = 50
	diceEdge          = 0.98
)

type DiceOutcome struct {
	Target int  `json:"target"`
	Roll   int  `json:"roll"`
	Win    bool `json:"win"`
}

func (DiceOutcome) Game() string { return "dice" }

// Spec returns metadata about the Dice game
func (g *DiceGame) Spec() GameSpec {
	return GameSpec{
		ID:          "dice",
		Name:        "Dice",
		MetricLabel: "roll",
		Kind:        KindInstant,
		HouseEdge:   diceEdge,
	}
}

func (g *DiceGame) Validate(params map[string]any) error {
	_, err := diceTarget(params)
	return err
}

// FloatCount returns the number of floats required
func (g *DiceGame) FloatCount(params map[string]any) int {
	return 1
}

func (g *DiceGame) Generate(params map[string]any, src engine.Source) (Outcome, error) {
	target, err := diceTarget(params)
	if err != nil {
		return nil, err
	}
	roll := engine.Intn(src, 100) + 1
	return DiceOutcome{Target: target, Roll: roll, Win: roll <= target}, nil
}

func (g *DiceGame) Resolve(o Outcome, bet decimal.Decimal) (Resolution, error) {
	out, ok := o.(DiceOutcome)
	if !ok {
		return Resolution{}, fmt.Errorf("dice cannot resolve %T", o)
	}
	if !out.Win {
		return settledAt(bet, 0), nil
	}
	return settledAt(bet, DiceMultiplier(out.Target)), nil
}

// DiceMultiplier is the win multiplier for a target: 0.98 × 100/target.
func DiceMultiplier(target int) float64 {
	return diceEdge * (100 / float64(target))
}

func (g *DiceGame) ExpectedMultiplier(params map[string]any) (float64, error) {
	target, err := diceTarget(params)
	if err != nil {
		return 0, err
	}
	return DiceMultiplier(target) * float64(target) / 100, nil
}

func (g *DiceGame) ParamGrid() []map[string]any {
	grid := make([]map[string]any, 0, diceMaxTarget)
	for t := diceMinTarget; t <= diceMaxTarget; t++ {
		grid = append(grid, map[string]any{"target": t})
	}
	return grid
}

func diceTarget(params map[string]any) (int, error) {
	return intParamIn(params, "target", diceDefaultTarget, diceMinTarget, diceMaxTarget)
}
