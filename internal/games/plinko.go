package games

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

const (
	plinkoDefaultRows  = 16
	plinkoDefaultRisk  = "medium"
	plinkoDefaultBalls = 5
	plinkoMaxBalls     = 10
	plinkoEdge         = 0.99
)

// PlinkoGame drops balls through a peg board; each row is one left/right
// draw. The stake is split evenly across the balls of a bet.
type PlinkoGame struct{}

type PlinkoBall struct {
	Path       []int   `json:"path"` // 0 left, 1 right
	Bucket     int     `json:"bucket"`
	Multiplier float64 `json:"multiplier"`
}

type PlinkoOutcome struct {
	Rows  int          `json:"rows"`
	Risk  string       `json:"risk"`
	Balls []PlinkoBall `json:"balls"`
}

func (PlinkoOutcome) Game() string { return "plinko" }

// Sum of ball multipliers. The round pays bet/balls × Sum.
func (o PlinkoOutcome) Sum() float64 {
	total := 0.0
	for _, b := range o.Balls {
		total += b.Multiplier
	}
	return total
}

// Spec returns metadata about the Plinko game.
func (g *PlinkoGame) Spec() GameSpec {
	return GameSpec{
		ID:          "plinko",
		Name:        "Plinko",
		MetricLabel: "multiplier",
		Kind:        KindInstant,
		HouseEdge:   plinkoEdge,
	}
}

func (g *PlinkoGame) Validate(params map[string]any) error {
	_, _, _, err := plinkoParams(params)
	return err
}

// FloatCount is one draw per row per ball.
func (g *PlinkoGame) FloatCount(params map[string]any) int {
	rows, _, balls, err := plinkoParams(params)
	if err != nil {
		return plinkoDefaultRows * plinkoDefaultBalls
	}
	return rows * balls
}

func (g *PlinkoGame) Generate(params map[string]any, src engine.Source) (Outcome, error) {
	rows, risk, balls, err := plinkoParams(params)
	if err != nil {
		return nil, err
	}
	table, err := plinkoTable(risk, rows)
	if err != nil {
		return nil, err
	}

	out := PlinkoOutcome{Rows: rows, Risk: risk, Balls: make([]PlinkoBall, balls)}
	for b := range out.Balls {
		path := make([]int, rows)
		bucket := 0
		for i := range path {
			if src.Float64() >= 0.5 {
				path[i] = 1
				bucket++
			}
		}
		out.Balls[b] = PlinkoBall{Path: path, Bucket: bucket, Multiplier: table[bucket]}
	}
	return out, nil
}

func (g *PlinkoGame) Resolve(o Outcome, bet decimal.Decimal) (Resolution, error) {
	out, ok := o.(PlinkoOutcome)
	if !ok {
		return Resolution{}, fmt.Errorf("plinko cannot resolve %T", o)
	}
	if len(out.Balls) == 0 {
		return Resolution{}, fmt.Errorf("plinko outcome has no balls")
	}
	n := float64(len(out.Balls))
	mult := out.Sum() / n
	payout := decimal.Zero
	if sum := out.Sum(); sum > 0 {
		payout = bet.Mul(decimal.NewFromFloat(sum)).Div(decimal.NewFromInt(int64(len(out.Balls))))
	}
	return Resolution{Payout: payout, Multiplier: mult, Result: resultFor(mult), Settled: true}, nil
}

// ExpectedMultiplier is independent of the ball count: each ball carries an
// equal share of the stake.
func (g *PlinkoGame) ExpectedMultiplier(params map[string]any) (float64, error) {
	rows, risk, _, err := plinkoParams(params)
	if err != nil {
		return 0, err
	}
	table, err := plinkoTable(risk, rows)
	if err != nil {
		return 0, err
	}
	return plinkoExpectation(table), nil
}

func (g *PlinkoGame) ParamGrid() []map[string]any {
	var grid []map[string]any
	for _, rows := range plinkoRowOptions() {
		for _, risk := range riskLevels {
			grid = append(grid, map[string]any{"rows": rows, "risk": risk})
		}
	}
	return grid
}

func plinkoRowOptions() []int {
	rows := make([]int, 0, len(plinkoPayoutTables["low"]))
	for r := range plinkoPayoutTables["low"] {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

func plinkoParams(params map[string]any) (int, string, int, error) {
	rows, err := intParam(params, "rows", plinkoDefaultRows)
	if err != nil {
		return 0, "", 0, err
	}
	risk, err := choiceParam(params, "risk", plinkoDefaultRisk, riskLevels...)
	if err != nil {
		return 0, "", 0, err
	}
	if _, err := plinkoTable(risk, rows); err != nil {
		return 0, "", 0, err
	}
	balls, err := intParamIn(params, "balls", plinkoDefaultBalls, 1, plinkoMaxBalls)
	if err != nil {
		return 0, "", 0, err
	}
	return rows, risk, balls, nil
}
