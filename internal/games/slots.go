package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// SlotsGame spins three reels and reads the middle row. Three of a kind pays
// the symbol's full value, two of a kind half of it.
type SlotsGame struct{}

const (
	slotsReels = 3
	slotsEdge  = 0.96
)

type slotSymbol struct {
	Name  string
	Value float64
}

// Relative symbol values; slotsScale turns them into multipliers.
var slotSymbols = []slotSymbol{
	{"cherry", 2},
	{"lemon", 3},
	{"orange", 4},
	{"grape", 5},
	{"watermelon", 8},
	{"seven", 10},
	{"diamond", 15},
	{"star", 20},
}

var slotsScale = slotsEdge / slotsRawExpectation()

type SlotsOutcome struct {
	Reels      [slotsReels]string `json:"reels"`
	Symbol     string             `json:"symbol,omitempty"`
	Match      int                `json:"match"`
	Multiplier float64            `json:"multiplier"`
}

func (SlotsOutcome) Game() string { return "slots" }

func (g *SlotsGame) Spec() GameSpec {
	return GameSpec{
		ID:          "slots",
		Name:        "Neon Slots",
		MetricLabel: "multiplier",
		Kind:        KindInstant,
		HouseEdge:   slotsEdge,
	}
}

func (g *SlotsGame) Validate(map[string]any) error { return nil }

func (g *SlotsGame) FloatCount(map[string]any) int { return slotsReels }

func (g *SlotsGame) Generate(_ map[string]any, src engine.Source) (Outcome, error) {
	var idx [slotsReels]int
	for i := range idx {
		idx[i] = engine.Intn(src, len(slotSymbols))
	}
	match, sym, raw := slotsLine(idx)

	out := SlotsOutcome{Match: match, Multiplier: raw * slotsScale}
	for i, s := range idx {
		out.Reels[i] = slotSymbols[s].Name
	}
	if match > 0 {
		out.Symbol = slotSymbols[sym].Name
	}
	return out, nil
}

func (g *SlotsGame) Resolve(o Outcome, bet decimal.Decimal) (Resolution, error) {
	out, ok := o.(SlotsOutcome)
	if !ok {
		return Resolution{}, fmt.Errorf("slots cannot resolve %T", o)
	}
	return settledAt(bet, out.Multiplier), nil
}

func (g *SlotsGame) ExpectedMultiplier(map[string]any) (float64, error) {
	return slotsRawExpectation() * slotsScale, nil
}

func (g *SlotsGame) ParamGrid() []map[string]any { return []map[string]any{nil} }

// slotsLine scores one line of symbol indexes before scaling.
func slotsLine(idx [slotsReels]int) (match, symbol int, raw float64) {
	a, b, c := idx[0], idx[1], idx[2]
	switch {
	case a == b && b == c:
		return 3, a, slotSymbols[a].Value
	case a == b || a == c:
		return 2, a, slotSymbols[a].Value / 2
	case b == c:
		return 2, b, slotSymbols[b].Value / 2
	}
	return 0, 0, 0
}

// slotsRawExpectation enumerates every equally likely line.
func slotsRawExpectation() float64 {
	n := len(slotSymbols)
	total := 0.0
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for c := 0; c < n; c++ {
				_, _, raw := slotsLine([slotsReels]int{a, b, c})
				total += raw
			}
		}
	}
	return total / float64(n*n*n)
}
