package games

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// WheelGame spins a wheel of equally likely segments.
type WheelGame struct{}

const (
	wheelDefaultSegments = 10
	wheelDefaultRisk     = "low"
	wheelEdge            = 0.99
)

// wheelLowBand is the low-risk layout; it repeats every ten segments and
// returns 9.9 per band.
var wheelLowBand = []float64{1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0}

// wheelMedium lists the medium-risk layouts. Each sums to 0.99 × segments.
var wheelMedium = map[int][]float64{
	10: {0, 1.9, 0, 1.5, 0, 2, 0, 1.5, 0, 3},
	20: {
		1.5, 0, 2, 0, 2, 0, 2, 0, 1.5, 0,
		3, 0, 1.8, 0, 2, 0, 2, 0, 2, 0,
	},
	30: {
		1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 2, 0,
		2, 0, 1.5, 0, 3, 0, 1.5, 0, 2, 0,
		2, 0, 1.7, 0, 4, 0, 1.5, 0, 2, 0,
	},
	40: {
		2, 0, 3, 0, 2, 0, 1.5, 0, 3, 0,
		1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
		1.5, 0, 2, 0, 2, 0, 1.6, 0, 2, 0,
		1.5, 0, 3, 0, 1.5, 0, 2, 0, 1.5, 0,
	},
	50: {
		2, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
		1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
		1.5, 0, 2, 0, 1.5, 0, 2, 0, 2, 0,
		1.5, 0, 3, 0, 1.5, 0, 2, 0, 1.5, 0,
		1.5, 0, 5, 0, 1.5, 0, 2, 0, 1.5, 0,
	},
}

// wheelPayouts maps segments → risk → multiplier per segment.
var wheelPayouts = buildWheelPayouts()

func buildWheelPayouts() map[int]map[string][]float64 {
	tables := make(map[int]map[string][]float64, len(wheelMedium))
	for segments, medium := range wheelMedium {
		low := make([]float64, 0, segments)
		for len(low) < segments {
			low = append(low, wheelLowBand...)
		}
		// high risk is one jackpot segment
		high := make([]float64, segments)
		high[segments-1] = round2(wheelEdge * float64(segments))

		tables[segments] = map[string][]float64{"low": low, "medium": medium, "high": high}
	}
	return tables
}

type WheelOutcome struct {
	Segments   int     `json:"segments"`
	Risk       string  `json:"risk"`
	Index      int     `json:"index"`
	Multiplier float64 `json:"multiplier"`
}

func (WheelOutcome) Game() string { return "wheel" }

func (g *WheelGame) Spec() GameSpec {
	return GameSpec{
		ID:          "wheel",
		Name:        "Wheel",
		MetricLabel: "multiplier",
		Kind:        KindInstant,
		HouseEdge:   wheelEdge,
	}
}

func (g *WheelGame) Validate(params map[string]any) error {
	_, _, err := wheelParams(params)
	return err
}

func (g *WheelGame) FloatCount(map[string]any) int { return 1 }

func (g *WheelGame) Generate(params map[string]any, src engine.Source) (Outcome, error) {
	segments, risk, err := wheelParams(params)
	if err != nil {
		return nil, err
	}
	table := wheelPayouts[segments][risk]
	index := engine.Intn(src, segments)
	return WheelOutcome{Segments: segments, Risk: risk, Index: index, Multiplier: table[index]}, nil
}

func (g *WheelGame) Resolve(o Outcome, bet decimal.Decimal) (Resolution, error) {
	out, ok := o.(WheelOutcome)
	if !ok {
		return Resolution{}, fmt.Errorf("wheel cannot resolve %T", o)
	}
	return settledAt(bet, out.Multiplier), nil
}

func (g *WheelGame) ExpectedMultiplier(params map[string]any) (float64, error) {
	segments, risk, err := wheelParams(params)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, m := range wheelPayouts[segments][risk] {
		sum += m
	}
	return sum / float64(segments), nil
}

func (g *WheelGame) ParamGrid() []map[string]any {
	var grid []map[string]any
	for _, seg := range wheelSegmentOptions() {
		for _, risk := range riskLevels {
			grid = append(grid, map[string]any{"segments": seg, "risk": risk})
		}
	}
	return grid
}

func wheelSegmentOptions() []int {
	opts := make([]int, 0, len(wheelPayouts))
	for seg := range wheelPayouts {
		opts = append(opts, seg)
	}
	sort.Ints(opts)
	return opts
}

func wheelParams(params map[string]any) (int, string, error) {
	segments, err := intParam(params, "segments", wheelDefaultSegments)
	if err != nil {
		return 0, "", err
	}
	if _, ok := wheelPayouts[segments]; !ok {
		return 0, "", invalidParams("wheel segments must be one of 10, 20, 30, 40, 50; got %d", segments)
	}

	risk, err := choiceParam(params, "risk", wheelDefaultRisk, riskLevels...)
	if err != nil {
		return 0, "", err
	}
	return segments, risk, nil
}
